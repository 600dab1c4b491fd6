// Command importctl validates and imports CSV, TSV and XLSX files from the
// command line using the same pipeline as the HTTP server.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
