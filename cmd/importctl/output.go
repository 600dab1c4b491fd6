package main

import (
	"encoding/json"
	"io"
)

type commandOutput struct {
	Command    string `json:"command"`
	Target     string `json:"target"`
	File       string `json:"file,omitempty"`
	DryRun     bool   `json:"dryRun,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Result     any    `json:"result"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
