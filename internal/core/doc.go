// Package core provides the business logic for tabular import operations.
//
// This package holds the import pipeline independent of any UI or transport
// layer. The HTTP server, the importctl CLI and tests all drive it the same
// way, through [Service] or directly through [Importer].
//
// # Architecture
//
// A file travels through four stages:
//
//   - Row Parser: [Parse] sniffs the bytes against the declared [Format],
//     decodes CSV, TSV or XLSX and yields [RawRow] values one at a time.
//   - Row Validator: [RowValidator] coerces every cell against its
//     [FieldSpec], then the target's Build func applies cross-field rules and
//     produces a typed [Record].
//   - Duplicate Resolver: [DuplicateResolver] asks the [Store] once per batch
//     which duplicate keys already exist.
//   - Batch Committer: [BatchCommitter] groups valid records into batches and
//     writes each batch atomically, several batches in parallel.
//
// [Importer] is the import session. Validate runs the first two stages and
// never writes; Execute runs all four. Both share one parser and validator,
// so they always agree on which rows are valid. Execute parses the whole
// file once before the first batch is written, then rewinds [File].Reader
// for the commit pass.
//
// # Import Targets
//
// Each target (customers, orders, shipments) is a [TargetDefinition] held in
// a [Registry]. A definition carries the field specs, a Build func returning
// the typed record, and the COPY column layout used by the postgres store:
//
//	core.NewRegistry(core.TargetDefinition{
//	    Info: core.TargetInfo{Key: core.TargetCustomers, Label: "Customers"},
//	    FieldSpecs: []core.FieldSpec{
//	        {Name: "name", Type: core.FieldText, Required: true},
//	        {Name: "phone", Type: core.FieldPhone, Required: true},
//	    },
//	    Build: buildCustomer,
//	})
//
// The concrete definitions live in the targets subpackage.
//
// # Streaming
//
// Rows are read lazily and batches are released as soon as they are written,
// so memory stays proportional to BatchSize times the commit concurrency,
// whatever the file size.
//
// # Error Handling
//
// A [*FormatError] means the file itself is unusable and aborts the call
// with no result and no writes.
// Row problems are [FieldIssue] values collected per row. Store failures
// become row errors on the affected batch and never stop later batches.
// [MapError] turns any of these into a user message with a support code.
package core
