// Package batch runs lookups over an input table as a resumable batch.
//
// A Runner walks the records strictly in order, one at a time, and keeps
// the results in memory. Every SaveInterval rows it writes a checkpoint and
// the rendered output, so an interrupted run continues from the last saved
// index. Key behavior:
//   - Pause and stop are read from a Token once per record, before the record
//   - Quota exhaustion pauses the run without consuming the row
//   - A run only reports Completed after the final write succeeded
//   - Progress and Event give UIs a thread-safe view of the run
package batch
