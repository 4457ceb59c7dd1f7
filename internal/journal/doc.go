// Package journal persists batch run history in SQLite.
//
// Each invocation opens a run row, appends one file row per conversion
// attempt, and stamps the run with final counters when the batch ends. The
// report command reads the same database, possibly while a batch is still
// writing; WAL mode plus a busy retry keep the two from tripping over each
// other.
//
// The journal is a history, not coordination state: deleting the database
// loses past reports and nothing else. Schema changes bump schemaVersion in
// journal.go and update schema.sql.
package journal
