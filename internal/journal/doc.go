// Package journal records connection lifecycle events and messages into
// PostgreSQL.
//
// A Recorder is an Observer (and a state event subscriber) that turns every
// notification into an Entry and pushes it onto a Queue without blocking. A
// Writer drains the queue and inserts the entries in batches with pgx.Batch,
// flushing when a batch fills or the flush interval elapses.
package journal
