// Package batch fans conversion tasks across a bounded worker pool.
//
// The coordinator owns scheduling and aggregation only; everything about a
// single file lives behind the Converter interface. Tasks are independent,
// so the pool runs them in arbitrary order and collects results as they
// complete. Failures are absorbed into counters and the journal; nothing a
// worker reports stops the batch.
package batch
