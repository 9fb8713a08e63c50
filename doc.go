// Package worklog defers side-effect work to asynchronous execution with
// at-least-once delivery across process crashes.
//
// Typical flow:
//  1. After a host transaction commits, Submit the items it produced together
//     with the origin transaction id. Submit returns once the items are on
//     stable storage.
//  2. Run a Worker that drains the WorkLog through a bounded pool of
//     per-transaction consumers and invokes the host Executor for each item.
//  3. On success the record is marked complete in place; on exhausted retries
//     the item is moved to a FailLog for later inspection.
//
// The on-disk format is a sequence of fixed-size records:
//
//	status:u8 | payload:EntrySize bytes | originTxId:u32
//
// A torn trailing record left by a crash mid-append is truncated at Start.
//
// Adapters for MySQL (dead-letter mirror), SQLite (attempt journal), Pebble
// (secondary index executor), Kafka (publishing executor) and Prometheus live
// in subpackages.
package worklog
