// Package batch groups delivery work per channel into provider-sized batches.
//
// A Coordinator keeps one open batch per channel. Items are appended in
// arrival order; the batch is handed to the flush function as soon as it
// reaches the channel's size, or when the batch window since its first item
// elapses. Failures inside a flushed batch are the flush function's concern:
// the coordinator never reports pass or fail for a batch as a whole.
package batch
