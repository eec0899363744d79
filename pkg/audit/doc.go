// Package audit ships delivery events to long-term storage.
//
// AsyncWriter implements tracker.EventSink. Each event is redacted (recipient
// addresses and credentials that providers echo in error text), fingerprinted
// with a SHA-256 hash and queued; a background worker writes queued entries
// in batches through a BatchWriter, such as the OpenSearch bulk writer or
// the MongoDB collection writer.
//
//	w, err := audit.NewAsyncWriter(bulk, cfg)
//	if err != nil {
//		return err
//	}
//	defer w.Close(shutdownCtx)
//
//	tr := tracker.New(store, tracker.WithSink(w))
package audit
