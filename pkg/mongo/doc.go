// Package mongo connects to MongoDB and stores delivery audit entries in it.
//
// The client is built from environment configuration (MONGODB_*) with a
// bounded number of connection attempts, and Healthcheck plugs into the
// readiness endpoint. EventWriter implements audit.BatchWriter, so it can
// stand in for the OpenSearch bulk sink:
//
//	client, err := mongo.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	w := mongo.NewEventWriter(client, cfg)
//	if err := w.EnsureIndexes(ctx); err != nil {
//		return err
//	}
//	sink, err := audit.NewAsyncWriter(w, auditCfg)
//
// Entry ids are used as document ids. Inserts are unordered and duplicate
// key errors are ignored, so a batch retried after a partial write does not
// duplicate documents.
package mongo
