// Package opensearch wraps the OpenSearch Go client with environment
// configuration, a health check for readiness probes and EventWriter, the
// bulk writer that stores delivery audit entries in daily indices.
//
//	cfg, _ := config.Load[opensearch.Config]()
//	client, err := opensearch.New(ctx, cfg)
//	if err != nil {
//		return err // errors.Is(err, opensearch.ErrConnectionFailed)
//	}
//
//	sink, _ := audit.NewAsyncWriter(opensearch.NewEventWriter(client, cfg.IndexPrefix), auditCfg)
//
// MaxRetries and DisableRetry map directly to the opensearch-go/v2 client.
package opensearch
