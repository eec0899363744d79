// Package logger builds *slog.Logger instances for dispatchkit services and
// provides attribute constructors with consistent key names.
//
// New returns a logger whose handler is wrapped by LogHandlerDecorator, which
// runs registered ContextExtractor callbacks on every record. WithDispatchContext
// registers extractors for the identifiers stored with WithRequestID,
// WithRecipientID and WithChannel, so code deep inside a delivery pipeline can
// log with a plain ctx and still carry request/recipient/channel fields.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "dispatchd"),
//	    logger.WithDispatchContext(),
//	)
//	logger.SetAsDefault(log)
//
//	ctx = logger.WithRequestID(ctx, req.ID)
//	log.LogAttrs(ctx, slog.LevelInfo, "attempt sent",
//	    logger.Channel("email"),
//	    logger.Attempt(1),
//	)
//
// Attribute helpers such as Error return an empty slog.Attr for nil input,
// which slog drops from the output.
package logger
