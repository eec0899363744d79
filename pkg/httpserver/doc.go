// Package httpserver runs an http.Handler with graceful shutdown and serves
// liveness and readiness probes.
//
// Run binds the listener, runs start hooks with the bound address and serves
// until its context ends. Shutdown is bounded by WithShutdownTimeout. Listen
// errors wrap ErrStart; shutdown errors wrap ErrShutdown.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	mux.Handle("/health/live", httpserver.LivenessHandler())
//	mux.Handle("/health/ready", httpserver.ReadinessHandler(log, 2*time.Second,
//		httpserver.Check{Name: "postgres", Func: pg.Healthcheck(db)},
//	))
//	err := srv.Run(ctx, mux)
package httpserver
