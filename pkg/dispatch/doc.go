// Package dispatch is the notification orchestrator. It accepts requests,
// validates them synchronously and delivers them asynchronously: every
// (recipient, channel) pair is resolved against recipient preferences,
// rendered, rate limited, sent through its channel adapter and retried
// independently of the others.
//
// Basic usage:
//
//	tr := tracker.New(tracker.NewMemoryStore(), tracker.WithPolicies(registry))
//	d := dispatch.New(tr, registry, resolver, renderer,
//		dispatch.WithLimiter(ratelimiter.NewLimiter(ratelimiter.NewMemoryStore())),
//	)
//	_ = d.RegisterType(dispatch.NotificationType{Name: "welcome", Channels: []channel.Name{channel.Email}})
//
//	go d.Run(ctx)
//
//	h, err := d.Submit(ctx, dispatch.Request{
//		IdempotencyKey: "signup-42",
//		Type:           "welcome",
//		Recipients:     []string{"user-42"},
//		Context:        map[string]any{"name": "Ada", "app_name": "Acme"},
//	})
//	if errors.Is(err, dispatch.ErrInvalidRequest) {
//		// nothing was stored
//	}
//
//	report, _ := d.Status(ctx, h.RequestID)
//
// Submit only validates and persists. Run owns two pools of goroutines:
// expanders take due requests and turn each recipient into attempts or
// terminal outcomes, and workers take due attempts and hand them to the
// batch coordinator, which flushes per channel when a batch is full or its
// window elapses. Send results are reported to the tracker attempt by
// attempt, so a partially failed batch never fails its successful messages.
//
// All durable state lives in the tracker's store. The in-process schedules
// are rebuilt from it by Recover, which Run calls on start.
//
// Metrics are registered with the default Prometheus registry under the
// dispatch_ prefix; spans are created with the global OpenTelemetry tracer
// provider unless WithTracer is given.
package dispatch
