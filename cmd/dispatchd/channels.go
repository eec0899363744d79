package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/email"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/inapp"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/push"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/sms"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/webhook"
	"github.com/dmitrymomot/dispatchkit/pkg/config"
	"github.com/dmitrymomot/dispatchkit/pkg/retry"
)

// adapterFactory builds the adapter for one channel from its package config.
type adapterFactory func(ctx context.Context, log *slog.Logger) (channel.Adapter, error)

func adapterFactories(inbox *inapp.Inbox) map[channel.Name]adapterFactory {
	return map[channel.Name]adapterFactory{
		channel.Email: func(ctx context.Context, _ *slog.Logger) (channel.Adapter, error) {
			var cfg email.Config
			if err := config.Load(&cfg); err != nil {
				return nil, err
			}
			return email.New(ctx, cfg)
		},
		channel.SMS: func(ctx context.Context, _ *slog.Logger) (channel.Adapter, error) {
			var cfg sms.Config
			if err := config.Load(&cfg); err != nil {
				return nil, err
			}
			return sms.NewFromConfig(ctx, cfg)
		},
		channel.Push: func(ctx context.Context, _ *slog.Logger) (channel.Adapter, error) {
			var cfg push.Config
			if err := config.Load(&cfg); err != nil {
				return nil, err
			}
			return push.NewFromConfig(ctx, cfg)
		},
		channel.Webhook: func(_ context.Context, log *slog.Logger) (channel.Adapter, error) {
			var cfg webhook.Config
			if err := config.Load(&cfg); err != nil {
				return nil, err
			}
			return webhook.New(append(cfg.Options(), webhook.WithLogger(log))...), nil
		},
		channel.Chat: func(_ context.Context, log *slog.Logger) (channel.Adapter, error) {
			var cfg webhook.Config
			if err := config.Load(&cfg); err != nil {
				return nil, err
			}
			return webhook.NewChat(append(cfg.Options(), webhook.WithLogger(log))...), nil
		},
		channel.InApp: func(context.Context, *slog.Logger) (channel.Adapter, error) {
			return inapp.NewAdapter(inbox), nil
		},
	}
}

// buildRegistry registers every defined channel with its adapter.
func buildRegistry(ctx context.Context, defs []channelDef, factories map[channel.Name]adapterFactory, log *slog.Logger) (*channel.Registry, error) {
	reg := channel.NewRegistry()
	for _, def := range defs {
		factory, ok := factories[def.Name]
		if !ok {
			return nil, fmt.Errorf("channel %q: %w", def.Name, channel.ErrUnknownChannel)
		}
		adapter, err := factory(ctx, log.With(slog.String("channel", string(def.Name))))
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", def.Name, err)
		}

		policy := retry.DefaultPolicy()
		if def.Retry != nil {
			policy = *def.Retry
		}
		if err := reg.Register(channel.Channel{
			Name:         def.Name,
			Adapter:      adapter,
			MaxBatchSize: def.BatchSize,
			RateLimit:    def.RateLimit,
			Account:      def.Account,
			Timeout:      def.Timeout,
			Retry:        policy,
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
