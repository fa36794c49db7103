package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/FranksOps/partscout/internal/ai"
	"github.com/FranksOps/partscout/internal/config"
	"github.com/FranksOps/partscout/internal/search"
	"github.com/FranksOps/partscout/internal/storage"
	"github.com/FranksOps/partscout/pkg/breaker"
	"github.com/FranksOps/partscout/pkg/useragent"
)

// app holds what a command needs and must release.
type app struct {
	reg   *search.Registry
	store storage.Backend
}

func (a *app) Close() {
	a.reg.Close()
	if a.store != nil {
		_ = a.store.Close()
	}
}

// buildApp opens the audit backend and builds one engine per enabled vendor.
func buildApp(ctx context.Context, c config.Config, log *slog.Logger) (*app, error) {
	store, err := c.Audit.OpenAudit(ctx)
	if err != nil {
		return nil, err
	}

	var classifier ai.Classifier
	if c.AI.Enabled {
		classifier = ai.NewClient(ai.ClientConfig{
			BaseURL: c.AI.BaseURL,
			APIKey:  c.AI.APIKey,
			Model:   c.AI.Model,
			Timeout: c.AI.Timeout,
			Logger:  log,
		})
	}
	uas := useragent.NewPool(c.UserAgents)

	reg := search.NewRegistry()
	for _, vc := range c.EnabledVendors() {
		opts := search.Options{
			Vendor: vc,
			AI:     classifier,
			Breaker: breaker.Config{
				FailureRateThreshold: c.AI.Breaker.FailureRateThreshold,
				WindowSize:           c.AI.Breaker.WindowSize,
				MinimumCalls:         c.AI.Breaker.MinimumCalls,
				Cooldown:             c.AI.Breaker.Cooldown,
				HalfOpenProbes:       c.AI.Breaker.HalfOpenProbes,
			},
			Retry: breaker.RetryConfig{
				MaxAttempts:     c.AI.Retry.MaxAttempts,
				InitialInterval: c.AI.Retry.InitialInterval,
				MaxInterval:     c.AI.Retry.MaxInterval,
			},
			AICallTimeout: c.AI.CallTimeout,
			MaxResults:    c.MaxResults,
			UAPool:        uas,
			Store:         store,
			Logger:        log,
		}
		e, err := search.NewEngine(opts)
		if err != nil {
			reg.Close()
			if store != nil {
				err = errors.Join(err, store.Close())
			}
			return nil, err
		}
		reg.Add(e)
	}
	return &app{reg: reg, store: store}, nil
}
