package main

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/hostyoself/internal/config"
	"github.com/fruitsalade/hostyoself/internal/logging"
	"github.com/fruitsalade/hostyoself/internal/relay"
)

type RelayCmd struct {
	URL          string        `name:"url" env:"HOSTYOSELF_PUBLIC_URL" help:"Public URL of the relay (default http://localhost:<port>)"`
	Port         int           `short:"p" env:"HOSTYOSELF_PORT" default:"8010" help:"Port to listen on"`
	FetchTimeout time.Duration `name:"fetch-timeout" env:"HOSTYOSELF_FETCH_TIMEOUT" default:"30s" help:"How long to wait for a host to answer"`
}

func (c *RelayCmd) Run(globals *Globals) error {
	cfg := config.DefaultRelay()
	cfg.PublicURL = c.URL
	cfg.Port = c.Port
	cfg.FetchTimeout = c.FetchTimeout
	cfg.Complete()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	srv := relay.New(cfg, logging.Named("relay"))

	g, ctx := errgroup.WithContext(globals.Context())
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		return serveMetrics(ctx, globals.MetricsAddr)
	})
	return g.Wait()
}
