package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/hostyoself/internal/accesslog"
	"github.com/fruitsalade/hostyoself/internal/config"
	"github.com/fruitsalade/hostyoself/internal/handler"
	"github.com/fruitsalade/hostyoself/internal/logging"
	"github.com/fruitsalade/hostyoself/internal/session"
	"github.com/fruitsalade/hostyoself/internal/source/local"
	s3source "github.com/fruitsalade/hostyoself/internal/source/s3"
	"github.com/fruitsalade/hostyoself/internal/wsconn"
)

type HostCmd struct {
	URL    string        `name:"url" short:"u" env:"HOSTYOSELF_URL" default:"https://hostyoself.com" help:"Relay to connect to"`
	Domain string        `short:"d" env:"HOSTYOSELF_DOMAIN" help:"Domain to use (default is random)"`
	Key    string        `short:"k" env:"HOSTYOSELF_KEY" help:"Key to use (default is random)"`
	Watch  time.Duration `env:"HOSTYOSELF_WATCH" default:"0s" help:"Poll folders for new files at this interval (0 disables)"`

	S3Bucket    string `name:"s3-bucket" env:"HOSTYOSELF_S3_BUCKET" help:"Serve objects from this S3 bucket"`
	S3Prefix    string `name:"s3-prefix" env:"HOSTYOSELF_S3_PREFIX" help:"Only serve keys below this prefix"`
	S3Endpoint  string `name:"s3-endpoint" env:"HOSTYOSELF_S3_ENDPOINT" help:"S3-compatible endpoint (default AWS)"`
	S3Region    string `name:"s3-region" env:"HOSTYOSELF_S3_REGION" default:"us-east-1" help:"S3 region"`
	S3AccessKey string `name:"s3-access-key" env:"HOSTYOSELF_S3_ACCESS_KEY" help:"S3 access key (default credential chain when empty)"`
	S3SecretKey string `name:"s3-secret-key" env:"HOSTYOSELF_S3_SECRET_KEY" help:"S3 secret key"`

	Paths []string `arg:"" optional:"" help:"Files and folders to serve (default is the current folder)"`
}

func (c *HostCmd) config() (config.Host, error) {
	cfg := config.DefaultHost()
	cfg.RelayURL = c.URL
	cfg.Domain = c.Domain
	cfg.Key = c.Key
	cfg.Paths = c.Paths
	cfg.Watch = c.Watch
	cfg.S3 = config.S3{
		Bucket:    c.S3Bucket,
		Prefix:    c.S3Prefix,
		Endpoint:  c.S3Endpoint,
		Region:    c.S3Region,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
	}
	cfg.Complete()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func (c *HostCmd) Run(globals *Globals) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}

	console := accesslog.New(os.Stdout, accesslog.WithTrace(logging.Named("host")))
	sess := session.New(session.Config{
		RelayURL: cfg.RelayURL,
		Domain:   cfg.Domain,
		Key:      cfg.Key,
	}, session.DialFunc(dialRelay), console)

	console.Info("hosting at %s/%s/ (key %s)", cfg.RelayURL, cfg.Domain, cfg.Key)
	logging.Info("host starting",
		zap.String("relay", cfg.RelayURL),
		zap.String("domain", cfg.Domain),
		zap.Strings("paths", cfg.Paths))

	g, ctx := errgroup.WithContext(globals.Context())
	g.Go(func() error {
		return sess.Run(ctx, handler.New(sess, console))
	})
	if len(cfg.Paths) > 0 {
		g.Go(func() error {
			if err := local.Serve(ctx, sess, cfg.Paths, cfg.Watch); err != nil {
				return err
			}
			if !sess.Registered() && !cfg.S3.Enabled() && cfg.Watch == 0 {
				console.Warn("no files found in %s", strings.Join(cfg.Paths, ", "))
			}
			return nil
		})
	}
	if cfg.S3.Enabled() {
		g.Go(func() error {
			src, err := s3source.New(ctx, s3source.Config{
				Bucket:    cfg.S3.Bucket,
				Prefix:    cfg.S3.Prefix,
				Endpoint:  cfg.S3.Endpoint,
				Region:    cfg.S3.Region,
				AccessKey: cfg.S3.AccessKey,
				SecretKey: cfg.S3.SecretKey,
			})
			if err != nil {
				return err
			}
			return src.Serve(ctx, sess)
		})
	}
	g.Go(func() error {
		return serveMetrics(ctx, globals.MetricsAddr)
	})

	return g.Wait()
}

func dialRelay(ctx context.Context, addr string) (session.Transport, error) {
	conn, err := wsconn.Dialer{}.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
