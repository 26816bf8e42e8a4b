// hostyoself
//
// Serve files from this machine through a public relay:
//   - host: connect to a relay and answer requests for local files or an S3 prefix
//   - relay: accept hosts over websockets and forward HTTP requests to them
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/fruitsalade/hostyoself/internal/logging"
	"github.com/fruitsalade/hostyoself/internal/metrics"
)

type Globals struct {
	LogLevel    string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level"`
	LogFormat   string `name:"log-format" env:"LOG_FORMAT" default:"auto" enum:"auto,console,json" help:"Log format"`
	MetricsAddr string `name:"metrics-addr" env:"METRICS_ADDR" help:"Serve Prometheus metrics on this address"`
	Debug       bool   `help:"Shorthand for --log-level=debug"`

	ctx    context.Context
	cancel context.CancelFunc
}

type CLI struct {
	Globals

	Host  HostCmd  `cmd:"" default:"withargs" help:"Host files through a relay"`
	Relay RelayCmd `cmd:"" help:"Run a relay server"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("hostyoself"),
		kong.Description("Host files from your machine through a public relay."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	if err := logging.Init(logging.Config{Level: cli.LogLevel, Format: cli.LogFormat}); err != nil {
		kctx.FatalIfErrorf(err)
	}
	if cli.Debug {
		logging.SetLevel("debug")
	}
	defer logging.Sync()

	cli.ctx, cli.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cli.cancel()

	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

// Context is cancelled on SIGINT or SIGTERM.
func (g *Globals) Context() context.Context {
	return g.ctx
}

// serveMetrics runs the metrics endpoint until ctx is done. An empty
// address disables it.
func serveMetrics(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		metricsServer.Close()
	}()

	logging.Info("metrics server listening", zap.String("addr", addr))
	if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
