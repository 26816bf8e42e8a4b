package main

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("hostyoself"))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, kctx
}

func TestHostDefaults(t *testing.T) {
	cli, kctx := parse(t, "host")
	assert.Equal(t, "host", kctx.Command())

	cfg, err := cli.Host.config()
	require.NoError(t, err)
	assert.Equal(t, "https://hostyoself.com", cfg.RelayURL)
	assert.Equal(t, []string{"."}, cfg.Paths)
	assert.NotEmpty(t, cfg.Domain)
	assert.Len(t, cfg.Key, 6)
	assert.Zero(t, cfg.Watch)
}

func TestHostFlags(t *testing.T) {
	cli, _ := parse(t, "host",
		"--url", "http://localhost:8010/",
		"--domain", "My Site",
		"--key", "k1",
		"--watch", "2s",
		"docs", "notes.txt")

	cfg, err := cli.Host.config()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8010", cfg.RelayURL)
	assert.Equal(t, "my-site", cfg.Domain)
	assert.Equal(t, "k1", cfg.Key)
	assert.Equal(t, 2*time.Second, cfg.Watch)
	assert.Equal(t, []string{"docs", "notes.txt"}, cfg.Paths)
}

func TestHostS3WithoutPaths(t *testing.T) {
	cli, _ := parse(t, "host", "--s3-bucket", "media", "--s3-prefix", "site/")

	cfg, err := cli.Host.config()
	require.NoError(t, err)
	assert.Empty(t, cfg.Paths)
	assert.True(t, cfg.S3.Enabled())
	assert.Equal(t, "site/", cfg.S3.Prefix)
}

func TestHostRejectsBadURL(t *testing.T) {
	cli, _ := parse(t, "host", "--url", "ftp://relay.example")

	_, err := cli.Host.config()
	assert.ErrorContains(t, err, "configuration error")
}

func TestHostEnv(t *testing.T) {
	t.Setenv("HOSTYOSELF_DOMAIN", "from-env")
	t.Setenv("LOG_LEVEL", "debug")

	cli, _ := parse(t, "host")
	assert.Equal(t, "from-env", cli.Host.Domain)
	assert.Equal(t, "debug", cli.LogLevel)
}

func TestRelayDefaults(t *testing.T) {
	cli, kctx := parse(t, "relay")
	assert.Equal(t, "relay", kctx.Command())
	assert.Equal(t, 8010, cli.Relay.Port)
	assert.Equal(t, 30*time.Second, cli.Relay.FetchTimeout)
}
