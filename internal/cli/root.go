// Package cli contains the perfship Cobra commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gosight/perfship/internal/config"
	"github.com/gosight/perfship/internal/tokenstore"
	"github.com/gosight/perfship/internal/transport"
)

// TransportFunc builds the transport for the configured log store.
type TransportFunc func(ctx context.Context, cfg config.TransportConfig) (transport.Transport, error)

// Options wires the commands to their environment. Zero fields fall back to
// the real implementations.
type Options struct {
	NewTransport TransportFunc
	Stdin        io.Reader
}

type app struct {
	opts       Options
	configPath string
	cfg        *config.Config
}

// NewRoot constructs the perfship root command with the ship and token groups.
func NewRoot(opts Options) *cobra.Command {
	if opts.NewTransport == nil {
		opts.NewTransport = OpenTransport
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           "perfship",
		Short:         "Ship browser performance records to a sequence-token guarded log stream",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", a.configPath, err)
			}
			if cfg.Stream.Group == "" || cfg.Stream.Stream == "" {
				return fmt.Errorf("config %s: stream.group and stream.stream are required", a.configPath)
			}
			if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
				zerolog.SetGlobalLevel(level)
			}
			a.cfg = cfg
			return nil
		},
	}

	defaultConfig := os.Getenv("PERFSHIP_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config/perfship.yaml"
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfig, "path to the YAML config")

	root.AddCommand(a.newShipCommand(), a.newTokenCommand())
	return root
}

func (a *app) openTokens(ctx context.Context) (tokenstore.Store, error) {
	key := tokenstore.Key(a.cfg.Stream.Group, a.cfg.Stream.Stream)
	return tokenstore.Open(ctx, a.cfg.TokenStore, key)
}

// OpenTransport builds the transport named by cfg.Kind.
func OpenTransport(ctx context.Context, cfg config.TransportConfig) (transport.Transport, error) {
	switch cfg.Kind {
	case "cloudwatch":
		return transport.NewCloudWatch(ctx, cfg.CloudWatch)
	case "http":
		if cfg.HTTP.BaseURL == "" {
			return nil, fmt.Errorf("transport http: base_url is required")
		}
		return transport.NewHTTP(cfg.HTTP.BaseURL, cfg.HTTP.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

// sinkURL is the endpoint the shipper itself talks to. Resource timings for
// it are filtered so shipping never logs itself.
func sinkURL(cfg config.TransportConfig) string {
	switch cfg.Kind {
	case "http":
		return cfg.HTTP.BaseURL
	case "cloudwatch":
		if cfg.CloudWatch.Endpoint != "" {
			return cfg.CloudWatch.Endpoint
		}
		if cfg.CloudWatch.Region != "" {
			return "https://logs." + cfg.CloudWatch.Region + ".amazonaws.com/"
		}
	}
	return ""
}
