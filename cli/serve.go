package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"medstore-console/app"
	"medstore-console/config"
	"medstore-console/telemetry"
)

const serviceName = "medstore-console"

// configFlags are the flags shared by commands that talk to the API.
type configFlags struct {
	apiURL  string
	backend string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.apiURL, "api-url", "", "medical store API base URL (overrides MEDSTORE_API_URL)")
	cmd.Flags().StringVar(&f.backend, "backend", "", "identity backend, rest or kratos (overrides MEDSTORE_BACKEND)")
}

// load reads the environment and applies the flags that were set.
func (f *configFlags) load() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if f.apiURL != "" {
		cfg.APIURL = f.apiURL
	}
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	return cfg, cfg.Validate()
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		flags configFlags
		addr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			logger := cfg.Logger(cmd.ErrOrStderr())
			slog.SetDefault(logger)

			ctx := cmd.Context()
			shutdown, err := telemetry.Setup(ctx, cfg.OTelEndpoint, serviceName)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Warn("failed to flush traces", "error", err)
				}
			}()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Start(ctx)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides MEDSTORE_HTTP_ADDR)")
	return cmd
}
