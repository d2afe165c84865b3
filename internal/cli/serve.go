package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smsgate/smsgate/internal/cli/ui"
	"github.com/smsgate/smsgate/internal/config"
	"github.com/smsgate/smsgate/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the SMS API:
  POST /api/sms/send      {"phone": "...", "message": "..."}
  POST /api/sms/can-send  {"phone": "...", "message": "..."}
  GET  /api/providers
  GET  /api/providers/{provider}/balance
  GET  /healthz

Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "Server port (overrides config)")
	serveCmd.Flags().String("host", "", "Server host (overrides config)")
	serveCmd.Flags().String("routing", "", "Routing strategy: prefix, carrier, or chain")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
}

// serveFlags collects the overrides the user actually passed.
func serveFlags(cmd *cobra.Command) map[string]string {
	flags := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "port", "host", "routing", "log-level":
			flags[f.Name] = f.Value.String()
		}
	})
	return flags
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, serveFlags(cmd))
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		reg     *prometheus.Registry
		metrics http.Handler
	)
	if cfg.Metrics.Enabled {
		reg = newMetricsRegistry()
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	client, set, err := buildClient(ctx, cfg, logger, registerer(reg))
	if err != nil {
		return err
	}
	defer set.Close()

	providers, err := client.Providers()
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		fmt.Fprint(os.Stderr, ui.FormatWarning("no gateways configured; every send will fail",
			"smsgate config set gateways.megafon.backend static"))
	}

	srv := server.New(cfg, logger, client, metrics)
	errCh := make(chan error, 1)
	ready := make(chan struct{})
	go func() { errCh <- srv.StartWithReady(ready) }()

	select {
	case err := <-errCh:
		return err
	case <-ready:
	}
	printServeBanner(cfg, len(providers))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	stop()
	logger.Info("received shutdown signal")
	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// registerer avoids handing buildClient a typed-nil interface.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

func printServeBanner(cfg *config.Config, gateways int) {
	useColor := colorEnabled()
	fmt.Fprintf(os.Stderr, "\n  %s %s\n\n", ui.BrandEmoji, boldCyan("smsgate "+buildVersion, useColor))
	fmt.Fprintf(os.Stderr, "  %-9s %s\n", "API:", cyan(fmt.Sprintf("http://%s/api", cfg.Address()), useColor))
	if cfg.Metrics.Enabled {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", "Metrics:", cyan(fmt.Sprintf("http://%s%s", cfg.Address(), cfg.Metrics.Path), useColor))
	}
	fmt.Fprintf(os.Stderr, "  %-9s %d configured, routing %s\n\n", "Gateways:", gateways, cfg.Routing.Strategy)
	fmt.Fprintln(os.Stderr, dim("  Press Ctrl-C to stop.", useColor))
}
