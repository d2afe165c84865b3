package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/smsgate/smsgate/internal/config"
	"github.com/smsgate/smsgate/internal/smsgate"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersion is called from main to inject build-time version info.
func SetVersion(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

var rootCmd = &cobra.Command{
	Use:   "smsgate",
	Short: "smsgate routes SMS to Russian mobile carriers",
	Long: `smsgate picks the carrier for a phone number, checks the prepaid balance
with that carrier's gateway and sends the message. Gateways are configured per
carrier in smsgate.toml.

Send a message:
  smsgate send +79251234567 "hello"

Or run the HTTP API:
  smsgate serve --port 8095`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format (shorthand for --output json)")
	rootCmd.PersistentFlags().String("output", "table", "Output format: table, json, or csv")
	rootCmd.PersistentFlags().String("config", "", "Path to smsgate.toml config file")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(canSendCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// outputFormat returns the resolved output format from flags.
// --json is a shorthand for --output json.
func outputFormat(cmd *cobra.Command) string {
	jsonFlag, _ := cmd.Flags().GetBool("json")
	if jsonFlag {
		return "json"
	}
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		return "table"
	}
	return out
}

// writeCSV writes rows as CSV to the given writer.
func writeCSV(w io.Writer, cols []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// loadConfig resolves configuration for cmd, applying flag overrides.
func loadConfig(cmd *cobra.Command, flags map[string]string) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// session is the client a one-shot command works with.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *smsgate.Client
	gateways *gatewaySet
}

func (s *session) Close() error {
	return s.gateways.Close()
}

func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	client, set, err := buildClient(ctx, cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, client: client, gateways: set}, nil
}

// spinnerEnabled reports whether progress output should animate.
func spinnerEnabled(cmd *cobra.Command) bool {
	return outputFormat(cmd) == "table" && colorEnabled()
}
