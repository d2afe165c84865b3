package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smsgate/smsgate/internal/cli/ui"
	"github.com/smsgate/smsgate/internal/ledger"
	"github.com/smsgate/smsgate/internal/sms"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage prepaid accounts of ledger-backed gateways",
}

var ledgerTopUpCmd = &cobra.Command{
	Use:   "topup <provider> <amount>",
	Short: "Credit a carrier account",
	Args:  cobra.ExactArgs(2),
	RunE:  runLedgerTopUp,
}

var ledgerHistoryCmd = &cobra.Command{
	Use:   "history <provider>",
	Short: "List recent journal entries of a carrier account",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerHistory,
}

func init() {
	ledgerHistoryCmd.Flags().Int("limit", 20, "Maximum number of entries to show")

	ledgerCmd.AddCommand(ledgerTopUpCmd)
	ledgerCmd.AddCommand(ledgerHistoryCmd)
}

// openLedger opens the database backing provider's gateway. The provider
// must be configured with backend "ledger".
func openLedger(cmd *cobra.Command, name string) (*ledger.Ledger, sms.Provider, error) {
	p, err := sms.ParseProvider(name)
	if err != nil {
		return nil, 0, err
	}
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, 0, err
	}
	gc, ok := cfg.Gateways[p.String()]
	if !ok || gc.Backend != "ledger" {
		return nil, 0, fmt.Errorf("gateways.%s does not use the ledger backend", p)
	}
	l, err := ledger.Open(cmd.Context(), gc.Path, newLogger(cfg.Logging.Level, cfg.Logging.Format))
	if err != nil {
		return nil, 0, err
	}
	if err := l.EnsureAccount(cmd.Context(), p, gc.OpeningBalance); err != nil {
		l.Close()
		return nil, 0, err
	}
	return l, p, nil
}

func runLedgerTopUp(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("%w: amount %q is not a number", sms.ErrInvalidArgument, args[1])
	}
	l, p, err := openLedger(cmd, args[0])
	if err != nil {
		return err
	}
	defer l.Close()

	balance, err := l.TopUp(cmd.Context(), p, amount)
	if err != nil {
		return err
	}

	switch outputFormat(cmd) {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"provider": p.String(),
			"amount":   amount,
			"balance":  balance,
		})
	case "csv":
		return writeCSV(os.Stdout, []string{"provider", "amount", "balance"},
			[][]string{{p.String(), formatAmount(amount), formatAmount(balance)}})
	default:
		fmt.Printf("%s %s credited %s, balance %s\n",
			ui.StyleSuccess.Render(ui.SymbolCheck), p, formatAmount(amount), formatAmount(balance))
		return nil
	}
}

func runLedgerHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	l, p, err := openLedger(cmd, args[0])
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.Entries(cmd.Context(), p, limit)
	if err != nil {
		return err
	}

	type row struct {
		ID        string    `json:"id"`
		Kind      string    `json:"kind"`
		Amount    float64   `json:"amount"`
		Phone     string    `json:"phone,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, row{ID: e.ID, Kind: e.Kind, Amount: e.Amount, Phone: e.Phone, CreatedAt: e.CreatedAt})
	}

	switch outputFormat(cmd) {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(rows)
	case "csv":
		records := make([][]string, 0, len(rows))
		for _, r := range rows {
			records = append(records, []string{r.ID, r.Kind, formatAmount(r.Amount), r.Phone, r.CreatedAt.Format(time.RFC3339)})
		}
		return writeCSV(os.Stdout, []string{"id", "kind", "amount", "phone", "created_at"}, records)
	default:
		if len(rows) == 0 {
			fmt.Printf("No journal entries for %s.\n", p)
			return nil
		}
		for _, r := range rows {
			fmt.Printf("  %s  %-7s %10s  %s\n",
				ui.StyleDim.Render(r.CreatedAt.Format("2006-01-02 15:04:05")), r.Kind, formatAmount(r.Amount), r.Phone)
		}
		return nil
	}
}
