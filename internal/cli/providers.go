package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smsgate/smsgate/internal/cli/ui"
	"github.com/smsgate/smsgate/internal/sms"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List carriers with a configured gateway",
	RunE:  runProviders,
}

var balanceCmd = &cobra.Command{
	Use:   "balance [provider]",
	Short: "Show the prepaid balance of one or all carriers",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBalance,
}

func runProviders(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	providers, err := s.client.Providers()
	if err != nil {
		return err
	}

	type row struct {
		Provider string `json:"provider"`
		Backend  string `json:"backend"`
	}
	rows := make([]row, 0, len(providers))
	for _, p := range providers {
		rows = append(rows, row{Provider: p.String(), Backend: s.gateways.backends[p]})
	}

	switch outputFormat(cmd) {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(rows)
	case "csv":
		records := make([][]string, 0, len(rows))
		for _, r := range rows {
			records = append(records, []string{r.Provider, r.Backend})
		}
		return writeCSV(os.Stdout, []string{"provider", "backend"}, records)
	default:
		if len(rows) == 0 {
			fmt.Println("No gateways configured.")
			fmt.Println(ui.StyleHint.Render("  Add one with: smsgate config set gateways.megafon.backend static"))
			return nil
		}
		fields := make([]ui.Field, 0, len(rows))
		for _, r := range rows {
			fields = append(fields, ui.Field{Label: r.Provider, Value: r.Backend})
		}
		fmt.Print(ui.FormatFields(fields...))
		return nil
	}
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var providers []sms.Provider
	if len(args) == 1 {
		p, err := sms.ParseProvider(args[0])
		if err != nil {
			return err
		}
		providers = []sms.Provider{p}
	} else if providers, err = s.client.Providers(); err != nil {
		return err
	}

	type row struct {
		Provider string   `json:"provider"`
		Balance  *float64 `json:"balance"`
		Error    string   `json:"error,omitempty"`
	}
	rows := make([]row, 0, len(providers))
	var errs []error
	for _, p := range providers {
		r := row{Provider: p.String()}
		balance, err := s.client.Balance(ctx, p)
		if err != nil {
			r.Error = err.Error()
			errs = append(errs, err)
		} else {
			r.Balance = &balance
		}
		rows = append(rows, r)
	}
	// A single requested provider fails the command outright.
	if len(args) == 1 && len(errs) == 1 {
		return errs[0]
	}

	switch outputFormat(cmd) {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(rows)
	case "csv":
		records := make([][]string, 0, len(rows))
		for _, r := range rows {
			value := ""
			if r.Balance != nil {
				value = formatAmount(*r.Balance)
			}
			records = append(records, []string{r.Provider, value, r.Error})
		}
		return writeCSV(os.Stdout, []string{"provider", "balance", "error"}, records)
	default:
		fields := make([]ui.Field, 0, len(rows))
		for _, r := range rows {
			value := ui.StyleError.Render(ui.SymbolCross + " " + r.Error)
			if r.Balance != nil {
				value = formatAmount(*r.Balance)
			}
			fields = append(fields, ui.Field{Label: r.Provider, Value: value})
		}
		fmt.Print(ui.FormatFields(fields...))
		if len(errs) > 0 {
			return fmt.Errorf("%d of %d balance checks failed: %w", len(errs), len(rows), errors.Join(errs...))
		}
		return nil
	}
}
