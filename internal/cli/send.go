package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smsgate/smsgate/internal/cli/ui"
)

var sendCmd = &cobra.Command{
	Use:   "send <phone> <message>",
	Short: "Send an SMS through the carrier that serves the number",
	Long: `Resolve the carrier for <phone>, check its balance against the message
cost and send. Prints the cost and the balance reported after the send.

Examples:
  smsgate send 89251234567 "Your code is 1234"
  smsgate send +7-910-000-11-22 "hello" --json`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var canSendCmd = &cobra.Command{
	Use:   "can-send <phone> <message>",
	Short: "Check whether the carrier balance covers a message",
	Args:  cobra.ExactArgs(2),
	RunE:  runCanSend,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <phone>",
	Short: "Print the carrier a phone number routes to",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	provider, err := s.client.Resolve(args[0])
	if err != nil {
		return err
	}

	format := outputFormat(cmd)
	sp := ui.NewStepSpinner(os.Stderr, !spinnerEnabled(cmd))
	if format == "table" {
		sp.Start(fmt.Sprintf("Sending via %s...", provider))
	}
	result, err := s.client.Send(ctx, args[0], args[1])
	if err != nil {
		if format == "table" {
			sp.Fail()
		}
		return err
	}
	if format == "table" {
		sp.Done()
	}

	cost := formatAmount(result.Cost)
	balance := formatAmount(result.RemainingBalance)
	switch format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"provider":          provider.String(),
			"cost":              result.Cost,
			"remaining_balance": result.RemainingBalance,
		})
	case "csv":
		return writeCSV(os.Stdout, []string{"provider", "cost", "remaining_balance"},
			[][]string{{provider.String(), cost, balance}})
	default:
		fmt.Print(ui.FormatFields(
			ui.Field{Label: "Provider", Value: provider.String()},
			ui.Field{Label: "Cost", Value: cost},
			ui.Field{Label: "Balance", Value: balance},
		))
		return nil
	}
}

func runCanSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	provider, err := s.client.Resolve(args[0])
	if err != nil {
		return err
	}
	ok, err := s.client.CanSend(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	switch outputFormat(cmd) {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"provider": provider.String(),
			"can_send": ok,
		})
	case "csv":
		return writeCSV(os.Stdout, []string{"provider", "can_send"},
			[][]string{{provider.String(), strconv.FormatBool(ok)}})
	default:
		if ok {
			fmt.Printf("%s %s balance covers the message\n", ui.StyleSuccess.Render(ui.SymbolCheck), provider)
		} else {
			fmt.Printf("%s %s balance is too low\n", ui.StyleError.Render(ui.SymbolCross), provider)
		}
		return nil
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	resolver, err := buildResolver(cfg)
	if err != nil {
		return err
	}
	provider, number, err := resolvePhone(resolver, args[0])
	if err != nil {
		return err
	}

	switch outputFormat(cmd) {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"phone":    number.Value(),
			"e164":     number.E164(),
			"provider": provider.String(),
		})
	case "csv":
		return writeCSV(os.Stdout, []string{"phone", "provider"},
			[][]string{{number.Value(), provider.String()}})
	default:
		fmt.Printf("%s %s %s\n", number.E164(), ui.SymbolArrow, provider)
		return nil
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
