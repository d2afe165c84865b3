package cli

import (
	"errors"

	"github.com/smsgate/smsgate/internal/cli/ui"
	"github.com/smsgate/smsgate/internal/sms"
)

// FormatError renders a command error for the terminal, adding suggestions
// for the failures a user can fix from the CLI.
func FormatError(err error) string {
	var insufficient *sms.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		return ui.FormatError(err.Error(), "smsgate balance", "smsgate ledger topup <provider> <amount>")
	case errors.Is(err, sms.ErrUnknownProvider):
		return ui.FormatError(err.Error(), "smsgate providers", "smsgate resolve <phone>")
	case errors.Is(err, sms.ErrInvalidArgument):
		return ui.FormatError(err.Error(), "smsgate send 89251234567 \"hello\"")
	default:
		return ui.FormatError(err.Error())
	}
}
