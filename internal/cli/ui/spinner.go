package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// StepSpinner shows progress for a blocking step such as a carrier call.
// On a terminal it animates a braille spinner. Otherwise it prints static
// text so piped output stays clean.
type StepSpinner struct {
	w      io.Writer
	s      *spinner.Spinner
	msg    string
	active bool
	noSpin bool
}

// NewStepSpinner creates a spinner that writes to w.
// Set noSpin=true for non-interactive environments.
func NewStepSpinner(w io.Writer, noSpin bool) *StepSpinner {
	return &StepSpinner{w: w, noSpin: noSpin}
}

// Start begins a named step with an animated spinner (or static text).
func (ss *StepSpinner) Start(msg string) {
	ss.msg = msg
	if ss.noSpin {
		fmt.Fprintf(ss.w, "  %s", msg)
		return
	}
	ss.s = spinner.New(
		spinner.CharSets[14], // braille dots: ⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏
		80*time.Millisecond,
		spinner.WithWriter(ss.w),
	)
	ss.s.Prefix = "  "
	ss.s.Suffix = " " + msg
	ss.s.FinalMSG = ""
	ss.s.Start()
	ss.active = true
}

// Done completes the current step with a green checkmark.
func (ss *StepSpinner) Done() {
	ss.finish(StyleSuccess.Render(SymbolCheck))
}

// Fail completes the current step with a red cross.
func (ss *StepSpinner) Fail() {
	ss.finish(StyleError.Render(SymbolCross))
}

// End completes the current step with a step-specific outcome, e.g.
// "✓ 4.00" after a send.
func (ss *StepSpinner) End(ok bool, detail string) {
	mark := StyleSuccess.Render(SymbolCheck)
	if !ok {
		mark = StyleError.Render(SymbolCross)
	}
	if detail != "" {
		mark += " " + StyleDim.Render(detail)
	}
	ss.finish(mark)
}

func (ss *StepSpinner) finish(mark string) {
	if ss.noSpin {
		fmt.Fprintf(ss.w, " %s\n", mark)
		return
	}
	ss.Stop()
	fmt.Fprintf(ss.w, "\r  %s %s\n", ss.msg, mark)
}

// Stop halts the spinner without printing a status.
func (ss *StepSpinner) Stop() {
	if ss.s != nil && ss.active {
		ss.s.Stop()
		ss.active = false
	}
}
