package ui

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
)

const spinnerDelay = 100 * time.Millisecond

// NewSpinner returns a stopped spinner writing to w with message after the
// animation. It stays silent when w is not a terminal.
func NewSpinner(w io.Writer, message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], spinnerDelay, spinner.WithWriter(w))
	s.Suffix = " " + message
	return s
}

// Step swaps the spinner message for the next phase of a long operation
func Step(s *spinner.Spinner, message string) {
	s.Lock()
	s.Suffix = " " + message
	s.Unlock()
}
