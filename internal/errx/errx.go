// Package errx provides small helpers for wrapping sentinel errors.
//
// The convention throughout the module is a per-file block of sentinel
// errors plus errx.Wrap / errx.With at the failure site, so callers can
// branch with errors.Is while messages stay descriptive.
package errx

import "fmt"

// Wrap annotates base with cause. Both errors remain matchable
// via errors.Is / errors.As.
func Wrap(base, cause error) error {
	return fmt.Errorf("%w: %w", base, cause)
}

// With annotates base with a formatted suffix. The format string is
// appended verbatim, so it usually starts with ": " or " ". Verbs in
// format (including %w) refer to args.
func With(base error, format string, args ...interface{}) error {
	return fmt.Errorf("%w"+format, append([]interface{}{base}, args...)...)
}
