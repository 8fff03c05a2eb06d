package api

import shellquote "github.com/kballard/go-shellquote"

// ShellQuoteArgs joins argv into a single shell command string, quoting
// each argument so that a POSIX shell splits it back into the original args.
func ShellQuoteArgs(args []string) string {
	return shellquote.Join(args...)
}
