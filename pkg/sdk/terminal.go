//go:build unix

package sdk

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/jingkaihe/matchlock-go/internal/errx"
)

var ErrSetRawMode = errors.New("setting raw mode")

// AttachInteractive runs a command in TTY mode attached to the calling
// terminal: stdin is switched to raw mode for the duration of the call and
// terminal size changes are forwarded to the guest.
func (c *Client) AttachInteractive(ctx context.Context, command string) (*ExecInteractiveResult, error) {
	fd := int(os.Stdin.Fd())

	var rows, cols uint16
	if w, h, err := term.GetSize(fd); err == nil {
		cols = uint16(w)
		rows = uint16(h)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, errx.Wrap(ErrSetRawMode, err)
	}
	defer term.Restore(fd, oldState)

	resizeCh := make(chan [2]uint16, 1)
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	defer signal.Stop(winch)

	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()
	go func() {
		for {
			select {
			case <-pumpCtx.Done():
				return
			case <-winch:
				if w, h, err := term.GetSize(fd); err == nil {
					select {
					case resizeCh <- [2]uint16{uint16(h), uint16(w)}:
					default:
					}
				}
			}
		}
	}()

	return c.ExecInteractive(ctx, command, &ExecInteractiveOptions{
		Rows:   rows,
		Cols:   cols,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Resize: resizeCh,
	})
}
