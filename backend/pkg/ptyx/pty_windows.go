//go:build windows

package ptyx

import (
	"errors"
	"os/exec"
)

// ErrUnsupported is returned on platforms without POSIX pseudo-terminals.
var ErrUnsupported = errors.New("pty: not supported on this platform")

func Start(*exec.Cmd) (Pty, error) { return nil, ErrUnsupported }

func StartWithSize(*exec.Cmd, *Winsize) (Pty, error) { return nil, ErrUnsupported }
