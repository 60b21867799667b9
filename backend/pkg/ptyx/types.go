package ptyx

import (
	"io"
	"os"
)

// Pty is a started pseudo-terminal with a child process attached.
type Pty interface {
	// File returns the PTY master.
	File() *os.File

	Resize(rows, cols uint16) error

	// Out merges the child's stdout and stderr as a terminal would show them.
	Out() io.Reader

	Close() error
}

// Winsize is a terminal size definition.
type Winsize struct {
	Rows uint16
	Cols uint16
}

// DefaultWinsize is wide enough that progress lines are never wrapped.
var DefaultWinsize = &Winsize{Rows: 24, Cols: 200}
