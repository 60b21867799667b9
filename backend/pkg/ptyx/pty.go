package ptyx

import (
	"errors"
	"io"
	"syscall"
)

// ReadErr maps the error returned by reading the PTY master once the child has
// exited (EIO on Linux) to io.EOF; other errors pass through.
func ReadErr(err error) error {
	if errors.Is(err, syscall.EIO) {
		return io.EOF
	}
	return err
}
