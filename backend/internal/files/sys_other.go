//go:build !unix

package files

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("not supported on this platform")

func ownerUID(os.FileInfo) (uint32, bool) { return 0, false }

func writable(path string) error {
	_, err := os.Stat(path)
	return err
}

func availableBytes(string) (uint64, error) { return 0, errUnsupported }
