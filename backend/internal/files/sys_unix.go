//go:build unix

package files

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func ownerUID(info os.FileInfo) (uint32, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return st.Uid, true
}

// writable reports whether the current process may write to path.
func writable(path string) error {
	return unix.Access(path, unix.W_OK)
}

// availableBytes returns the space available to unprivileged users on the filesystem of dir.
func availableBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
