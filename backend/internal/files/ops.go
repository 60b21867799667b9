package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Mkdir creates root/dir/name with parents and chmods it to mode (0 skips the chmod).
// It always returns a message for the user.
func Mkdir(root, dir, name string, mode os.FileMode) string {
	display := path.Join(dir, name)

	target, err := Resolve(root, dir, name)
	if err != nil {
		return fmt.Sprintf("error trying to create %s", display)
	}

	if err := writable(nearestExisting(filepath.Dir(target))); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Sprintf("not enough permissions to create %s", display)
		}
		return fmt.Sprintf("error trying to create %s", display)
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Sprintf("not enough permissions to create %s", display)
		}
		return fmt.Sprintf("error trying to create %s", display)
	}
	if mode != 0 {
		if err := os.Chmod(target, mode); err != nil {
			return fmt.Sprintf("%s: created (chmod failed)", display)
		}
	}
	return fmt.Sprintf("%s: created", display)
}

// nearestExisting walks up from dir until it finds a path that exists.
func nearestExisting(dir string) string {
	for {
		if _, err := os.Lstat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// Remove deletes every name (relative to root) recursively, without following symlinks.
// Each name gets its own line in the returned message; a failure does not stop the others.
func Remove(root string, names []string) string {
	var b strings.Builder
	for _, name := range names {
		b.WriteString(removeOne(root, name))
		b.WriteByte('\n')
	}
	return b.String()
}

func removeOne(root, name string) string {
	target, err := Resolve(root, name)
	if err != nil || target == root {
		return fmt.Sprintf("%s: not able to delete", name)
	}
	if _, err := os.Lstat(target); err != nil {
		return fmt.Sprintf("%s: not able to delete", name)
	}
	if err := writable(filepath.Dir(target)); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Sprintf("%s: not enough permission to delete", name)
		}
		return fmt.Sprintf("%s: not able to delete", name)
	}
	if err := os.RemoveAll(target); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Sprintf("%s: not enough permission to delete", name)
		}
		return fmt.Sprintf("%s: not able to delete", name)
	}
	return fmt.Sprintf("%s: deleted", name)
}
