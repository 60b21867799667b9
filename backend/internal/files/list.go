// Package files implements the panel-side filesystem operations:
// enumeration, directory creation and removal, free space and disk usage.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"cinefm/backend/internal/types"
	"cinefm/backend/internal/users"
)

// ListError is returned instead of a listing. Its message is shown to the user as-is.
type ListError struct {
	Path string
	Err  error
}

func (e *ListError) Error() string {
	switch {
	case errors.Is(e.Err, fs.ErrNotExist):
		return fmt.Sprintf("%s does not exist", e.Path)
	case errors.Is(e.Err, fs.ErrPermission):
		return fmt.Sprintf("Not enough permissions to access %s", e.Path)
	}
	return fmt.Sprintf("Error accessing %s", e.Path)
}

func (e *ListError) Unwrap() error { return e.Err }

// ListOptions controls what List includes.
type ListOptions struct {
	IncludeParent bool
	IncludeHidden bool
}

// Enumerator lists directories, resolving owners through a users table.
type Enumerator struct {
	users  *users.Table
	logger zerolog.Logger
}

// NewEnumerator returns an Enumerator backed by table.
func NewEnumerator(table *users.Table, logger zerolog.Logger) *Enumerator {
	return &Enumerator{users: table, logger: logger}
}

// IsHiddenName reports whether name is a dotfile. "." and ".." are not hidden.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}

// List returns the immediate children of dir in the order the OS yields them.
// Any failure to open the directory is reported as a *ListError.
func (e *Enumerator) List(dir string, opts ListOptions) ([]types.DirectoryEntry, error) {
	dir = filepath.Clean(dir)

	f, err := os.Open(dir)
	if err != nil {
		return nil, &ListError{Path: dir, Err: err}
	}
	defer f.Close()

	// f.ReadDir 不排序，保持目录本身的顺序
	children, err := f.ReadDir(-1)
	if err != nil {
		return nil, &ListError{Path: dir, Err: err}
	}

	entries := make([]types.DirectoryEntry, 0, len(children)+1)
	if opts.IncludeParent {
		entries = append(entries, types.DirectoryEntry{
			Path:  filepath.Dir(dir),
			Name:  "..",
			Type:  types.KindDir,
			User:  types.Placeholder,
			Size:  types.Placeholder,
			Perms: types.NoPermissions,
		})
	}

	for _, child := range children {
		name := child.Name()
		if !opts.IncludeHidden && IsHiddenName(name) {
			continue
		}
		entries = append(entries, e.describe(filepath.Join(dir, name), name))
	}
	return entries, nil
}

// describe stats one child, following symlinks. A failed stat degrades to placeholders.
func (e *Enumerator) describe(fullPath, name string) types.DirectoryEntry {
	entry := types.DirectoryEntry{
		Path:  fullPath,
		Name:  name,
		Type:  types.KindUnknown,
		User:  types.Placeholder,
		Size:  types.Placeholder,
		Perms: types.NoPermissions,
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		e.logger.Debug().Err(err).Str("path", fullPath).Msg("stat failed")
		return entry
	}

	entry.Type = types.KindFile
	if info.IsDir() {
		entry.Type = types.KindDir
	}
	if uid, ok := ownerUID(info); ok {
		entry.User = e.users.Name(uid)
	}
	entry.Size = FormatSize(info.Size(), entry.Type)
	entry.Perms = PermString(info.Mode())
	return entry
}

// Unroot strips root from every entry path so clients only see panel-relative paths.
func Unroot(entries []types.DirectoryEntry, root string) []types.DirectoryEntry {
	if root == "/" || root == "" {
		return entries
	}
	out := make([]types.DirectoryEntry, len(entries))
	for i, e := range entries {
		e.Path = UnrootPath(e.Path, root)
		out[i] = e
	}
	return out
}

// UnrootPath strips root from p; a path equal to root becomes "/".
func UnrootPath(p, root string) string {
	if root == "/" || root == "" {
		return p
	}
	if p == root {
		return "/"
	}
	if strings.HasPrefix(p, root+"/") {
		return p[len(root):]
	}
	// 不在 root 之下 (例如 root 的父目录)，原样返回
	return p
}

// ErrOutsideRoot is returned when a relative path escapes its panel root.
var ErrOutsideRoot = errors.New("path escapes panel root")

// Resolve joins a panel-relative path to root and refuses paths that escape it.
func Resolve(root string, rel ...string) (string, error) {
	parts := append([]string{root}, rel...)
	joined := filepath.Join(parts...)
	if root == "/" {
		return joined, nil
	}
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return joined, nil
}
