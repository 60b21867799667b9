package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"cinefm/backend/internal/types"
	"cinefm/backend/internal/users"
)

func newTestEnumerator() *Enumerator {
	table := users.NewTable(map[uint32]string{uint32(os.Getuid()): "tester"})
	return NewEnumerator(table, zerolog.Nop())
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0.0 B"},
		{999, "999.0 B"},
		{1000, "1.0 KB"},
		{1500, "1.5 KB"},
		{999999, "1000.0 KB"},
		{1000000, "1.0 MB"},
		{2500000, "2.5 MB"},
		{1000000000, "1.0 GB"},
		{12300000000, "12.3 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.size, types.KindFile); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
		if got := FormatSize(tt.size, types.KindDir); got != types.Placeholder {
			t.Errorf("FormatSize(%d, dir) = %q, want placeholder", tt.size, got)
		}
	}
}

func TestPermString_AllMasks(t *testing.T) {
	for m := 0; m < 512; m++ {
		got := PermString(os.FileMode(m))
		if len(got) != 9 {
			t.Fatalf("PermString(%o) has length %d", m, len(got))
		}
		for i := 0; i < 9; i++ {
			bitSet := m&(0o400>>i) != 0
			if (got[i] == '-') == bitSet {
				t.Fatalf("PermString(%o) = %q: position %d wrong", m, got, i)
			}
		}
	}
	if got := PermString(0o754); got != "rwxr-xr--" {
		t.Errorf("PermString(0754) = %q", got)
	}
}

func TestList_EmptyDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "empty")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := newTestEnumerator().List(dir, ListOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected an empty, non-nil listing, got %#v", entries)
	}
}

func TestList_ParentEntry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o640); err != nil {
		t.Fatal(err)
	}
	e := newTestEnumerator()

	with, err := e.List(dir+"/", ListOptions{IncludeParent: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(with) != 2 || with[0].Name != ".." {
		t.Fatalf("expected '..' first, got %+v", with)
	}
	if with[0].Path != filepath.Dir(dir) || with[0].Perms != types.NoPermissions {
		t.Errorf("unexpected parent entry %+v", with[0])
	}

	without, err := e.List(dir, ListOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, entry := range without {
		if entry.Name == ".." {
			t.Error("'..' must not appear without IncludeParent")
		}
	}
}

func TestList_Metadata(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(file, make([]byte, 1500), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(file, 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("sub", filepath.Join(dir, "link")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("missing-target", filepath.Join(dir, "dangling")); err != nil {
		t.Fatal(err)
	}

	entries, err := newTestEnumerator().List(dir, ListOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	byName := make(map[string]types.DirectoryEntry)
	for _, e := range entries {
		byName[e.Name] = e
	}

	movie := byName["movie.mkv"]
	if movie.Type != types.KindFile || movie.Size != "1.5 KB" || movie.Perms != "rw-r-----" || movie.User != "tester" {
		t.Errorf("unexpected file entry %+v", movie)
	}
	if movie.Path != file {
		t.Errorf("Path = %q, want %q", movie.Path, file)
	}
	if sub := byName["sub"]; sub.Type != types.KindDir || sub.Size != types.Placeholder {
		t.Errorf("unexpected dir entry %+v", sub)
	}
	if link := byName["link"]; link.Type != types.KindDir {
		t.Errorf("symlink to dir should resolve as dir, got %+v", link)
	}
	dangling := byName["dangling"]
	if dangling.Type != types.KindUnknown || dangling.User != types.Placeholder || dangling.Perms != types.NoPermissions {
		t.Errorf("failed stat should degrade to placeholders, got %+v", dangling)
	}
}

func TestList_Hidden(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{".hidden", "visible"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	e := newTestEnumerator()

	entries, _ := e.List(dir, ListOptions{})
	if len(entries) != 1 || entries[0].Name != "visible" {
		t.Errorf("hidden file should be skipped, got %+v", entries)
	}
	entries, _ = e.List(dir, ListOptions{IncludeHidden: true})
	if len(entries) != 2 {
		t.Errorf("hidden file should be listed, got %+v", entries)
	}
}

func TestList_Errors(t *testing.T) {
	e := newTestEnumerator()
	missing := filepath.Join(t.TempDir(), "nope")

	_, err := e.List(missing, ListOptions{})
	var listErr *ListError
	if !errors.As(err, &listErr) {
		t.Fatalf("expected ListError, got %v", err)
	}
	if !strings.Contains(err.Error(), "does not exist") || !strings.Contains(err.Error(), missing) {
		t.Errorf("unexpected message %q", err.Error())
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = e.List(file, ListOptions{})
	if err == nil || !strings.HasPrefix(err.Error(), "Error accessing") {
		t.Errorf("listing a file should give the generic message, got %v", err)
	}

	if os.Geteuid() != 0 {
		locked := filepath.Join(t.TempDir(), "locked")
		if err := os.Mkdir(locked, 0o000); err != nil {
			t.Fatal(err)
		}
		defer os.Chmod(locked, 0o755)
		_, err = e.List(locked, ListOptions{})
		if err == nil || !strings.HasPrefix(err.Error(), "Not enough permissions") {
			t.Errorf("expected permission message, got %v", err)
		}
	}
}

func TestUnroot(t *testing.T) {
	entries := []types.DirectoryEntry{
		{Path: "/srv", Name: ".."},
		{Path: "/srv/media/a", Name: "a"},
	}
	got := Unroot(entries, "/srv/media")
	if got[0].Path != "/srv" || got[1].Path != "/a" {
		t.Errorf("unexpected unrooted paths %+v", got)
	}
	if UnrootPath("/srv/media", "/srv/media") != "/" {
		t.Error("root itself should become /")
	}
	if UnrootPath("/srv/mediax/a", "/srv/media") != "/srv/mediax/a" {
		t.Error("sibling with common prefix must not be unrooted")
	}
	if got := Unroot(entries, "/"); got[1].Path != "/srv/media/a" {
		t.Error("root / keeps paths")
	}
}

func TestResolve(t *testing.T) {
	if p, err := Resolve("/srv", "a", "b"); err != nil || p != "/srv/a/b" {
		t.Errorf("Resolve = %q, %v", p, err)
	}
	if _, err := Resolve("/srv", "../etc/passwd"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("expected ErrOutsideRoot, got %v", err)
	}
	if p, err := Resolve("/", "etc"); err != nil || p != "/etc" {
		t.Errorf("Resolve under / = %q, %v", p, err)
	}
}

func TestMkdir(t *testing.T) {
	root := t.TempDir()

	msg := Mkdir(root, "/", "new", 0o777)
	if msg != "/new: created" {
		t.Errorf("unexpected message %q", msg)
	}
	info, err := os.Stat(filepath.Join(root, "new"))
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
	if info.Mode().Perm() != 0o777 {
		t.Errorf("mode = %o, want 0777", info.Mode().Perm())
	}

	if msg := Mkdir(root, "/deep/er", "x", 0); msg != "/deep/er/x: created" {
		t.Errorf("nested mkdir message %q", msg)
	}

	if msg := Mkdir(root, "/", "../escape", 0); !strings.HasPrefix(msg, "error trying to create") {
		t.Errorf("escaping path should fail, got %q", msg)
	}
}

func TestRemove_ContinuesAfterFailure(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "dir", "inner"), 0o755); err != nil {
		t.Fatal(err)
	}

	msg := Remove(root, []string{"a.txt", "missing", "dir"})
	lines := strings.Split(strings.TrimSpace(msg), "\n")
	want := []string{"a.txt: deleted", "missing: not able to delete", "dir: deleted"}
	if len(lines) != len(want) {
		t.Fatalf("got %q", msg)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if _, err := os.Stat(filepath.Join(root, "dir")); !os.IsNotExist(err) {
		t.Error("dir should be gone")
	}
}

func TestRemove_RefusesRootAndEscapes(t *testing.T) {
	root := t.TempDir()
	msg := Remove(root, []string{"/", "../x"})
	if strings.Count(msg, "not able to delete") != 2 {
		t.Errorf("unexpected message %q", msg)
	}
	if _, err := os.Stat(root); err != nil {
		t.Error("root must survive")
	}
}

func TestFree(t *testing.T) {
	got := Free(t.TempDir())
	if got == NoFree {
		t.Skip("statfs not available")
	}
	if !strings.Contains(got, ".") || len(got[strings.Index(got, ".")+1:]) != 2 {
		t.Errorf("Free = %q, want two decimals", got)
	}
	if Free(filepath.Join(t.TempDir(), "missing")) != NoFree {
		t.Error("missing dir should give the placeholder")
	}
}

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "du")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nprintf '42\\t%s\\n' \"$2\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := DiskUsage(context.Background(), script, "/some/path"); got != "42" {
		t.Errorf("DiskUsage = %q, want 42", got)
	}
	if got := DiskUsage(context.Background(), filepath.Join(dir, "no-du"), "/x"); got != "0" {
		t.Errorf("DiskUsage with missing binary = %q, want 0", got)
	}
}
