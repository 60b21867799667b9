package actionlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecord_LineFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.prefix = func() string { return "Oct 19 10:00:00 host cinefm[1]" }

	l.Record("10.0.0.2", "rm", []string{"a.txt", "dir/b"}, "/srv", "a.txt -> deleted")

	got := strings.TrimSpace(buf.String())
	want := `Oct 19 10:00:00 host cinefm[1]: 10.0.0.2: rm: /srv/a.txt, /srv/dir/b: "a.txt -> deleted"`
	if got != want {
		t.Errorf("line mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestOpen_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.log")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	l.Print("first")
	l.Print("second")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	if !strings.HasSuffix(lines[1], ": second") {
		t.Errorf("unexpected second line %q", lines[1])
	}
}

func TestOpen_MissingDirectoryFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "actions.log")
	if _, err := Open(path); err == nil {
		t.Error("Open should fail when the directory does not exist")
	}
}

func TestFlatten(t *testing.T) {
	in := "a.txt: deleted\nb.txt: not able to delete\n"
	want := "a.txt -> deleted | b.txt -> not able to delete"
	if got := Flatten(in); got != want {
		t.Errorf("Flatten = %q, want %q", got, want)
	}
}
