package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cinefm/backend/internal/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLs_JSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "movies"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "ls", dir, "--json", "--parent")
	if err != nil {
		t.Fatalf("ls failed: %v", err)
	}
	var entries []types.DirectoryEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("bad json %q: %v", out, err)
	}
	if len(entries) != 2 || entries[0].Name != ".." || entries[1].Name != "movies" {
		t.Errorf("unexpected entries %+v", entries)
	}

	out, err = run(t, "ls", dir, "--hidden")
	if err != nil {
		t.Fatalf("ls failed: %v", err)
	}
	if !strings.Contains(out, ".hidden") || !strings.Contains(out, "movies") {
		t.Errorf("table output missing entries:\n%s", out)
	}
}

func TestLs_MissingDir(t *testing.T) {
	if _, err := run(t, "ls", filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("listing a missing directory should fail")
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	if _, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yml"), "ls", t.TempDir()); err == nil {
		t.Error("an explicit missing config file should be an error")
	}
}

const fakeRsync = `#!/bin/sh
case "$4" in
  *bad*) echo "rsync: failed" >&2; exit 23 ;;
esac
printf '   1,048,576 100%%    1.00MB/s    0:00:00\n'
exit 0
`

func writeCpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	rsync := filepath.Join(dir, "rsync")
	if err := os.WriteFile(rsync, []byte(fakeRsync), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(cfg, []byte("rsync-path: "+rsync+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestCp(t *testing.T) {
	cfg := writeCpConfig(t)
	out, err := run(t, "--config", cfg, "cp", "--from", "/src", "--to", "/dst", "--prefix", "/in", "a.mkv", "b.mkv")
	if err != nil {
		t.Fatalf("cp failed: %v", err)
	}
	for _, want := range []string{"a.mkv → /in/a.mkv: copied", "b.mkv → /in/b.mkv: copied"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCp_FailureExitsNonZero(t *testing.T) {
	cfg := writeCpConfig(t)
	out, err := run(t, "--config", cfg, "cp", "--from", "/src", "--to", "/dst", "ok.mkv", "bad.mkv")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 items failed") {
		t.Fatalf("expected a failure, got %v", err)
	}
	if !strings.Contains(out, "bad.mkv → /bad.mkv: error") {
		t.Errorf("output missing failure line:\n%s", out)
	}
}
