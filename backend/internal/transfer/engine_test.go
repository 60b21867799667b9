package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"cinefm/backend/internal/types"
)

// writeScript 在临时目录中写入一个可执行的 sh 脚本
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

const fakeRsync = `src="$4"
case "$src" in
  *bad*) echo "rsync: link_stat failed" >&2; exit 23 ;;
esac
printf '      32,768  50%%    1.00MB/s    0:00:01\r'
printf '   2,097,152 100%%    2.00MB/s    0:00:00 (xfr#1, to-chk=0/1)\n'
exit 0
`

type recorder struct {
	mu       sync.Mutex
	progress []types.TransferProgress
	results  []types.TransferResult
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		Progress: func(p types.TransferProgress) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		Result: func(res types.TransferResult) {
			r.mu.Lock()
			r.results = append(r.results, res)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) byName() map[string]types.TransferResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]types.TransferResult, len(r.results))
	for _, res := range r.results {
		out[res.Name] = res
	}
	return out
}

func TestLocalCopy_OneItemFails(t *testing.T) {
	bin := t.TempDir()
	rsync := writeScript(t, bin, "rsync", fakeRsync)
	engine := NewLocal(&Runner{Logger: zerolog.Nop()}, rsync, zerolog.Nop())

	rec := &recorder{}
	names := []string{"a.txt", "bad.txt", "c.txt"}
	batch := engine.Copy(context.Background(), Request{
		Names:      names,
		DestPrefix: "/dst",
		SourceRoot: "/srv/left",
		DestRoot:   "/srv/right",
	}, rec.handlers())

	results := batch.Wait()
	if len(results) != len(names) {
		t.Fatalf("got %d results, want %d", len(results), len(names))
	}
	if batch.ID == "" {
		t.Error("batch must carry an id")
	}

	got := rec.byName()
	if len(got) != len(names) {
		t.Fatalf("handler saw %d results, want %d", len(got), len(names))
	}
	for _, name := range []string{"a.txt", "c.txt"} {
		res := got[name]
		if res.Status != types.StatusCopied {
			t.Errorf("%s: status %q, want copied", name, res.Status)
		}
		if want := fmt.Sprintf("%s → /dst/%s: copied", name, name); res.Message != want {
			t.Errorf("%s: message %q, want %q", name, res.Message, want)
		}
		if want := fmt.Sprintf("/srv/left/%s -> /srv/right/dst", name); res.LogPath != want {
			t.Errorf("%s: log path %q, want %q", name, res.LogPath, want)
		}
		if !strings.HasSuffix(res.LogMessage, " - 2.00MB - OK") {
			t.Errorf("%s: log message %q", name, res.LogMessage)
		}
	}

	bad := got["bad.txt"]
	if bad.Status != types.StatusError || bad.Message != "bad.txt → /dst/bad.txt: error" {
		t.Errorf("unexpected failure result %+v", bad)
	}
	if !strings.Contains(bad.LogMessage, "0.00MB - KO [") || !strings.Contains(bad.LogMessage, "code 23") {
		t.Errorf("failure log message %q", bad.LogMessage)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.progress) != 4 {
		t.Errorf("got %d progress events, want 4", len(rec.progress))
	}
	for _, p := range rec.progress {
		if p.Name != "a.txt" && p.Name != "c.txt" {
			t.Errorf("progress for unexpected item %+v", p)
		}
	}
}

func TestLocalCopy_MissingBinary(t *testing.T) {
	engine := NewLocal(&Runner{Logger: zerolog.Nop()}, filepath.Join(t.TempDir(), "no-rsync"), zerolog.Nop())
	results := engine.Copy(context.Background(), Request{Names: []string{"x"}, SourceRoot: "/a", DestRoot: "/b"}, Handlers{}).Wait()
	if len(results) != 1 || results[0].Status != types.StatusError {
		t.Fatalf("spawn failure should yield one error result, got %+v", results)
	}
}

func TestRunner_ProcessError(t *testing.T) {
	bin := t.TempDir()
	script := writeScript(t, bin, "tool", "echo oops >&2\nexit 3\n")
	err := (&Runner{Logger: zerolog.Nop()}).Run(context.Background(), Stdout, func(string) {}, script)

	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if pe.ExitCode != 3 || pe.Output != "oops" {
		t.Errorf("unexpected ProcessError %+v", pe)
	}
	if ExitCode(err) != 3 || ExitCode(nil) != 0 {
		t.Error("ExitCode helper mismatch")
	}
}

func TestRunner_Pty(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no pty")
	}
	bin := t.TempDir()
	script := writeScript(t, bin, "tool", "printf 'one\\rtwo\\n' >&2\nexit 0\n")

	var lines []string
	err := (&Runner{UsePty: true, Logger: zerolog.Nop()}).Run(context.Background(), Stdout, func(l string) {
		lines = append(lines, l)
	}, script)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %q", lines)
	}
}

func TestRemoteCopy_Wget(t *testing.T) {
	bin := t.TempDir()
	argsFile := filepath.Join(bin, "args")
	wget := writeScript(t, bin, "wget", fmt.Sprintf(`case "$*" in
  *broken*) echo "broken.mkv: No such file" >&2; exit 8 ;;
esac
for a in "$@"; do echo "$a" >> %q; done
printf 'm.mkv   10%%%%[=>         ]  1.00M  --.-KB/s    eta 1m\r' >&2
printf 'm.mkv   50%%%%[====>      ]  5.00M  2.50MB/s    eta 10s\r' >&2
printf 'm.mkv  100%%%%[==========>] 10.00M  3.10MB/s    in 3s\n' >&2
exit 0
`, argsFile))
	du := writeScript(t, bin, "du", `printf '42\t%s\n' "$2"`+"\n")

	engine := NewRemote(&Runner{Logger: zerolog.Nop()}, wget, du, nil, nil, zerolog.Nop())
	ep := types.EndpointConfig{Host: "ftp.example.org", User: "bob", Password: "s3cret", Folder: "movies", Protocol: "ftp"}

	rec := &recorder{}
	results := engine.Copy(context.Background(), ep, Request{
		Names:      []string{"/movies/m.mkv", "/movies/broken.mkv"},
		DestPrefix: "/incoming",
		SourceRoot: "/srv/remote",
		DestRoot:   "/srv/local",
	}, rec.handlers()).Wait()
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}

	got := rec.byName()
	ok := got["/movies/m.mkv"]
	if ok.Status != types.StatusCopied || !strings.HasSuffix(ok.LogMessage, " - 42MB - OK - 0") {
		t.Errorf("unexpected success result %+v", ok)
	}
	if ok.Message != "/movies/m.mkv → /incoming/m.mkv: copied" {
		t.Errorf("message %q", ok.Message)
	}
	broken := got["/movies/broken.mkv"]
	if broken.Status != types.StatusError || !strings.HasSuffix(broken.LogMessage, " - 8") || !strings.Contains(broken.LogMessage, "KO") {
		t.Errorf("unexpected failure result %+v", broken)
	}

	rec.mu.Lock()
	speeds := make([]string, 0, len(rec.progress))
	for _, p := range rec.progress {
		if p.Name != "/movies/m.mkv" || p.File != "m.mkv" || p.ETA != UnknownETA {
			t.Errorf("unexpected progress %+v", p)
		}
		speeds = append(speeds, p.Speed)
	}
	rec.mu.Unlock()
	if strings.Join(speeds, ",") != "00.0kB/s,2.50mB/s,3.10mB/s" {
		t.Errorf("speeds = %v", speeds)
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	args := string(raw)
	for _, want := range []string{"-P\n/srv/local/incoming\n", "--user=bob\n", "--password=s3cret\n", "ftp://ftp.example.org/m.mkv\n", "--show-progress\n"} {
		if !strings.Contains(args, want) {
			t.Errorf("wget args missing %q:\n%s", want, args)
		}
	}
}

func TestRemotePath(t *testing.T) {
	tests := []struct{ folder, name, want string }{
		{"movies", "/movies/a.mkv", "/a.mkv"},
		{"/movies/", "movies/sub/a.mkv", "/sub/a.mkv"},
		{"", "/a.mkv", "/a.mkv"},
		{"movies", "/other/a.mkv", "/other/a.mkv"},
	}
	for _, tt := range tests {
		if got := RemotePath(tt.folder, tt.name); got != tt.want {
			t.Errorf("RemotePath(%q, %q) = %q, want %q", tt.folder, tt.name, got, tt.want)
		}
	}
}

func TestWgetArgs_Defaults(t *testing.T) {
	args := WgetArgs(types.EndpointConfig{Host: "ftp://10.0.0.5/", Port: 2121}, "", "/a", "/dst")
	joined := strings.Join(args, " ")
	for _, want := range []string{"--user=anonymous", "--password=anonymous", "ftp://10.0.0.5:2121/a"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestRedact(t *testing.T) {
	got := redact([]string{"--user=bob", "--password=hunter2"})
	if got[1] != "--password=***" || got[0] != "--user=bob" {
		t.Errorf("redact = %v", got)
	}
}

// fakeWget 记录每次调用的参数，名字含 broken 的条目以退出码 8 失败
func fakeWget(t *testing.T, bin, argsFile string) string {
	t.Helper()
	return writeScript(t, bin, "wget", fmt.Sprintf(`case "$*" in
  *broken*) exit 8 ;;
esac
for a in "$@"; do echo "$a" >> %q; done
printf 'x  100%%%%[=====>] 1.00M  1.00MB/s    in 1s\n' >&2
exit 0
`, argsFile))
}

func TestRemoteCopy_PasswordLookupFails(t *testing.T) {
	bin := t.TempDir()
	argsFile := filepath.Join(bin, "args")
	wget := fakeWget(t, bin, argsFile)
	du := writeScript(t, bin, "du", `printf '1\t%s\n' "$2"`+"\n")

	lookup := func(types.EndpointConfig) (string, error) {
		return "", errors.New("keyring unavailable")
	}
	engine := NewRemote(&Runner{Logger: zerolog.Nop()}, wget, du, nil, lookup, zerolog.Nop())
	results := engine.Copy(context.Background(), types.EndpointConfig{Host: "ftp.example.org", Folder: "movies"}, Request{
		Names:      []string{"/movies/m.mkv"},
		DestPrefix: "/",
		SourceRoot: "/srv/remote",
		DestRoot:   "/srv/local",
	}, Handlers{}).Wait()

	if len(results) != 1 || results[0].Status != types.StatusCopied {
		t.Fatalf("a failed password lookup must fall back to anonymous, got %+v", results)
	}
	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"--user=anonymous\n", "--password=anonymous\n"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("wget args missing %q:\n%s", want, raw)
		}
	}
}

func TestRemoteCopy_OneItemFails(t *testing.T) {
	bin := t.TempDir()
	wget := fakeWget(t, bin, filepath.Join(bin, "args"))
	du := writeScript(t, bin, "du", `printf '3\t%s\n' "$2"`+"\n")
	engine := NewRemote(&Runner{Logger: zerolog.Nop()}, wget, du, nil, nil, zerolog.Nop())

	rec := &recorder{}
	names := []string{"/movies/a.mkv", "/movies/broken.mkv", "/movies/c.mkv"}
	results := engine.Copy(context.Background(), types.EndpointConfig{Host: "h", Folder: "movies"}, Request{
		Names:      names,
		DestPrefix: "/in",
		SourceRoot: "/srv/remote",
		DestRoot:   "/srv/local",
	}, rec.handlers()).Wait()
	if len(results) != len(names) {
		t.Fatalf("got %d results, want %d", len(results), len(names))
	}

	got := rec.byName()
	for _, name := range names {
		want := types.StatusCopied
		if strings.Contains(name, "broken") {
			want = types.StatusError
		}
		if got[name].Status != want {
			t.Errorf("%s: status %q, want %q", name, got[name].Status, want)
		}
	}
	if !strings.HasSuffix(got["/movies/broken.mkv"].LogMessage, " - 8") {
		t.Errorf("failure should carry the exit code: %q", got["/movies/broken.mkv"].LogMessage)
	}
}

func TestCopy_RefusesPathsOutsideRoots(t *testing.T) {
	bin := t.TempDir()
	argsFile := filepath.Join(bin, "args")
	rsync := writeScript(t, bin, "rsync", fmt.Sprintf("echo \"$4\" >> %q\nexit 0\n", argsFile))
	engine := NewLocal(&Runner{Logger: zerolog.Nop()}, rsync, zerolog.Nop())

	rec := &recorder{}
	results := engine.Copy(context.Background(), Request{
		Names:      []string{"../secret/shadow", "ok.txt"},
		DestPrefix: "/",
		SourceRoot: "/srv/left",
		DestRoot:   "/srv/right",
	}, rec.handlers()).Wait()
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	got := rec.byName()
	if got["../secret/shadow"].Status != types.StatusError || got["ok.txt"].Status != types.StatusCopied {
		t.Errorf("unexpected results %+v", got)
	}
	raw, _ := os.ReadFile(argsFile)
	if string(raw) != "/srv/left/ok.txt\n" {
		t.Errorf("rsync must only run for the confined item, ran for %q", raw)
	}

	// 目标前缀越界时所有条目都被拒绝
	results = engine.Copy(context.Background(), Request{
		Names:      []string{"ok.txt"},
		DestPrefix: "../../tmp",
		SourceRoot: "/srv/left",
		DestRoot:   "/srv/right",
	}, Handlers{}).Wait()
	if len(results) != 1 || results[0].Status != types.StatusError {
		t.Errorf("escaping destination must be refused, got %+v", results)
	}
	if raw, _ := os.ReadFile(argsFile); string(raw) != "/srv/left/ok.txt\n" {
		t.Errorf("rsync must not run for an escaping destination, ran for %q", raw)
	}
}
