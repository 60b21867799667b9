package transfer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"cinefm/backend/pkg/ptyx"
)

// Stream selects which output of a child process carries its progress.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// maxLine bounds a single progress line.
const maxLine = 1 << 20

// Runner spawns copy tools and feeds their progress output line by line.
type Runner struct {
	// UsePty runs the child on a pseudo-terminal; both streams are then merged.
	UsePty bool
	Logger zerolog.Logger
}

// Run starts name with args, calls onLine for every non-blank line of the
// selected stream (lines end at '\r' or '\n'), and waits for the exit.
// A non-zero exit or a spawn failure is returned as *ProcessError.
func (r *Runner) Run(ctx context.Context, stream Stream, onLine func(string), name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	r.Logger.Debug().Str("cmd", name).Strs("args", redact(args)).Bool("pty", r.UsePty).Msg("spawning")

	if r.UsePty {
		return r.runPty(cmd, onLine)
	}

	var rest tailBuffer
	var out io.ReadCloser
	var err error
	if stream == Stdout {
		cmd.Stderr = &rest
		out, err = cmd.StdoutPipe()
	} else {
		cmd.Stdout = &rest
		out, err = cmd.StderrPipe()
	}
	if err != nil {
		return &ProcessError{Command: name, ExitCode: -1, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &ProcessError{Command: name, ExitCode: -1, Err: err}
	}

	if err := scanLines(out, onLine); err != nil {
		r.Logger.Warn().Err(err).Str("cmd", name).Msg("reading progress")
		_, _ = io.Copy(io.Discard, out)
	}
	return waitErr(name, cmd.Wait(), rest.String())
}

func (r *Runner) runPty(cmd *exec.Cmd, onLine func(string)) error {
	name := cmd.Path
	p, err := ptyx.Start(cmd)
	if err != nil {
		return &ProcessError{Command: name, ExitCode: -1, Err: err}
	}
	defer p.Close()

	if err := scanLines(p.Out(), onLine); err != nil {
		if ptyx.ReadErr(err) != io.EOF {
			r.Logger.Warn().Err(err).Str("cmd", name).Msg("reading pty")
		}
	}
	return waitErr(name, cmd.Wait(), "")
}

func waitErr(name string, err error, output string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ProcessError{Command: name, ExitCode: exitErr.ExitCode(), Err: err, Output: output}
	}
	return &ProcessError{Command: name, ExitCode: -1, Err: err, Output: output}
}

// scanLines reads r until EOF and returns the read error, if any.
func scanLines(r io.Reader, onLine func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)
	scanner.Split(splitCRLF)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		onLine(line)
	}
	return scanner.Err()
}

// splitCRLF 以 \r 或 \n 分行，进度条用 \r 覆盖同一行
func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// redact hides --password= values in logged arguments.
func redact(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, "--password=") {
			a = "--password=***"
		}
		out[i] = a
	}
	return out
}

// tailBuffer keeps the last tailSize bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

const tailSize = 512

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailSize {
		t.buf = t.buf[len(t.buf)-tailSize:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
