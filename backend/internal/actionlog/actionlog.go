// Package actionlog keeps the append-only record of every user action.
package actionlog

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Recorder is what the file manager needs from the action log.
type Recorder interface {
	Record(user, action string, paths []string, root, message string)
}

// Log writes one line per action: "<date> <host> <proc>[<pid>]: <user>: <action>: <paths>: "<message>"".
type Log struct {
	mu     sync.Mutex
	out    zerolog.Logger
	closer io.Closer
	prefix func() string
}

// Open opens (or creates) the log file for appending.
func Open(logPath string) (*Log, error) {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("error opening log file at %s (does %s exist with correct permissions?): %w",
			logPath, filepath.Dir(logPath), err)
	}
	l := New(f)
	l.closer = f
	return l, nil
}

// New returns a Log writing to w.
func New(w io.Writer) *Log {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		PartsOrder: []string{zerolog.MessageFieldName},
	}
	return &Log{
		out:    zerolog.New(cw),
		prefix: defaultPrefix,
	}
}

func defaultPrefix() string {
	proc := filepath.Base(os.Args[0])
	if proc == "" || proc == "." {
		proc = "cinefm"
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return fmt.Sprintf("%s %s %s[%d]", time.Now().Format("Jan _2 15:04:05"), host, proc, os.Getpid())
}

// Print appends a free-form line.
func (l *Log) Print(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// 只输出消息本身，不附带级别和时间字段，保证行格式稳定
	l.out.Log().Msg(l.prefix() + ": " + message)
}

// Record appends an action line. Paths are joined to root.
func (l *Log) Record(user, action string, paths []string, root, message string) {
	joined := make([]string, 0, len(paths))
	for _, p := range paths {
		joined = append(joined, path.Join(root, p))
	}
	l.Print(fmt.Sprintf("%s: %s: %s: %q", user, action, strings.Join(joined, ", "), message))
}

// Close releases the underlying file.
func (l *Log) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

var newlines = regexp.MustCompile(`\n+`)

// Flatten turns a multi-line result message into a single log-friendly line.
func Flatten(message string) string {
	message = strings.TrimRight(message, "\n")
	message = newlines.ReplaceAllString(message, " | ")
	return strings.ReplaceAll(message, ":", " ->")
}
