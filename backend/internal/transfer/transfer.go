// Package transfer copies panel items with external tools (rsync locally,
// wget or sftp from a remote endpoint) and turns their output into
// progress and result events.
package transfer

import (
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"cinefm/backend/internal/files"
	"cinefm/backend/internal/metrics"
	"cinefm/backend/internal/types"
)

// Engine names, used as metric labels and in the action log.
const (
	EngineLocal  = "cp"
	EngineRemote = "ftpCp"
)

// Request describes one copy batch. Names are relative to SourceRoot;
// DestPrefix is relative to DestRoot.
type Request struct {
	Names      []string
	DestPrefix string
	SourceRoot string
	DestRoot   string
}

// item 是批次中的单个条目，对应一次子进程调用
type item struct {
	name    string
	srcPath string
	dstPath string
	dstShow string
	// err 非空表示路径越出了面板根目录，该条目不会启动子进程
	err error
}

// items resolves every name against SourceRoot and DestPrefix against DestRoot.
func (r Request) items() []item {
	dstPath, dstErr := files.Resolve(r.DestRoot, r.DestPrefix)
	if dstErr != nil {
		dstErr = fmt.Errorf("destination %s: %w", r.DestPrefix, dstErr)
		dstPath = r.DestPrefix
	}
	out := make([]item, 0, len(r.Names))
	for _, name := range r.Names {
		it := item{
			name:    name,
			dstPath: dstPath,
			dstShow: path.Join(r.DestPrefix, path.Base(name)),
			err:     dstErr,
		}
		src, err := files.Resolve(r.SourceRoot, name)
		if err != nil {
			src = name
			if it.err == nil {
				it.err = fmt.Errorf("source %s: %w", name, err)
			}
		}
		it.srcPath = src
		out = append(out, it)
	}
	return out
}

// refused is the result of an item whose paths escape the panel roots.
func refused(it item, withCode bool) types.TransferResult {
	return newResult(it, it.err, 0, "0.00", withCode)
}

// Handlers receive the events of a batch. Both may be called concurrently
// from different items; either may be nil.
type Handlers struct {
	Progress func(types.TransferProgress)
	Result   func(types.TransferResult)
}

func (h Handlers) progress(p types.TransferProgress) {
	if h.Progress != nil {
		h.Progress(p)
	}
}

// Batch tracks the items dispatched by one copy request.
type Batch struct {
	ID string

	wg      sync.WaitGroup
	mu      sync.Mutex
	results []types.TransferResult
}

func newBatch() *Batch {
	return &Batch{ID: uuid.NewString()}
}

// run starts fn for one item; its result is recorded and handed to h.Result.
func (b *Batch) run(engine string, h Handlers, fn func() types.TransferResult) {
	b.wg.Add(1)
	metrics.TransferStarted(engine)
	go func() {
		defer b.wg.Done()
		start := time.Now()
		res := fn()
		metrics.TransferFinished(engine, string(res.Status), time.Since(start))

		b.mu.Lock()
		b.results = append(b.results, res)
		b.mu.Unlock()
		if h.Result != nil {
			h.Result(res)
		}
	}()
}

// Wait blocks until every item has reported and returns the results in
// completion order.
func (b *Batch) Wait() []types.TransferResult {
	b.wg.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.TransferResult, len(b.results))
	copy(out, b.results)
	return out
}

// ProcessError is a non-zero exit or spawn failure of a copy tool.
type ProcessError struct {
	Command  string
	ExitCode int // -1 when the process could not be started
	Err      error
	Output   string // tail of the stream that was not parsed
}

func (e *ProcessError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// ExitCode returns the exit code carried by err, 0 for nil and -1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe.ExitCode
	}
	return -1
}

// FormatElapsed renders a duration for the action log, rounded to milliseconds ("0s" when zero).
func FormatElapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

func newResult(it item, err error, elapsed time.Duration, sizeMB string, withCode bool) types.TransferResult {
	res := types.TransferResult{
		Name:    it.name,
		LogPath: fmt.Sprintf("%s -> %s", it.srcPath, it.dstPath),
	}
	logMessage := fmt.Sprintf("%s - %sMB", FormatElapsed(elapsed), sizeMB)

	if err == nil {
		res.Status = types.StatusCopied
		res.Message = fmt.Sprintf("%s → %s: copied", it.name, it.dstShow)
		res.LogMessage = logMessage + " - OK"
	} else {
		res.Status = types.StatusError
		res.Message = fmt.Sprintf("%s → %s: error", it.name, it.dstShow)
		res.LogMessage = fmt.Sprintf("%s - KO [%v]", logMessage, err)
	}
	if withCode {
		res.LogMessage = fmt.Sprintf("%s - %d", res.LogMessage, ExitCode(err))
	}
	return res
}
