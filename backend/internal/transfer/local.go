package transfer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cinefm/backend/internal/metrics"
	"cinefm/backend/internal/types"
)

// Local copies items between two roots on this machine with rsync.
type Local struct {
	Runner    *Runner
	RsyncPath string
	Logger    zerolog.Logger
}

// NewLocal returns a Local engine using rsyncPath (empty means "rsync" from PATH).
func NewLocal(runner *Runner, rsyncPath string, logger zerolog.Logger) *Local {
	if rsyncPath == "" {
		rsyncPath = "rsync"
	}
	return &Local{Runner: runner, RsyncPath: rsyncPath, Logger: logger}
}

// Copy dispatches one rsync per name and returns immediately. Every item
// reports exactly one result; a failing item does not affect the others.
func (l *Local) Copy(ctx context.Context, req Request, h Handlers) *Batch {
	batch := newBatch()
	for _, it := range req.items() {
		it := it
		batch.run(EngineLocal, h, func() types.TransferResult {
			return l.copyOne(ctx, it, h)
		})
	}
	return batch
}

func (l *Local) copyOne(ctx context.Context, it item, h Handlers) types.TransferResult {
	if it.err != nil {
		l.Logger.Warn().Err(it.err).Str("item", it.name).Msg("refusing copy")
		return refused(it, false)
	}
	parser := &RsyncParser{Name: it.name}
	start := time.Now()

	err := l.Runner.Run(ctx, Stdout, func(line string) {
		if p, ok := parser.Parse(line); ok {
			h.progress(p)
		} else {
			metrics.ProgressLineSkipped(EngineLocal)
		}
	}, l.RsyncPath, "-az", "--no-i-r", "--info=progress2", it.srcPath, it.dstPath)

	if err != nil {
		l.Logger.Warn().Err(err).Str("src", it.srcPath).Str("dst", it.dstPath).Msg("rsync failed")
	}
	return newResult(it, err, time.Since(start), parser.SizeMB(), false)
}
