package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"cinefm/backend/internal/config"
	"cinefm/backend/internal/transfer"
	"cinefm/backend/internal/types"
)

func newCpCmd(root *rootOptions) *cobra.Command {
	var from, to, prefix string
	cmd := &cobra.Command{
		Use:   "cp --from <root> --to <root> [--prefix <dir>] <name>...",
		Short: "Copy items between two roots with the local transfer engine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd, config.Overrides{})
			if err != nil {
				return err
			}

			runner := &transfer.Runner{UsePty: cfg.UsePTY, Logger: logger}
			engine := transfer.NewLocal(runner, cfg.RsyncPath, logger)

			bar := newBatchProgress(cmd.ErrOrStderr(), args)
			results := engine.Copy(cmd.Context(), transfer.Request{
				Names:      args,
				DestPrefix: prefix,
				SourceRoot: from,
				DestRoot:   to,
			}, transfer.Handlers{
				Progress: bar.update,
				Result:   bar.done,
			}).Wait()
			bar.finish()

			failed := 0
			for _, res := range results {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				if res.Status != types.StatusCopied {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d items failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source root")
	cmd.Flags().StringVar(&to, "to", "", "destination root")
	cmd.Flags().StringVar(&prefix, "prefix", "/", "destination directory, relative to --to")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// batchProgress 把所有条目的百分比汇总到一个进度条上
type batchProgress struct {
	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	percent map[string]int
}

func newBatchProgress(w io.Writer, names []string) *batchProgress {
	bar := progressbar.NewOptions(100*len(names),
		progressbar.OptionSetDescription(fmt.Sprintf("copying %d item(s)", len(names))),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &batchProgress{bar: bar, percent: make(map[string]int, len(names))}
}

func (b *batchProgress) update(p types.TransferProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.percent[p.Name] = p.Percent
	b.bar.Describe(fmt.Sprintf("%s %s eta %s", p.Name, p.Speed, p.ETA))
	_ = b.bar.Set(b.sum())
}

func (b *batchProgress) done(res types.TransferResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// 失败的条目也计满，进度条只表示"已结束"的比例
	b.percent[res.Name] = 100
	_ = b.bar.Set(b.sum())
}

func (b *batchProgress) sum() int {
	total := 0
	for _, p := range b.percent {
		total += p
	}
	return total
}

func (b *batchProgress) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Finish()
}
