package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"cinefm/backend/internal/actionlog"
	"cinefm/backend/internal/config"
	"cinefm/backend/internal/files"
	"cinefm/backend/internal/logging"
	"cinefm/backend/internal/metrics"
	"cinefm/backend/internal/transfer"
	"cinefm/backend/internal/users"
	"cinefm/backend/internal/watcher"
	"cinefm/backend/service/filemanager"
	"cinefm/backend/service/socket"
)

// Options 是命令行传给 App 的启动参数
type Options struct {
	ConfigPath string
	// ConfigRequired 为 true 时配置文件必须存在且格式正确
	ConfigRequired bool
	Debug          bool
	Overrides      config.Overrides
}

// App struct
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options

	cfg       config.Config
	logger    zerolog.Logger
	logCloser io.Closer
	actions   *actionlog.Log

	files  *filemanager.Service
	socket *socket.Server
}

// NewApp creates a new App application struct
func NewApp(opts Options) *App {
	return &App{opts: opts, logger: zerolog.Nop()}
}

func (a *App) Ctx() context.Context {
	return a.ctx
}

func (a *App) Config() config.Config {
	return a.cfg
}

func (a *App) Logger() zerolog.Logger {
	return a.logger
}

// LoadConfig 读取配置文件，合并命令行覆盖项并校验。
// warn 非空表示配置文件不可用，已回退到默认值。
func LoadConfig(path string, required bool, o config.Overrides) (cfg config.Config, warn error, err error) {
	cfg, warn, err = config.Load(path, required)
	if err != nil {
		return cfg, nil, err
	}
	cfg = config.ApplyOverrides(cfg, o)
	if err := cfg.Validate(); err != nil {
		return cfg, warn, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, warn, nil
}

// Startup 加载配置并组装所有服务，但不开始监听
func (a *App) Startup(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	cfg, warn, err := LoadConfig(a.opts.ConfigPath, a.opts.ConfigRequired, a.opts.Overrides)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer, err := logging.New(logging.Options{Debug: a.opts.Debug, FilePath: cfg.AppLogPath})
	if err != nil {
		return err
	}
	a.logger, a.logCloser = logger, closer
	a.logger.Info().Msg("-------------------- App Starting --------------------")
	if warn != nil {
		a.logger.Warn().Err(warn).Str("path", a.opts.ConfigPath).Msg("config file unusable, using defaults")
	}

	// 操作日志打不开时直接退出
	a.actions, err = actionlog.Open(cfg.LogPath)
	if err != nil {
		return err
	}

	table, err := users.Load(cfg.PasswdPath)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", cfg.PasswdPath).Msg("cannot read passwd file, owners will show as uids")
		table = users.NewTable(nil)
	}

	runner := &transfer.Runner{UsePty: cfg.UsePTY, Logger: logging.Component(a.logger, "runner")}
	local := transfer.NewLocal(runner, cfg.RsyncPath, logging.Component(a.logger, "cp"))
	remote := transfer.NewRemote(runner, cfg.WgetPath, cfg.DuPath,
		transfer.NewSFTPFetcher(cfg.KnownHosts, logging.Component(a.logger, "sftp")),
		config.EndpointPassword,
		logging.Component(a.logger, "ftpCp"))

	slot := watcher.NewSlot(logging.Component(a.logger, "watcher"))
	slot.OnSwap = metrics.SetWatchSessions

	a.files, err = filemanager.NewService(a.ctx, filemanager.Deps{
		Config:     cfg,
		Enumerator: files.NewEnumerator(table, logging.Component(a.logger, "files")),
		Watch:      slot,
		Local:      local,
		Remote:     remote,
		Actions:    a.actions,
		Logger:     logging.Component(a.logger, "filemanager"),
	})
	if err != nil {
		return err
	}
	a.socket = socket.NewServer(a.files, logging.Component(a.logger, "socket"))
	return nil
}

// Run 启动事件通道服务，直到 ctx 被取消或监听失败
func (a *App) Run() error {
	if a.socket == nil {
		return errors.New("app not started")
	}
	a.actions.Print(fmt.Sprintf("listening on %s", a.cfg.Listen))
	return a.socket.ListenAndServe(a.ctx, a.cfg.Listen, a.cfg.Metrics)
}

// Shutdown is called when the app terminates.
func (a *App) Shutdown() {
	a.logger.Info().Msg("app shutdown")
	if a.cancel != nil {
		a.cancel()
	}
	if a.socket != nil {
		a.socket.Shutdown()
	}
	if a.files != nil {
		a.files.Shutdown()
	}
	if a.actions != nil {
		if err := a.actions.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing action log")
		}
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
