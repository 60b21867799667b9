package filemanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/rs/zerolog"

	"cinefm/backend/internal/actionlog"
	"cinefm/backend/internal/config"
	"cinefm/backend/internal/files"
	"cinefm/backend/internal/guard"
	"cinefm/backend/internal/metrics"
	"cinefm/backend/internal/transfer"
	"cinefm/backend/internal/types"
	"cinefm/backend/internal/watcher"
)

// 事件通道上的事件名
const (
	EventLs    = "ls"
	EventMkdir = "mkdir"
	EventRm    = "rm"
	EventCp    = "cp"

	EventFiles       = "files"
	EventResult      = "result"
	EventWatch       = "watch"
	EventCpProgress  = "cp-progress"
	EventCpStatus    = "cp-status"
	EventFtpProgress = "ftpcp-progress"
	EventFtpStatus   = "ftpcp-status"
)

// Client is the outbound side of one connected event channel.
type Client interface {
	ID() string
	// Addr identifies the user in the action log.
	Addr() string
	// Emit queues one event. Events emitted after disconnect are dropped.
	Emit(event string, payload any)
}

// LocalCopier copies between two local roots.
type LocalCopier interface {
	Copy(ctx context.Context, req transfer.Request, h transfer.Handlers) *transfer.Batch
}

// RemoteCopier fetches from a remote endpoint.
type RemoteCopier interface {
	Copy(ctx context.Context, ep types.EndpointConfig, req transfer.Request, h transfer.Handlers) *transfer.Batch
}

// Deps 是 Service 的全部依赖，由 App 在启动时组装
type Deps struct {
	Config     config.Config
	Enumerator *files.Enumerator
	Watch      *watcher.Slot
	Local      LocalCopier
	Remote     RemoteCopier
	Actions    actionlog.Recorder
	Logger     zerolog.Logger
}

// Service 接收客户端请求，校验面板权限，然后交给枚举器、监控器和传输引擎处理。
// 除了唯一的监控会话，它不持有跨请求的可变状态。
type Service struct {
	ctx     context.Context
	cfg     config.Config
	mode    os.FileMode
	enum    *files.Enumerator
	watch   *watcher.Slot
	local   LocalCopier
	remote  RemoteCopier
	actions actionlog.Recorder
	logger  zerolog.Logger

	mu       sync.Mutex
	lastPath map[string]map[types.Panel]string // clientID -> panel -> 最近一次 ls 的路径
}

// NewService 是 filemanager 服务的构造函数
func NewService(ctx context.Context, d Deps) (*Service, error) {
	mode, err := d.Config.DirMode()
	if err != nil {
		return nil, err
	}
	if d.Watch == nil {
		d.Watch = watcher.NewSlot(d.Logger)
	}
	return &Service{
		ctx:      ctx,
		cfg:      d.Config,
		mode:     mode,
		enum:     d.Enumerator,
		watch:    d.Watch,
		local:    d.Local,
		remote:   d.Remote,
		actions:  d.Actions,
		logger:   d.Logger,
		lastPath: make(map[string]map[types.Panel]string),
	}, nil
}

// Shutdown closes the live watch session.
func (s *Service) Shutdown() {
	if err := s.watch.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("closing watch session")
	}
}

// Connect sends both panel roots to a new client and watches the watch panel root.
func (s *Service) Connect(c Client) {
	s.logger.Info().Str("user", c.Addr()).Str("client", c.ID()).Msg("has connected")
	s.List(c, types.ListRequest{Path: "/", Panel: types.PanelLeft})
	s.List(c, types.ListRequest{Path: "/", Panel: types.PanelRight})
}

// Disconnect forgets the client. Running transfers keep going.
func (s *Service) Disconnect(c Client) {
	s.mu.Lock()
	delete(s.lastPath, c.ID())
	s.mu.Unlock()
	s.logger.Info().Str("user", c.Addr()).Str("client", c.ID()).Msg("has disconnected")
}

// ErrUnknownEvent is returned by Handle for events it does not serve.
var ErrUnknownEvent = errors.New("unknown event")

// Handle decodes one inbound event and runs it.
func (s *Service) Handle(c Client, event string, data json.RawMessage) error {
	var err error
	switch event {
	case EventLs:
		var req types.ListRequest
		if err = json.Unmarshal(data, &req); err == nil {
			s.List(c, req)
		}
	case EventMkdir:
		var req types.MkdirRequest
		if err = json.Unmarshal(data, &req); err == nil {
			s.Mkdir(c, req)
		}
	case EventRm:
		var req types.RmRequest
		if err = json.Unmarshal(data, &req); err == nil {
			s.Rm(c, req)
		}
	case EventCp:
		var req types.CpRequest
		if err = json.Unmarshal(data, &req); err == nil {
			s.Cp(c, req)
		}
	default:
		err = fmt.Errorf("%w '%s'", ErrUnknownEvent, event)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordRequest(event, outcome)
	return err
}

// List sends the listing of path on panel. Failures are sent as the files string.
func (s *Service) List(c Client, req types.ListRequest) {
	p := req.Path
	if p == "" {
		p = "/"
	}
	root, err := s.cfg.Root(req.Panel)
	if err != nil {
		c.Emit(EventResult, types.ResultMessage{Message: err.Error(), Path: p, Panel: req.Panel})
		return
	}

	msg := types.FilesMessage{Panel: req.Panel, Pathbar: p}
	dir, err := files.Resolve(root, p)
	if err != nil {
		msg.Files = (&files.ListError{Path: p, Err: err}).Error()
		c.Emit(EventFiles, msg)
		return
	}

	entries, err := s.enum.List(dir, files.ListOptions{
		IncludeParent: p != "/",
		IncludeHidden: s.cfg.ShowHidden,
	})
	if err != nil {
		var le *files.ListError
		if errors.As(err, &le) {
			le.Path = files.UnrootPath(le.Path, root)
		}
		msg.Files = err.Error()
	} else {
		msg.Files = files.Unroot(entries, root)
	}
	if req.Panel == s.cfg.FreePanel {
		msg.Free = files.Free(dir)
	}
	c.Emit(EventFiles, msg)

	s.mu.Lock()
	if s.lastPath[c.ID()] == nil {
		s.lastPath[c.ID()] = make(map[types.Panel]string)
	}
	s.lastPath[c.ID()][req.Panel] = p
	s.mu.Unlock()

	if req.Panel == s.cfg.WatchPanel {
		s.watchDir(c, root, dir, p)
	}
}

func (s *Service) watchDir(c Client, root, dir, shown string) {
	s.watch.Watch(dir, func(changed string) {
		c.Emit(EventWatch, types.WatchMessage{Path: shown, Added: files.UnrootPath(changed, root)})
	})
}

// Mkdir creates path/name on panel unless it is read-only.
func (s *Service) Mkdir(c Client, req types.MkdirRequest) {
	root, err := s.cfg.Root(req.Panel)
	if err != nil {
		c.Emit(EventResult, types.ResultMessage{Message: err.Error(), Path: req.Path, Panel: req.Panel})
		return
	}

	message := guard.Guard(s.cfg.ReadOnly(req.Panel), req.Panel, func() string {
		return files.Mkdir(root, req.Path, req.Name, s.mode)
	})
	c.Emit(EventResult, types.ResultMessage{Message: message, Path: req.Path, Panel: req.Panel})
	s.refreshOther(c, req.Panel, root, req.Path)
	s.record(c, "mkdir", []string{path.Join(req.Path, req.Name)}, root, message)
}

// Rm deletes names on panel unless it is read-only.
func (s *Service) Rm(c Client, req types.RmRequest) {
	root, err := s.cfg.Root(req.Panel)
	if err != nil {
		c.Emit(EventResult, types.ResultMessage{Message: err.Error(), Path: req.Prefix, Panel: req.Panel})
		return
	}

	message := guard.Guard(s.cfg.ReadOnly(req.Panel), req.Panel, func() string {
		return files.Remove(root, req.Names)
	})
	c.Emit(EventResult, types.ResultMessage{Message: message, Path: req.Prefix, Panel: req.Panel})
	s.refreshOther(c, req.Panel, root, req.Prefix)
	s.record(c, "rm", req.Names, root, actionlog.Flatten(message))
}

// refreshOther 另一侧面板显示同一目录时通知它刷新
func (s *Service) refreshOther(c Client, panel types.Panel, root, p string) {
	other := config.OtherPanel(panel)
	otherRoot, err := s.cfg.Root(other)
	if err != nil || otherRoot != root {
		return
	}
	s.mu.Lock()
	shown, ok := s.lastPath[c.ID()][other]
	s.mu.Unlock()
	if ok && shown == p {
		c.Emit(EventResult, types.ResultMessage{Path: p, Panel: other})
	}
}

// Cp copies names from panelSrc to panelDst. It returns the dispatched batch,
// or nil when nothing was started (read-only destination, bad panel, a prefix
// outside its root, endpoint conflict). Names escaping the source root are
// refused per item by the engines.
func (s *Service) Cp(c Client, req types.CpRequest) *transfer.Batch {
	fail := func(message string) *transfer.Batch {
		c.Emit(EventResult, types.ResultMessage{Message: message, Path: req.PrefixDst, Panel: req.PanelDst})
		return nil
	}

	rootSrc, err := s.cfg.Root(req.PanelSrc)
	if err != nil {
		return fail(err.Error())
	}
	rootDst, err := s.cfg.Root(req.PanelDst)
	if err != nil {
		return fail(err.Error())
	}
	if ok, message := guard.Allowed(s.cfg.ReadOnly(req.PanelDst), req.PanelDst); !ok {
		return fail(message)
	}
	if _, err := files.Resolve(rootSrc, req.PrefixSrc); err != nil {
		return fail(fmt.Sprintf("%s: %v", req.PrefixSrc, err))
	}
	if _, err := files.Resolve(rootDst, req.PrefixDst); err != nil {
		return fail(fmt.Sprintf("%s: %v", req.PrefixDst, err))
	}

	endpoints, _ := s.cfg.Endpoints(req.PanelSrc)
	ep, err := config.ResolveEndpoint(req.PanelSrc, endpoints, req.PrefixSrc)
	if err != nil {
		s.logger.Error().Err(err).Msg("endpoint configuration conflict")
		return fail(err.Error())
	}

	treq := transfer.Request{
		Names:      req.Names,
		DestPrefix: req.PrefixDst,
		SourceRoot: rootSrc,
		DestRoot:   rootDst,
	}
	if ep == nil || s.remote == nil {
		return s.local.Copy(s.ctx, treq, s.handlers(c, req, EventCpProgress, EventCpStatus, transfer.EngineLocal))
	}
	s.logger.Debug().Str("host", ep.Host).Str("folder", ep.Folder).Msg("copying from endpoint")
	return s.remote.Copy(s.ctx, *ep, treq, s.handlers(c, req, EventFtpProgress, EventFtpStatus, transfer.EngineRemote))
}

func (s *Service) handlers(c Client, req types.CpRequest, progressEvent, statusEvent, action string) transfer.Handlers {
	return transfer.Handlers{
		Progress: func(p types.TransferProgress) {
			c.Emit(progressEvent, p)
		},
		Result: func(res types.TransferResult) {
			c.Emit(statusEvent, types.StatusMessage{Name: res.Name, Status: res.Status, Message: res.Message})
			c.Emit(EventResult, types.ResultMessage{Path: req.PrefixDst, Panel: req.PanelDst})
			s.record(c, action, []string{res.LogPath}, "", res.LogMessage)
		},
	}
}

func (s *Service) record(c Client, action string, paths []string, root, message string) {
	if s.actions == nil {
		return
	}
	s.actions.Record(c.Addr(), action, paths, root, message)
}
