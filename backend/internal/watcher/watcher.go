// Package watcher notifies about child directories appearing in or
// disappearing from a single watched directory.
package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ErrRoot is returned by Open for the filesystem root, which is never watched.
var ErrRoot = errors.New("refusing to watch the filesystem root")

// Session 持有一个 fsnotify 句柄，只监控目录的直接子项
type Session struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange func(path string)
	logger   zerolog.Logger

	mu   sync.Mutex
	dirs map[string]struct{} // 已知的子目录，用于识别删除事件

	done      chan struct{}
	closeOnce sync.Once
}

// Open starts watching dir. onChange is called with the full path of every
// child directory created or removed afterwards; dotfiles are ignored.
func Open(dir string, onChange func(path string), logger zerolog.Logger) (*Session, error) {
	dir = filepath.Clean(dir)
	if dir == "/" {
		return nil, ErrRoot
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	s := &Session{
		dir:      dir,
		watcher:  w,
		onChange: onChange,
		logger:   logger.With().Str("dir", dir).Logger(),
		dirs:     make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	s.scan()

	go s.loop()
	s.logger.Debug().Msg("watch session opened")
	return s, nil
}

// Dir returns the watched directory.
func (s *Session) Dir() string { return s.dir }

// scan 记录已有的子目录，不会触发回调
func (s *Session) scan() {
	children, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn().Err(err).Msg("initial scan failed")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range children {
		if ignored(c.Name()) {
			continue
		}
		full := filepath.Join(s.dir, c.Name())
		if isDir(full) {
			s.dirs[full] = struct{}{}
		}
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			// 监控错误只记录，不影响调用方
			s.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

func (s *Session) handle(event fsnotify.Event) {
	if filepath.Dir(event.Name) != s.dir || ignored(filepath.Base(event.Name)) {
		return
	}

	var changed bool
	switch {
	case event.Has(fsnotify.Create):
		if isDir(event.Name) {
			s.mu.Lock()
			_, known := s.dirs[event.Name]
			s.dirs[event.Name] = struct{}{}
			s.mu.Unlock()
			changed = !known
		}
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		s.mu.Lock()
		_, known := s.dirs[event.Name]
		delete(s.dirs, event.Name)
		s.mu.Unlock()
		changed = known
	}

	if changed && s.onChange != nil && !s.Closed() {
		s.onChange(event.Name)
	}
}

// Close stops the session. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.logger.Debug().Msg("watch session closed")
	})
	return err
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func ignored(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// Slot 保存当前唯一的监控会话，新会话打开前先关闭旧会话
type Slot struct {
	mu      sync.Mutex
	current *Session
	logger  zerolog.Logger

	// OnSwap is called after every replacement with the number of live sessions (0 or 1).
	OnSwap func(live int)
}

// NewSlot returns an empty Slot.
func NewSlot(logger zerolog.Logger) *Slot {
	return &Slot{logger: logger}
}

// Watch closes the current session, then opens one on dir. Watching the root,
// or any open failure, leaves the slot empty; errors are logged, never returned.
func (sl *Slot) Watch(dir string, onChange func(path string)) *Session {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.current != nil {
		if err := sl.current.Close(); err != nil {
			sl.logger.Warn().Err(err).Msg("closing previous watch session")
		}
		sl.current = nil
	}

	s, err := Open(dir, onChange, sl.logger)
	switch {
	case errors.Is(err, ErrRoot):
		sl.logger.Debug().Msg("root directory is not watched")
	case err != nil:
		sl.logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch directory")
	default:
		sl.current = s
	}
	sl.notify()
	return sl.current
}

// Current returns the live session, or nil.
func (sl *Slot) Current() *Session {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.current
}

// Close closes the live session, if any.
func (sl *Slot) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.current == nil {
		return nil
	}
	err := sl.current.Close()
	sl.current = nil
	sl.notify()
	return err
}

func (sl *Slot) notify() {
	if sl.OnSwap == nil {
		return
	}
	live := 0
	if sl.current != nil {
		live = 1
	}
	sl.OnSwap(live)
}
