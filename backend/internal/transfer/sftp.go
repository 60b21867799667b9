package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"

	"cinefm/backend/internal/types"
	"cinefm/backend/pkg/utils"
)

// progressInterval throttles sftp progress events.
const progressInterval = 500 * time.Millisecond

const defaultKeepAlive = 15 * time.Second

// SFTPFetcher pulls a remote file or tree over sftp for `protocol: sftp` endpoints.
type SFTPFetcher struct {
	// KnownHostsPath enables host key verification; empty accepts any key.
	KnownHostsPath string
	Timeout        time.Duration
	// KeepAlive 是连接保活请求的间隔；请求在一个间隔内没有回复就断开连接
	KeepAlive time.Duration
	Logger    zerolog.Logger
}

// NewSFTPFetcher returns a fetcher verifying hosts against knownHostsPath, if set.
func NewSFTPFetcher(knownHostsPath string, logger zerolog.Logger) *SFTPFetcher {
	return &SFTPFetcher{
		KnownHostsPath: knownHostsPath,
		Timeout:        10 * time.Second,
		KeepAlive:      defaultKeepAlive,
		Logger:         logger,
	}
}

// keepAliver is the part of *ssh.Client the keep-alive loop needs.
type keepAliver interface {
	SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error)
	Close() error
}

// keepAlive closes conn once a keep-alive request fails or goes unanswered,
// so a dead server fails the running fetch instead of hanging it.
func (f *SFTPFetcher) keepAlive(ctx context.Context, conn keepAliver, host string) {
	interval := f.KeepAlive
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// 半开连接上 SendRequest 可能一直阻塞
		errC := make(chan error, 1)
		go func() {
			_, _, err := conn.SendRequest("keepalive@openssh.com", true, nil)
			errC <- err
		}()
		select {
		case err := <-errC:
			if err == nil {
				continue
			}
			f.Logger.Warn().Err(err).Str("host", host).Msg("ssh keep-alive failed, closing connection")
		case <-time.After(interval):
			f.Logger.Warn().Str("host", host).Dur("timeout", interval).Msg("ssh keep-alive unanswered, closing connection")
		case <-ctx.Done():
			return
		}
		conn.Close()
		return
	}
}

func (f *SFTPFetcher) clientConfig(ep types.EndpointConfig, password string) (*ssh.ClientConfig, error) {
	var hostKeyCallback ssh.HostKeyCallback
	if f.KnownHostsPath != "" {
		kh, err := knownhosts.New(f.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("could not load known_hosts: %w", err)
		}
		hostKeyCallback = kh.HostKeyCallback()
	} else {
		f.Logger.Warn().Str("host", ep.Host).Msg("no known-hosts configured, host key not verified")
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	auth, err := authMethods(ep, password)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            ep.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         f.Timeout,
	}, nil
}

// authMethods 优先使用私钥，密码作为后备
func authMethods(ep types.EndpointConfig, password string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if ep.KeyPath != "" {
		key, err := os.ReadFile(ep.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if password != "" || len(methods) == 0 {
		methods = append(methods, ssh.Password(password))
	}
	return methods, nil
}

// Fetch downloads remote (a file or a directory) into dstDir/<base of remote>.
func (f *SFTPFetcher) Fetch(ctx context.Context, ep types.EndpointConfig, password, remote, dstDir string, onProgress func(types.TransferProgress)) error {
	cfg, err := f.clientConfig(ep, password)
	if err != nil {
		return err
	}

	addr := ep.Address(22)
	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	defer conn.Close()

	kaCtx, stop := context.WithCancel(ctx)
	defer stop()
	utils.SafeGo(f.Logger, func() { f.keepAlive(kaCtx, conn, ep.Host) })

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("sftp client for %s: %w", addr, err)
	}
	defer client.Close()

	return FetchTree(ctx, client, remote, dstDir, onProgress)
}

type remoteEntry struct {
	path  string
	isDir bool
	size  int64
	mode  os.FileMode
}

// FetchTree copies remote from an open sftp client into dstDir/<base of remote>.
func FetchTree(ctx context.Context, client *sftp.Client, remote, dstDir string, onProgress func(types.TransferProgress)) error {
	var entries []remoteEntry
	var total int64

	walker := client.Walk(remote)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return fmt.Errorf("walk %s: %w", walker.Path(), err)
		}
		st := walker.Stat()
		e := remoteEntry{path: walker.Path(), isDir: st.IsDir(), size: st.Size(), mode: st.Mode().Perm()}
		if !e.isDir {
			total += e.size
		}
		entries = append(entries, e)
	}

	base := filepath.Join(dstDir, path.Base(remote))
	meter := newMeter(total, onProgress)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := strings.TrimPrefix(e.path, remote)
		local := filepath.Join(base, filepath.FromSlash(rel))
		if e.isDir {
			if err := os.MkdirAll(local, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := fetchFile(client, e, local, meter); err != nil {
			return err
		}
	}
	meter.finish()
	return nil
}

func fetchFile(client *sftp.Client, e remoteEntry, local string, w io.Writer) error {
	src, err := client.Open(e.path)
	if err != nil {
		return fmt.Errorf("open remote %s: %w", e.path, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	mode := e.mode
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(local, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(io.MultiWriter(dst, w), src); err != nil {
		dst.Close()
		return fmt.Errorf("copy %s: %w", e.path, err)
	}
	return dst.Close()
}

// meter 统计已传输字节并按间隔发出进度
type meter struct {
	mu       sync.Mutex
	total    int64
	done     int64
	start    time.Time
	lastEmit time.Time
	lastPct  int
	emit     func(types.TransferProgress)
}

func newMeter(total int64, emit func(types.TransferProgress)) *meter {
	return &meter{total: total, start: time.Now(), lastPct: -1, emit: emit}
}

func (m *meter) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done += int64(len(p))
	if time.Since(m.lastEmit) >= progressInterval {
		m.report()
	}
	return len(p), nil
}

func (m *meter) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = m.total
	m.report()
}

func (m *meter) report() {
	pct := 100
	if m.total > 0 {
		pct = int(m.done * 100 / m.total)
	}
	// 远端文件在传输过程中变大时 done 会超过 total
	if pct > 100 {
		pct = 100
	}
	m.lastEmit = time.Now()
	if pct == m.lastPct || m.emit == nil {
		return
	}
	m.lastPct = pct

	elapsed := time.Since(m.start).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(m.done) / elapsed
	}
	m.emit(types.TransferProgress{
		Percent: pct,
		Speed:   FormatSpeed(rate),
		ETA:     formatETA(m.total-m.done, rate),
	})
}

// FormatSpeed renders bytes per second with the lowercase units the fetch tool reports.
func FormatSpeed(bps float64) string {
	switch {
	case bps >= 1<<30:
		return fmt.Sprintf("%.1fgB/s", bps/(1<<30))
	case bps >= 1<<20:
		return fmt.Sprintf("%.1fmB/s", bps/(1<<20))
	}
	return fmt.Sprintf("%.1fkB/s", bps/(1<<10))
}

func formatETA(remaining int64, rate float64) string {
	if rate <= 0 {
		return UnknownETA
	}
	if remaining < 0 {
		remaining = 0
	}
	secs := int64(float64(remaining) / rate)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}
