package transfer

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cinefm/backend/internal/config"
	"cinefm/backend/internal/files"
	"cinefm/backend/internal/metrics"
	"cinefm/backend/internal/types"
)

// PasswordFunc resolves the password of an endpoint.
type PasswordFunc func(types.EndpointConfig) (string, error)

// Remote fetches items from the endpoint that mirrors the source folder,
// with wget (ftp endpoints) or in-process sftp.
type Remote struct {
	Runner   *Runner
	WgetPath string
	DuPath   string
	SFTP     *SFTPFetcher
	Password PasswordFunc
	Logger   zerolog.Logger
}

// NewRemote returns a Remote engine. Empty tool paths fall back to PATH lookups.
func NewRemote(runner *Runner, wgetPath, duPath string, fetcher *SFTPFetcher, password PasswordFunc, logger zerolog.Logger) *Remote {
	if wgetPath == "" {
		wgetPath = "wget"
	}
	if duPath == "" {
		duPath = "du"
	}
	return &Remote{
		Runner:   runner,
		WgetPath: wgetPath,
		DuPath:   duPath,
		SFTP:     fetcher,
		Password: password,
		Logger:   logger,
	}
}

// Copy dispatches one fetch per name and returns immediately.
// The caller has already resolved ep as the single endpoint for the source prefix.
func (r *Remote) Copy(ctx context.Context, ep types.EndpointConfig, req Request, h Handlers) *Batch {
	batch := newBatch()
	for _, it := range req.items() {
		it := it
		batch.run(EngineRemote, h, func() types.TransferResult {
			return r.copyOne(ctx, ep, it, h)
		})
	}
	return batch
}

func (r *Remote) copyOne(ctx context.Context, ep types.EndpointConfig, it item, h Handlers) types.TransferResult {
	if it.err != nil {
		r.Logger.Warn().Err(it.err).Str("item", it.name).Msg("refusing fetch")
		return refused(it, true)
	}
	size := files.DiskUsage(ctx, r.DuPath, it.srcPath)
	remote := RemotePath(ep.Folder, it.name)
	start := time.Now()

	err := r.fetch(ctx, ep, remote, it, h)
	if err != nil {
		r.Logger.Warn().Err(err).Str("host", ep.Host).Str("remote", remote).Msg("fetch failed")
	}
	return newResult(it, err, time.Since(start), size, true)
}

func (r *Remote) fetch(ctx context.Context, ep types.EndpointConfig, remote string, it item, h Handlers) error {
	password := ep.Password
	if r.Password != nil {
		stored, err := r.Password(ep)
		if err != nil {
			// 钥匙串不可用 (例如无桌面会话的服务器) 时按未保存密码处理
			r.Logger.Warn().Err(err).Str("host", ep.Host).Msg("password lookup failed, using defaults")
		} else {
			password = stored
		}
	}

	if ep.Protocol == config.ProtocolSFTP {
		if r.SFTP == nil {
			return errors.New("sftp endpoints are not enabled")
		}
		return r.SFTP.Fetch(ctx, ep, password, remote, it.dstPath, func(p types.TransferProgress) {
			p.Name = it.name
			h.progress(p)
		})
	}

	parser := &WgetParser{Name: it.name}
	return r.Runner.Run(ctx, Stderr, func(line string) {
		if p, ok := parser.Parse(line); ok {
			h.progress(p)
		} else {
			metrics.ProgressLineSkipped(EngineRemote)
		}
	}, r.WgetPath, WgetArgs(ep, password, remote, it.dstPath)...)
}

// RemotePath strips the endpoint folder from a root-relative item name.
func RemotePath(folder, name string) string {
	p := path.Join("/", name)
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return p
	}
	return files.UnrootPath(p, "/"+folder)
}

// WgetArgs builds the recursive, non-interactive fetch of remote into dst.
func WgetArgs(ep types.EndpointConfig, password, remote, dst string) []string {
	user := ep.User
	if user == "" {
		user = "anonymous"
	}
	if password == "" {
		password = "anonymous"
	}
	return []string{
		"-P", dst,
		"-r",
		"-nH", "-np",
		"--progress=bar:force:noscroll",
		"-q", "--show-progress",
		"--user=" + user,
		"--password=" + password,
		hostURL(ep) + remote,
	}
}

// hostURL 返回不带结尾斜杠的 ftp://host[:port]
func hostURL(ep types.EndpointConfig) string {
	host := strings.TrimSuffix(ep.Host, "/")
	if !strings.Contains(host, "://") {
		host = "ftp://" + host
	}
	if ep.Port != 0 {
		scheme, rest, _ := strings.Cut(host, "://")
		if !strings.Contains(rest, ":") {
			host = scheme + "://" + rest + ":" + strconv.Itoa(ep.Port)
		}
	}
	return host
}
