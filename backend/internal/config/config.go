package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"cinefm/backend/internal/types"
)

// DefaultPath 是未指定 --config 时读取的配置文件
const DefaultPath = "config.yml"

const (
	ProtocolFTP  = "ftp"
	ProtocolSFTP = "sftp"
)

// Config 是已经校验过的运行时配置
type Config struct {
	Listen     string
	LogPath    string
	AppLogPath string

	RootLeft  string
	RootRight string
	ROLeft    bool
	RORight   bool

	ShowHidden bool

	EndpointsLeft  []types.EndpointConfig
	EndpointsRight []types.EndpointConfig

	WatchPanel types.Panel
	FreePanel  types.Panel
	MkdirMode  string

	PasswdPath string
	RsyncPath  string
	WgetPath   string
	DuPath     string
	UsePTY     bool
	KnownHosts string
	Metrics    bool
}

// Overrides 中的 nil 字段表示“不覆盖”
type Overrides struct {
	Listen     *string `yaml:"listen"`
	LogPath    *string `yaml:"log-path"`
	AppLogPath *string `yaml:"app-log-path"`

	RootLeft  *string `yaml:"root-left"`
	RootRight *string `yaml:"root-right"`
	ROLeft    *bool   `yaml:"ro-left"`
	RORight   *bool   `yaml:"ro-right"`

	ShowHidden *bool `yaml:"show-hidden"`

	EndpointsLeft  []types.EndpointConfig `yaml:"endpoint-left"`
	EndpointsRight []types.EndpointConfig `yaml:"endpoint-right"`

	WatchPanel *types.Panel `yaml:"watch-panel"`
	FreePanel  *types.Panel `yaml:"free-panel"`
	MkdirMode  *string      `yaml:"mkdir-mode"`

	PasswdPath *string `yaml:"passwd-path"`
	RsyncPath  *string `yaml:"rsync-path"`
	WgetPath   *string `yaml:"wget-path"`
	DuPath     *string `yaml:"du-path"`
	UsePTY     *bool   `yaml:"use-pty"`
	KnownHosts *string `yaml:"known-hosts"`
	Metrics    *bool   `yaml:"metrics"`
}

// --- 错误类型 ---

// EndpointConflictError 表示同一个面板下有多个 endpoint 指向同一个目录
type EndpointConflictError struct {
	Panel  types.Panel
	Folder string
	Count  int
}

func (e *EndpointConflictError) Error() string {
	return fmt.Sprintf("%d endpoints of panel %s match folder '%s'", e.Count, e.Panel, e.Folder)
}

// UnknownPanelError 表示请求中的面板名不存在
type UnknownPanelError struct {
	Panel types.Panel
}

func (e *UnknownPanelError) Error() string {
	return fmt.Sprintf("unknown panel '%s'", e.Panel)
}

// Default 返回内置默认配置
func Default() Config {
	return Config{
		Listen:     ":3000",
		LogPath:    "./cinefm.log",
		RootLeft:   "/",
		RootRight:  "/",
		WatchPanel: types.PanelLeft,
		FreePanel:  types.PanelRight,
		MkdirMode:  "0777",
		PasswdPath: "/etc/passwd",
		RsyncPath:  "rsync",
		WgetPath:   "wget",
		DuPath:     "du",
		Metrics:    true,
	}
}

// ApplyOverrides 把 o 中设置过的字段合并到 base 上，不修改 base
func ApplyOverrides(base Config, o Overrides) Config {
	c := base
	setString(&c.Listen, o.Listen)
	setString(&c.LogPath, o.LogPath)
	setString(&c.AppLogPath, o.AppLogPath)
	setString(&c.RootLeft, o.RootLeft)
	setString(&c.RootRight, o.RootRight)
	setBool(&c.ROLeft, o.ROLeft)
	setBool(&c.RORight, o.RORight)
	setBool(&c.ShowHidden, o.ShowHidden)
	if o.EndpointsLeft != nil {
		c.EndpointsLeft = append([]types.EndpointConfig(nil), o.EndpointsLeft...)
	}
	if o.EndpointsRight != nil {
		c.EndpointsRight = append([]types.EndpointConfig(nil), o.EndpointsRight...)
	}
	if o.WatchPanel != nil {
		c.WatchPanel = *o.WatchPanel
	}
	if o.FreePanel != nil {
		c.FreePanel = *o.FreePanel
	}
	setString(&c.MkdirMode, o.MkdirMode)
	setString(&c.PasswdPath, o.PasswdPath)
	setString(&c.RsyncPath, o.RsyncPath)
	setString(&c.WgetPath, o.WgetPath)
	setString(&c.DuPath, o.DuPath)
	setBool(&c.UsePTY, o.UsePTY)
	setString(&c.KnownHosts, o.KnownHosts)
	setBool(&c.Metrics, o.Metrics)
	return c.normalize()
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// normalize 去掉 root 末尾的斜杠以及 endpoint folder 首尾的斜杠
func (c Config) normalize() Config {
	c.RootLeft = Unslash(c.RootLeft)
	c.RootRight = Unslash(c.RootRight)
	c.EndpointsLeft = normalizeEndpoints(c.EndpointsLeft)
	c.EndpointsRight = normalizeEndpoints(c.EndpointsRight)
	return c
}

func normalizeEndpoints(in []types.EndpointConfig) []types.EndpointConfig {
	if in == nil {
		return nil
	}
	out := make([]types.EndpointConfig, len(in))
	for i, e := range in {
		e.Folder = strings.Trim(e.Folder, "/")
		e.Protocol = strings.ToLower(strings.TrimSpace(e.Protocol))
		if e.Protocol == "" {
			e.Protocol = ProtocolFTP
		}
		out[i] = e
	}
	return out
}

// Unslash 去掉一个末尾的路径分隔符，"/" 本身保持不变
func Unslash(p string) string {
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		return p[:len(p)-1]
	}
	return p
}

// ParseFile 读取 YAML 配置文件，只返回文件中出现的字段
func ParseFile(path string) (Overrides, error) {
	var o Overrides
	data, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("malformed config %s: %w", path, err)
	}
	return o, nil
}

// Load 读取配置文件并合并到默认值上。
// required 为 false 时，文件不存在或格式错误会回退到默认配置，并通过 warn 返回原因。
func Load(path string, required bool) (cfg Config, warn error, err error) {
	base := Default()
	o, perr := ParseFile(path)
	if perr != nil {
		if required {
			return Config{}, nil, perr
		}
		return base.normalize(), perr, nil
	}
	cfg = ApplyOverrides(base, o)
	return cfg, nil, nil
}

// Validate 检查配置的一致性
func (c Config) Validate() error {
	if c.RootLeft == "" || c.RootRight == "" {
		return errors.New("root-left and root-right are required")
	}
	for _, p := range []types.Panel{c.WatchPanel, c.FreePanel} {
		if p != types.PanelLeft && p != types.PanelRight {
			return &UnknownPanelError{Panel: p}
		}
	}
	if _, err := c.DirMode(); err != nil {
		return err
	}
	for _, panel := range []types.Panel{types.PanelLeft, types.PanelRight} {
		endpoints, _ := c.Endpoints(panel)
		seen := make(map[string]int)
		for _, e := range endpoints {
			if e.Host == "" {
				return fmt.Errorf("endpoint-%s: host is required (folder '%s')", panel, e.Folder)
			}
			if e.Protocol != ProtocolFTP && e.Protocol != ProtocolSFTP {
				return fmt.Errorf("endpoint-%s: unsupported protocol '%s'", panel, e.Protocol)
			}
			seen[e.Folder]++
		}
		for folder, n := range seen {
			if n > 1 {
				return &EndpointConflictError{Panel: panel, Folder: folder, Count: n}
			}
		}
	}
	return nil
}

// DirMode 解析 mkdir-mode；空字符串表示不 chmod
func (c Config) DirMode() (os.FileMode, error) {
	if c.MkdirMode == "" {
		return 0, nil
	}
	m, err := strconv.ParseUint(c.MkdirMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mkdir-mode '%s': %w", c.MkdirMode, err)
	}
	return os.FileMode(m) & os.ModePerm, nil
}

// Root 返回面板的根目录
func (c Config) Root(panel types.Panel) (string, error) {
	switch panel {
	case types.PanelLeft:
		return c.RootLeft, nil
	case types.PanelRight:
		return c.RootRight, nil
	}
	return "", &UnknownPanelError{Panel: panel}
}

// ReadOnly 报告面板是否只读；未知面板按只读处理
func (c Config) ReadOnly(panel types.Panel) bool {
	switch panel {
	case types.PanelLeft:
		return c.ROLeft
	case types.PanelRight:
		return c.RORight
	}
	return true
}

// Endpoints 返回面板配置的 endpoint 列表
func (c Config) Endpoints(panel types.Panel) ([]types.EndpointConfig, error) {
	switch panel {
	case types.PanelLeft:
		return c.EndpointsLeft, nil
	case types.PanelRight:
		return c.EndpointsRight, nil
	}
	return nil, &UnknownPanelError{Panel: panel}
}

// OtherPanel 返回另一侧面板
func OtherPanel(panel types.Panel) types.Panel {
	if panel == types.PanelLeft {
		return types.PanelRight
	}
	return types.PanelLeft
}
