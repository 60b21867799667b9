package types

import "fmt"

// Panel 是两个文件面板之一
type Panel string

const (
	PanelLeft  Panel = "left"
	PanelRight Panel = "right"
)

// Placeholder 用于无法获取的 owner/size 字段
const Placeholder = "-----"

// NoPermissions 是 9 位权限串的占位符
const NoPermissions = "---------"

// EntryKind 表示目录项的类型
type EntryKind string

const (
	KindDir     EntryKind = "dir"
	KindFile    EntryKind = "file"
	KindUnknown EntryKind = "-"
)

// DirectoryEntry 是一次目录枚举中的一项，创建后不再修改
type DirectoryEntry struct {
	Path  string    `json:"path"`
	Name  string    `json:"name"`
	Type  EntryKind `json:"type"`
	User  string    `json:"user"`
	Size  string    `json:"size"`
	Perms string    `json:"perms"`
}

// EndpointConfig 描述一个远端可拉取的目录镜像 (仅远程面板)
type EndpointConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"` // 为空时从系统钥匙串读取
	Folder   string `yaml:"folder" json:"folder"`
	Protocol string `yaml:"protocol,omitempty" json:"protocol"` // "ftp" (wget) or "sftp"
	KeyPath  string `yaml:"key,omitempty" json:"-"`             // sftp 私钥路径
}

// Address 返回 host:port 形式的地址
func (e EndpointConfig) Address(defaultPort int) string {
	port := e.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", e.Host, port)
}

// TransferStatus 是单个条目传输结束时的状态
type TransferStatus string

const (
	StatusCopied TransferStatus = "copied"
	StatusError  TransferStatus = "error"
)

// TransferProgress 在子进程运行期间被多次发送
type TransferProgress struct {
	Name    string `json:"name"`
	Percent int    `json:"percent"`
	Speed   string `json:"speed"`
	ETA     string `json:"eta"`
	File    string `json:"file,omitempty"` // fetch 工具输出的显示名
}

// TransferResult 在每个条目的进程退出时恰好发送一次
type TransferResult struct {
	Name       string         `json:"name"`
	Status     TransferStatus `json:"status"`
	Message    string         `json:"message"`
	LogPath    string         `json:"-"`
	LogMessage string         `json:"-"`
}

// --- 事件通道上的消息体 ---

type ListRequest struct {
	Path  string `json:"path"`
	Panel Panel  `json:"panel"`
}

type MkdirRequest struct {
	Panel Panel  `json:"panel"`
	Name  string `json:"name"`
	Path  string `json:"path"`
}

type RmRequest struct {
	Panel  Panel    `json:"panel"`
	Names  []string `json:"names"`
	Prefix string   `json:"prefix"`
}

type CpRequest struct {
	PanelSrc  Panel    `json:"panelSrc"`
	PanelDst  Panel    `json:"panelDst"`
	Names     []string `json:"names"`
	PrefixSrc string   `json:"prefixSrc"`
	PrefixDst string   `json:"prefixDst"`
}

// FilesMessage 中的 Files 要么是 []DirectoryEntry，要么是一条错误信息
type FilesMessage struct {
	Files   any    `json:"files"`
	Panel   Panel  `json:"panel"`
	Pathbar string `json:"pathbar"`
	Free    string `json:"free,omitempty"`
}

type ResultMessage struct {
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
	Panel   Panel  `json:"panel"`
}

type StatusMessage struct {
	Name    string         `json:"name"`
	Status  TransferStatus `json:"status"`
	Message string         `json:"message"`
}

type WatchMessage struct {
	Path  string `json:"path"`
	Added string `json:"added"`
}
