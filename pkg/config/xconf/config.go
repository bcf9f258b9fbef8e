// Package xconf 基于 koanf 加载 YAML/JSON 配置，支持默认值、重载与文件监视。
//
//	cfg, err := xconf.New("xsync.yaml", xconf.WithDefaults(map[string]any{
//		"lock.shards": 32,
//	}))
//	var lock LockConfig
//	err = cfg.Unmarshal("lock", &lock)
package xconf

import (
	"errors"

	"github.com/knadh/koanf/v2"
)

// Format 定义配置文件格式。
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	// ErrEmptyPath 表示配置文件路径为空。
	ErrEmptyPath = errors.New("xconf: empty config path")

	// ErrUnsupportedFormat 表示不支持的配置格式。
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")

	// ErrLoadFailed 表示读取配置文件失败。
	ErrLoadFailed = errors.New("xconf: failed to load config")

	// ErrParseFailed 表示配置内容解析失败。
	ErrParseFailed = errors.New("xconf: failed to parse config")

	// ErrUnmarshalFailed 表示配置反序列化失败。
	ErrUnmarshalFailed = errors.New("xconf: failed to unmarshal config")

	// ErrNotReloadable 表示配置不是从文件创建，不能重载或监视。
	ErrNotReloadable = errors.New("xconf: config not backed by a file")
)

// Config 是已加载的配置。所有方法并发安全。
type Config interface {
	// Client 返回底层 koanf 实例的当前快照。
	Client() *koanf.Koanf

	// Unmarshal 将 path 下的配置反序列化到 target，path 为空时取整个配置。
	Unmarshal(path string, target any) error

	// Reload 重新读取配置文件，失败时保留旧配置。
	Reload() error

	// Path 返回配置文件路径，从字节创建时为空。
	Path() string

	Format() Format
}
