package viper

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的配置加载接口。
// 取值优先级（由低到高）：默认值 → 配置文件 → 环境变量 → 命令行参数。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。
func New() *Config {
	return &Config{
		v: spfviper.New(),
	}
}

// SetEnvPrefix 开启环境变量覆盖。
// 例如 prefix 为 SWITCHBOARD 时，key hub.port 对应环境变量 SWITCHBOARD_HUB_PORT。
func (c *Config) SetEnvPrefix(prefix string) {
	c.v.SetEnvPrefix(prefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()
}

// SetDefault 设置 key 的默认值。
func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

// SetDefaults 批量设置默认值。
func (c *Config) SetDefaults(defaults map[string]any) {
	for key, value := range defaults {
		c.v.SetDefault(key, value)
	}
}

// BindFlag 将命令行参数绑定到 key，仅当参数被显式设置时才覆盖其他来源。
func (c *Config) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return errors.Newf("flag for key %q not found", key)
	}
	return c.v.BindPFlag(key, flag)
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
	}

	if err := c.v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "load config file %s", path)
	}
	return nil
}

// ConfigFileUsed 返回实际加载的配置文件路径，未加载时为空。
func (c *Config) ConfigFileUsed() string {
	return c.v.ConfigFileUsed()
}

func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetSeconds 将 key 对应的整数秒数转换为 time.Duration。
func (c *Config) GetSeconds(key string) time.Duration {
	return time.Duration(c.v.GetInt64(key)) * time.Second
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst interface{}) error {
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) UnmarshalKey(key string, dst interface{}) error {
	return c.v.UnmarshalKey(key, dst)
}
