package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// Config 全局配置结构体
type Config struct {
	Client   ClientConfig   `mapstructure:"client"`
	Room     RoomConfig     `mapstructure:"room"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Control  ControlConfig  `mapstructure:"control"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	MCP      MCPConfig      `mapstructure:"mcp"`
}

// ClientConfig 房间服务器连接配置
type ClientConfig struct {
	ServerURL         string        `mapstructure:"server_url"`
	RoomID            string        `mapstructure:"room_id"`
	PlayerID          int           `mapstructure:"player_id"`
	Token             string        `mapstructure:"token"` // 握手时作为 Bearer 令牌发送
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// RoomConfig 回合状态机配置
type RoomConfig struct {
	// DefaultCancelPolicy 取值 default / reply / retry
	DefaultCancelPolicy string `mapstructure:"default_cancel_policy"`
	// CancelPolicies 按请求类型覆盖取消策略，例如 AskForUseCard: reply
	CancelPolicies map[string]string `mapstructure:"cancel_policies"`
	Persist        bool              `mapstructure:"persist"`
	JournalReplies bool              `mapstructure:"journal_replies"`
	InboxSize      int               `mapstructure:"inbox_size"`
}

// RulesConfig 规则脚本配置
type RulesConfig struct {
	Script string `mapstructure:"script"` // 为空时使用内置脚本
	// Cards 实体卡牌编号到牌名，例如 "7": slash
	Cards map[string]string `mapstructure:"cards"`
}

// CardNames 解析卡牌编号
func (r RulesConfig) CardNames() (map[int]string, error) {
	names := make(map[int]string, len(r.Cards))
	for key, name := range r.Cards {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || id < 0 {
			return nil, apperrors.Newf(apperrors.ErrConfigValidate, "rules.cards 卡牌编号无效: %s", key)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, apperrors.Newf(apperrors.ErrConfigValidate, "rules.cards.%s 牌名为空", key)
		}
		names[id] = name
	}
	return names, nil
}

// ControlConfig 控制API配置
type ControlConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	JWT             JWTConfig     `mapstructure:"jwt"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MCPConfig MCP工具服务配置
type MCPConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// 取消策略
const (
	CancelPolicyDefault = "default"
	CancelPolicyReply   = "reply"
	CancelPolicyRetry   = "retry"
)

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		cfg = loaded
	})

	return err
}

// Load 读取一份独立的配置（不影响全局配置）
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	// 环境变量覆盖，例如 ROOM_CLIENT_CLIENT_SERVER_URL
	vp.SetEnvPrefix("ROOM_CLIENT")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, apperrors.Wrap(err, apperrors.ErrConfigLoad)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrConfigLoad, "解析配置失败")
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	return vp, c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器连接
	v.SetDefault("client.server_url", "ws://127.0.0.1:9527/room")
	v.SetDefault("client.room_id", "")
	v.SetDefault("client.player_id", 0)
	v.SetDefault("client.token", "")
	v.SetDefault("client.handshake_timeout", "10s")
	v.SetDefault("client.reconnect_interval", "3s")
	v.SetDefault("client.max_reconnects", 5)
	v.SetDefault("client.max_message_size", 65536)
	v.SetDefault("client.ping_interval", "30s")
	v.SetDefault("client.pong_timeout", "60s")
	v.SetDefault("client.write_timeout", "10s")

	// 回合状态机
	v.SetDefault("room.default_cancel_policy", CancelPolicyDefault)
	v.SetDefault("room.persist", false)
	v.SetDefault("room.journal_replies", true)
	v.SetDefault("room.inbox_size", 64)

	v.SetDefault("rules.script", "")

	// 控制API
	v.SetDefault("control.enabled", true)
	v.SetDefault("control.host", "127.0.0.1")
	v.SetDefault("control.port", 8090)
	v.SetDefault("control.mode", "release")
	v.SetDefault("control.read_timeout", "15s")
	v.SetDefault("control.write_timeout", "15s")
	v.SetDefault("control.shutdown_timeout", "5s")
	v.SetDefault("control.jwt.secret", "")
	v.SetDefault("control.jwt.expire_hours", 24)

	// 数据库
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/room-client.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 日志
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "room-client.log")
	v.SetDefault("log.file.max_size", 50)
	v.SetDefault("log.file.max_age", 14)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("mcp.name", "room-client")
	v.SetDefault("mcp.version", "1.0.0")
}

// Validate 校验配置
func (c *Config) Validate() error {
	if !ValidCancelPolicy(c.Room.DefaultCancelPolicy) {
		return apperrors.Newf(apperrors.ErrConfigValidate, "room.default_cancel_policy 无效: %s", c.Room.DefaultCancelPolicy)
	}
	for kind, policy := range c.Room.CancelPolicies {
		if !ValidCancelPolicy(policy) {
			return apperrors.Newf(apperrors.ErrConfigValidate, "room.cancel_policies.%s 无效: %s", kind, policy)
		}
	}
	if _, err := c.Rules.CardNames(); err != nil {
		return err
	}
	if c.Room.InboxSize <= 0 {
		return apperrors.New(apperrors.ErrConfigValidate, "room.inbox_size 必须大于0")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return apperrors.Newf(apperrors.ErrConfigValidate, "不支持的数据库驱动: %s", c.Database.Driver)
	}
	return nil
}

// ValidCancelPolicy 判断取消策略是否有效
func ValidCancelPolicy(policy string) bool {
	switch policy {
	case CancelPolicyDefault, CancelPolicyReply, CancelPolicyRetry:
		return true
	}
	return false
}

// CancelPolicyFor 返回某个请求类型的取消策略
func (r RoomConfig) CancelPolicyFor(kind string) string {
	// viper 读取map时键名会转为小写
	for k, p := range r.CancelPolicies {
		if strings.EqualFold(k, kind) {
			return p
		}
	}
	if r.DefaultCancelPolicy == "" {
		return CancelPolicyDefault
	}
	return r.DefaultCancelPolicy
}

// Addr 控制API监听地址
func (c ControlConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载被拒绝: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
}
