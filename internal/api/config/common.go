package config

// Config 配置主体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logstash  LogstashConfig  `mapstructure:"logstash"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Platforms PlatformsConfig `mapstructure:"platforms"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// LogstashConfig 远程日志配置
type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

// SchedulerConfig 调度引擎配置
type SchedulerConfig struct {
	// Cron 扫描节奏（五段表达式），默认每分钟
	Cron string `mapstructure:"cron"`
	// TimeZone IANA 时区，重复规则按此时区的挂钟时间计算
	TimeZone string `mapstructure:"time_zone"`
	// GraceWindowMinutes 停机期间错过的帖子超过该窗口即转 pending_manual
	GraceWindowMinutes int `mapstructure:"grace_window_minutes"`
	MaxAttempts        int `mapstructure:"max_attempts"`
	BaseBackoffMs      int `mapstructure:"base_backoff_ms"`
	MaxBackoffMs       int `mapstructure:"max_backoff_ms"`
	BatchSize          int `mapstructure:"batch_size"`
	FanoutConcurrency  int `mapstructure:"fanout_concurrency"`
}

// 宽限窗口的强制下限（分钟）
const minGraceWindowMinutes = 2

func (s *SchedulerConfig) applyDefaults() {
	if s.Cron == "" {
		s.Cron = "* * * * *"
	}
	if s.TimeZone == "" {
		s.TimeZone = "Europe/Berlin"
	}
	if s.GraceWindowMinutes <= 0 {
		s.GraceWindowMinutes = 10
	} else if s.GraceWindowMinutes < minGraceWindowMinutes {
		s.GraceWindowMinutes = minGraceWindowMinutes
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 5
	}
	if s.BaseBackoffMs <= 0 {
		s.BaseBackoffMs = 60_000
	}
	if s.MaxBackoffMs < s.BaseBackoffMs {
		s.MaxBackoffMs = 1_800_000
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 10
	}
	if s.FanoutConcurrency <= 0 {
		s.FanoutConcurrency = 4
	}
}

// PlatformsConfig 各平台凭据
type PlatformsConfig struct {
	Bluesky  BlueskyConfig  `mapstructure:"bluesky"`
	Mastodon MastodonConfig `mapstructure:"mastodon"`
}

type BlueskyConfig struct {
	ServiceURL  string `mapstructure:"service_url"`
	Identifier  string `mapstructure:"identifier"`
	AppPassword string `mapstructure:"app_password"`
}

type MastodonConfig struct {
	APIURL      string `mapstructure:"api_url"`
	AccessToken string `mapstructure:"access_token"`
}

type KafkaConfig struct {
	Enable  bool       `mapstructure:"enable"`
	Brokers []string   `mapstructure:"brokers"`
	Topic   string     `mapstructure:"topic"`
	Sasl    SaslConfig `mapstructure:"sasl"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}
