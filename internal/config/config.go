package config

import (
	"fmt"
	"os"
	"time"
)

// 联系人存储后端
const (
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config LifeSignal 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	LifeSignal struct {
		UserID   string // 被监护用户ID（MQTT 主题、Redis 键的一部分）
		DeviceID string // 本设备ID（跨设备事件 origin）

		// 升级配置
		Escalation struct {
			CountdownSec int // 倒计时秒数，默认 30
			TickMillis   int // 倒计时节拍（毫秒），默认 1000
		}

		// 联系人存储配置
		Contacts struct {
			Store    string // file / redis / postgres
			FilePath string // file 存储路径
			RedisKey string // redis 存储键前缀，如 "lifesignal:contacts:"
		}

		// 跨设备事件总线
		Bus struct {
			MQTTEnabled bool   // 是否通过 MQTT 桥接到对端设备
			TopicPrefix string // 主题前缀，如 "lifesignal"
			BufferSize  int    // 每个订阅者的缓冲大小
		}

		// 报警下发配置
		Dispatch struct {
			Enabled       bool   // 本设备是否负责向联系人下发
			StreamEnabled bool   // 是否写入 Redis Streams
			AlertStream   string // 如 "lifesignal:alerts:stream"
			AlertLogDB    bool   // 是否写入 PostgreSQL alert_records
			SMSOverMQTT   bool   // 是否通过 MQTT 把短信请求交给网关
		}
	}

	// 远程风险分析服务（可选）
	Analysis struct {
		Enabled    bool
		BaseURL    string
		Timeout    time.Duration
		RetryCount int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 1. 连接配置（默认值 + 环境变量覆盖）
	cfg.Database = DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "lifesignal",
		SSLMode:  "disable",
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = MQTTConfig{Broker: "tcp://localhost:1883", QoS: 1}
	cfg.MQTT.LoadFromEnv("MQTT")

	// 2. 设备身份
	cfg.LifeSignal.UserID = getEnv("USER_ID", "default")
	hostname, _ := os.Hostname()
	cfg.LifeSignal.DeviceID = getEnv("DEVICE_ID", hostname)
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "lifesignal-" + cfg.LifeSignal.DeviceID
	}

	// 3. 升级配置
	cfg.LifeSignal.Escalation.CountdownSec = getEnvInt("COUNTDOWN_SEC", 30)
	cfg.LifeSignal.Escalation.TickMillis = getEnvInt("COUNTDOWN_TICK_MS", 1000)

	// 4. 联系人存储
	cfg.LifeSignal.Contacts.Store = getEnv("CONTACT_STORE", StoreFile)
	cfg.LifeSignal.Contacts.FilePath = getEnv("CONTACT_FILE", "emergency_contacts.json")
	cfg.LifeSignal.Contacts.RedisKey = getEnv("CONTACT_REDIS_PREFIX", "lifesignal:contacts:")

	// 5. 事件总线
	cfg.LifeSignal.Bus.MQTTEnabled = getEnvBool("BUS_MQTT_ENABLED", false)
	cfg.LifeSignal.Bus.TopicPrefix = getEnv("BUS_TOPIC_PREFIX", "lifesignal")
	cfg.LifeSignal.Bus.BufferSize = getEnvInt("BUS_BUFFER_SIZE", 64)

	// 6. 报警下发
	cfg.LifeSignal.Dispatch.Enabled = getEnvBool("DISPATCH_ENABLED", true)
	cfg.LifeSignal.Dispatch.StreamEnabled = getEnvBool("DISPATCH_STREAM_ENABLED", false)
	cfg.LifeSignal.Dispatch.AlertStream = getEnv("ALERT_STREAM", "lifesignal:alerts:stream")
	cfg.LifeSignal.Dispatch.AlertLogDB = getEnvBool("DISPATCH_ALERT_LOG_DB", false)
	cfg.LifeSignal.Dispatch.SMSOverMQTT = getEnvBool("DISPATCH_SMS_MQTT", false)

	// 7. 风险分析
	cfg.Analysis.Enabled = getEnvBool("ANALYSIS_ENABLED", false)
	cfg.Analysis.BaseURL = getEnv("ANALYSIS_BASE_URL", "http://localhost:5100/api")
	cfg.Analysis.Timeout = time.Duration(getEnvInt("ANALYSIS_TIMEOUT_MS", 2000)) * time.Millisecond
	cfg.Analysis.RetryCount = getEnvInt("ANALYSIS_RETRY_COUNT", 1)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.LifeSignal.Contacts.Store {
	case StoreFile, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("unsupported contact store: %s", c.LifeSignal.Contacts.Store)
	}
	if c.LifeSignal.Escalation.CountdownSec <= 0 {
		return fmt.Errorf("countdown must be positive, got %d", c.LifeSignal.Escalation.CountdownSec)
	}
	if c.LifeSignal.Escalation.TickMillis <= 0 {
		return fmt.Errorf("countdown tick must be positive, got %d", c.LifeSignal.Escalation.TickMillis)
	}
	if c.LifeSignal.DeviceID == "" {
		return fmt.Errorf("DEVICE_ID is required")
	}
	return nil
}

// Countdown 倒计时时长
func (c *Config) Countdown() time.Duration {
	return time.Duration(c.LifeSignal.Escalation.CountdownSec) * time.Second
}

// Tick 倒计时节拍
func (c *Config) Tick() time.Duration {
	return time.Duration(c.LifeSignal.Escalation.TickMillis) * time.Millisecond
}

// EventsTopic 跨设备事件主题
func (c *Config) EventsTopic() string {
	return fmt.Sprintf("%s/%s/events", c.LifeSignal.Bus.TopicPrefix, c.LifeSignal.UserID)
}

// ReadingsTopic 读数订阅主题（通配所有设备）
func (c *Config) ReadingsTopic() string {
	return fmt.Sprintf("%s/%s/readings/+", c.LifeSignal.Bus.TopicPrefix, c.LifeSignal.UserID)
}

// CommandsTopic 命令主题（手动 SOS、取消倒计时）
func (c *Config) CommandsTopic() string {
	return fmt.Sprintf("%s/%s/commands", c.LifeSignal.Bus.TopicPrefix, c.LifeSignal.UserID)
}

// SMSTopic 短信网关主题
func (c *Config) SMSTopic() string {
	return fmt.Sprintf("%s/%s/sms", c.LifeSignal.Bus.TopicPrefix, c.LifeSignal.UserID)
}
