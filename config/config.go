package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	OSS         OSSConfig         `mapstructure:"oss"`
	Queue       QueueConfig       `mapstructure:"queue"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Log         LogConfig         `mapstructure:"log"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
	Progression ProgressionConfig `mapstructure:"progression"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Upload      UploadConfig      `mapstructure:"upload"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	AdminSecret string `mapstructure:"admin_secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type QueueConfig struct {
	ActivityQueue string `mapstructure:"activity_queue"`
	EventChannel  string `mapstructure:"event_channel"`
	MaxWorkers    int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// EntitlementConfig 套餐基线额度
type EntitlementConfig struct {
	Tiers map[string]TierConfig `mapstructure:"tiers"`
}

type TierConfig struct {
	PromptsPerMonth int  `mapstructure:"prompts_per_month"`
	Unlimited       bool `mapstructure:"unlimited"`
	StorageLimitMB  int  `mapstructure:"storage_limit_mb"`
	Rank            int  `mapstructure:"rank"`
}

// ProgressionConfig 经验、等级与连续打卡配置
type ProgressionConfig struct {
	LevelThresholds  []int          `mapstructure:"level_thresholds"`
	Rewards          map[string]int `mapstructure:"rewards"`
	StreakMilestones []int          `mapstructure:"streak_milestones"`
	DefaultTimezone  string         `mapstructure:"default_timezone"`
}

type LedgerConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	SweepBatch int           `mapstructure:"sweep_batch"`
	SweepEvery time.Duration `mapstructure:"sweep_every"`
}

type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"` // 单文件最大字节数
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("queue.activity_queue", "activity_queue")
	v.SetDefault("queue.event_channel", "progression_events")
	v.SetDefault("queue.max_workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// ApplyDefaults 补全未配置的引擎参数
func (c *Config) ApplyDefaults() {
	if len(c.Entitlement.Tiers) == 0 {
		c.Entitlement = DefaultEntitlement()
	}
	def := DefaultProgression()
	if len(c.Progression.LevelThresholds) == 0 {
		c.Progression.LevelThresholds = def.LevelThresholds
	}
	if len(c.Progression.Rewards) == 0 {
		c.Progression.Rewards = def.Rewards
	}
	if len(c.Progression.StreakMilestones) == 0 {
		c.Progression.StreakMilestones = def.StreakMilestones
	}
	if c.Progression.DefaultTimezone == "" {
		c.Progression.DefaultTimezone = def.DefaultTimezone
	}
	l := DefaultLedger()
	if c.Ledger.MaxRetries <= 0 {
		c.Ledger.MaxRetries = l.MaxRetries
	}
	if c.Ledger.BaseDelay <= 0 {
		c.Ledger.BaseDelay = l.BaseDelay
	}
	if c.Ledger.MaxDelay <= 0 {
		c.Ledger.MaxDelay = l.MaxDelay
	}
	if c.Ledger.SweepBatch <= 0 {
		c.Ledger.SweepBatch = l.SweepBatch
	}
	if c.Ledger.SweepEvery <= 0 {
		c.Ledger.SweepEvery = l.SweepEvery
	}
}

// Validate 校验套餐表与等级表
func (c *Config) Validate() error {
	for _, tier := range []string{"free", "pro", "power"} {
		t, ok := c.Entitlement.Tiers[tier]
		if !ok {
			return fmt.Errorf("entitlement: missing tier %q", tier)
		}
		if t.StorageLimitMB <= 0 {
			return fmt.Errorf("entitlement: tier %q storage_limit_mb must be positive", tier)
		}
		if !t.Unlimited && t.PromptsPerMonth < 0 {
			return fmt.Errorf("entitlement: tier %q prompts_per_month must not be negative", tier)
		}
	}

	th := c.Progression.LevelThresholds
	if len(th) == 0 || th[0] != 0 {
		return errors.New("progression: level_thresholds must start at 0")
	}
	for i := 1; i < len(th); i++ {
		if th[i] < th[i-1] {
			return fmt.Errorf("progression: level_thresholds not monotonic at index %d", i)
		}
	}
	for action, xp := range c.Progression.Rewards {
		if xp <= 0 {
			return fmt.Errorf("progression: reward %q must be positive", action)
		}
	}
	if _, err := time.LoadLocation(c.Progression.DefaultTimezone); err != nil {
		return fmt.Errorf("progression: invalid default_timezone: %w", err)
	}
	return nil
}

func DefaultEntitlement() EntitlementConfig {
	return EntitlementConfig{
		Tiers: map[string]TierConfig{
			"free":  {PromptsPerMonth: 100, StorageLimitMB: 100, Rank: 0},
			"pro":   {PromptsPerMonth: 1000, StorageLimitMB: 500, Rank: 1},
			"power": {Unlimited: true, StorageLimitMB: 2000, Rank: 2},
		},
	}
}

func DefaultProgression() ProgressionConfig {
	return ProgressionConfig{
		LevelThresholds: []int{0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 11000},
		Rewards: map[string]int{
			"entry_created":        10,
			"streak_milestone":     50,
			"achievement_unlocked": 25,
			"prompt_used":          2,
		},
		StreakMilestones: []int{3, 7, 14, 30, 60, 100, 365},
		DefaultTimezone:  "UTC",
	}
}

func DefaultLedger() LedgerConfig {
	return LedgerConfig{
		MaxRetries: 5,
		BaseDelay:  2 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
		SweepBatch: 200,
		SweepEvery: time.Hour,
	}
}
