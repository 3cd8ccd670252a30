package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Addr string `yaml:"-"` // 不从配置文件读取，而是在加载后计算
	} `yaml:"server"`
	Generation struct {
		APIKey      string  `yaml:"api_key"`
		Model       string  `yaml:"model"`
		BaseURL     string  `yaml:"base_url"`
		TimeoutSec  int     `yaml:"timeout_sec"` // 单次生成请求超时，单位：秒
		Temperature float64 `yaml:"temperature"`
	} `yaml:"generation"`
	Log struct {
		Level    string `yaml:"level"`
		Format   string `yaml:"format"`
		Output   string `yaml:"output"`
		FilePath string `yaml:"file_path"`
	} `yaml:"log"`

	DB struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		Database        string `yaml:"database"`
		Charset         string `yaml:"charset"`
		ParseTime       bool   `yaml:"parse_time"`
		DSN             string `yaml:"-"`                 // 不从配置文件读取，而是在加载后计算
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 最大打开连接数
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 最大空闲连接数
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 连接最大生命周期（分钟）
	} `yaml:"database"`
	Store struct {
		Dir string `yaml:"dir"` // 每个用户一个 SQLite 文件
	} `yaml:"store"`
	Profile struct {
		CatalogPath string `yaml:"catalog_path"` // 为空时使用内置关键词表
		RecencyDays int    `yaml:"recency_days"` // 近期条目窗口（天）
	} `yaml:"profile"`
	Scheduler struct {
		Enabled          bool   `yaml:"enabled"`
		ProfileSweepCron string `yaml:"profile_sweep_cron"` // 画像过期检查的 cron 表达式
		CheckIntervalSec int    `yaml:"check_interval_sec"` // 调度器检查间隔（秒）
		Concurrency      int    `yaml:"concurrency"`        // 画像重建并发数
	} `yaml:"scheduler"`
}

// Load 加载默认路径的配置
func Load() *Config {
	return LoadFile(defaultConfigPath)
}

// LoadFile 依次读取 .env、yaml 配置文件与环境变量
func LoadFile(path string) *Config {
	// 首先尝试加载.env文件中的环境变量
	_ = godotenv.Load() // 忽略错误，如果.env文件不存在，继续使用系统环境变量

	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		// 如果配置文件不存在，则完全从环境变量加载配置
		return loadFromEnv()
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Printf("Error loading %s: %v, falling back to environment variables", path, err)
		return loadFromEnv()
	}
	log.Printf("Loading configuration from %s", path)

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg
}

func loadFromEnv() *Config {
	var cfg Config

	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	cfg.Generation.BaseURL = os.Getenv("GENERATION_BASE_URL")
	cfg.Generation.Model = os.Getenv("GENERATION_MODEL")
	cfg.Store.Dir = os.Getenv("STORE_DIR")

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	log.Println("配置从环境变量加载，部分配置可能缺失")
	return &cfg
}

// applyEnvOverrides 从环境变量中加载敏感信息
func applyEnvOverrides(cfg *Config) {
	if envUsername := os.Getenv("DATABASE_USERNAME"); envUsername != "" {
		cfg.DB.Username = envUsername
	}
	if envPassword := os.Getenv("DATABASE_PASSWORD"); envPassword != "" {
		cfg.DB.Password = envPassword
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		cfg.DB.DSN = dsn
	}
	if apiKey := os.Getenv("GENERATION_API_KEY"); apiKey != "" {
		cfg.Generation.APIKey = apiKey
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	cfg.Server.Addr = fmt.Sprintf(":%d", cfg.Server.Port)

	if cfg.DB.DSN == "" && cfg.DB.Host != "" {
		if cfg.DB.Charset == "" {
			cfg.DB.Charset = "utf8mb4"
		}
		parseTime := ""
		if cfg.DB.ParseTime {
			parseTime = "&parseTime=true"
		}
		cfg.DB.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s%s",
			cfg.DB.Username,
			cfg.DB.Password,
			cfg.DB.Host,
			cfg.DB.Port,
			cfg.DB.Database,
			cfg.DB.Charset,
			parseTime)
	}

	if cfg.Generation.TimeoutSec <= 0 {
		cfg.Generation.TimeoutSec = 60
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "data/insights"
	}
	if cfg.Profile.RecencyDays <= 0 {
		cfg.Profile.RecencyDays = 7
	}
	if cfg.Scheduler.ProfileSweepCron == "" {
		cfg.Scheduler.ProfileSweepCron = "*/30 * * * *"
	}
	if cfg.Scheduler.CheckIntervalSec <= 0 {
		cfg.Scheduler.CheckIntervalSec = 60
	}
	if cfg.Scheduler.Concurrency <= 0 {
		cfg.Scheduler.Concurrency = 4
	}
}
