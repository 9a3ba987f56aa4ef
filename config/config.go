package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig control API server configuration
type WebConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	StaticDir    string        `yaml:"static_dir"`
	StartTimeout time.Duration `yaml:"start_timeout"`
}

// LogConfig logger configuration
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// ReconnectConfig controls how a session retries after a transient disconnect.
type ReconnectConfig struct {
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	Multiplier    float64       `yaml:"multiplier"`
	MaxAttempts   int           `yaml:"max_attempts"` // 0 means unbounded
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// WhatsAppConfig session gateway configuration
type WhatsAppConfig struct {
	SessionsDir        string          `yaml:"sessions_dir"`
	LogLevel           string          `yaml:"log_level"`
	TerminalQR         bool            `yaml:"terminal_qr"`
	PresenceWorkers    int             `yaml:"presence_workers"`
	RestoreConcurrency int             `yaml:"restore_concurrency"`
	Reconnect          ReconnectConfig `yaml:"reconnect"`
}

type AppConfig struct {
	System   SysConfig      `yaml:"system"`
	Web      WebConfig      `yaml:"web"`
	Logger   LogConfig      `yaml:"logger"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
}

// GetSessionsDir returns the absolute sessions root.
func (c *AppConfig) GetSessionsDir() string {
	if filepath.IsAbs(c.WhatsApp.SessionsDir) {
		return c.WhatsApp.SessionsDir
	}
	return filepath.Join(c.System.Workdir, c.WhatsApp.SessionsDir)
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "Mr-JiN-MD",
		Location: "Asia/Kolkata",
		Workdir:  ".",
		Debug:    false,
	},
	Web: WebConfig{
		Host:         "0.0.0.0",
		Port:         3000,
		StaticDir:    "public",
		StartTimeout: 60 * time.Second,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: false,
		Filename:   "logs/wagate.log",
	},
	WhatsApp: WhatsAppConfig{
		SessionsDir:        "sessions",
		LogLevel:           "WARN",
		TerminalQR:         false,
		PresenceWorkers:    64,
		RestoreConcurrency: 4,
		Reconnect: ReconnectConfig{
			InitialDelay:  0,
			MaxDelay:      60 * time.Second,
			Multiplier:    2,
			MaxAttempts:   0,
			RatePerSecond: 5,
			Burst:         10,
		},
	},
}

// LoadConfig reads the yaml file (optional), then applies environment
// overrides. A .env file in the working directory is loaded first when present.
func LoadConfig(cfile string) (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := *DefaultAppConfig
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", cfile)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", cfile)
		}
	}
	applyEnv(&cfg)
	cfg.normalize()
	return &cfg, nil
}

func setEnvString(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func setEnvInt(name string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			*dst = n
		}
	}
}

func setEnvBool(name string, dst *bool) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if b, err := cast.ToBoolE(v); err == nil {
			*dst = b
		}
	}
}

func applyEnv(cfg *AppConfig) {
	setEnvInt("PORT", &cfg.Web.Port)
	setEnvString("WAGATE_WORKDIR", &cfg.System.Workdir)
	setEnvString("WAGATE_SESSIONS_DIR", &cfg.WhatsApp.SessionsDir)
	setEnvString("WAGATE_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvString("WAGATE_WA_LOG_LEVEL", &cfg.WhatsApp.LogLevel)
	setEnvBool("WAGATE_TERMINAL_QR", &cfg.WhatsApp.TerminalQR)
	setEnvInt("WAGATE_RECONNECT_MAX_ATTEMPTS", &cfg.WhatsApp.Reconnect.MaxAttempts)
}

func (c *AppConfig) normalize() {
	if c.Web.Port <= 0 {
		c.Web.Port = DefaultAppConfig.Web.Port
	}
	if c.Web.StartTimeout <= 0 {
		c.Web.StartTimeout = DefaultAppConfig.Web.StartTimeout
	}
	if c.WhatsApp.SessionsDir == "" {
		c.WhatsApp.SessionsDir = DefaultAppConfig.WhatsApp.SessionsDir
	}
	if c.WhatsApp.PresenceWorkers <= 0 {
		c.WhatsApp.PresenceWorkers = DefaultAppConfig.WhatsApp.PresenceWorkers
	}
	if c.WhatsApp.RestoreConcurrency <= 0 {
		c.WhatsApp.RestoreConcurrency = DefaultAppConfig.WhatsApp.RestoreConcurrency
	}
	if c.WhatsApp.Reconnect.Multiplier < 1 {
		c.WhatsApp.Reconnect.Multiplier = 1
	}
	if c.WhatsApp.Reconnect.MaxDelay <= 0 {
		c.WhatsApp.Reconnect.MaxDelay = DefaultAppConfig.WhatsApp.Reconnect.MaxDelay
	}
}
