package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// データベース接続設定
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPath     string

	// サーバー設定
	ServerPort    string
	Env           string
	PublicBaseURL string
	MaxBodyBytes  int64
	LogLevel      string

	// CORS設定
	AllowedOrigins []string

	// 認証設定
	JWTSecret string
	JWTTTL    time.Duration

	// アップロード設定
	UploadDir string

	// WebSocket設定
	WSAuthTimeout time.Duration
	WSSendBuffer  int
}

func defaults(v *viper.Viper) {
	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_PATH", "chatrelay.db")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("MAX_BODY_BYTES", 4<<20)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_TTL", "168h")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("WS_AUTH_TIMEOUT", "5s")
	v.SetDefault("WS_SEND_BUFFER", 64)
}

// LoadEnvFile loads a .env file into the process environment. A missing file is not an error.
func LoadEnvFile(path string) {
	if err := godotenv.Load(path); err != nil {
		jww.WARN.Printf("⚠️  %s not loaded, using environment and defaults: %v", path, err)
	}
}

// Load reads configuration from environment variables
func Load() Config {
	return LoadFlags(nil)
}

// LoadFlags is Load with command line flags taking precedence.
// Only --port is recognised; it overrides SERVER_PORT.
func LoadFlags(flags *pflag.FlagSet) Config {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	if flags != nil {
		if f := flags.Lookup("port"); f != nil {
			if err := v.BindPFlag("SERVER_PORT", f); err != nil {
				jww.ERROR.Printf("viper.BindPFlag failed for %q: %+v", "port", err)
			}
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	cfg := Config{
		DBDriver:      strings.ToLower(v.GetString("DB_DRIVER")),
		DBHost:        v.GetString("DB_HOST"),
		DBPort:        v.GetString("DB_PORT"),
		DBUser:        v.GetString("DB_USER"),
		DBPassword:    v.GetString("DB_PASSWORD"),
		DBName:        v.GetString("DB_NAME"),
		DBPath:        v.GetString("DB_PATH"),
		ServerPort:    v.GetString("SERVER_PORT"),
		Env:           v.GetString("ENV"),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		MaxBodyBytes:  v.GetInt64("MAX_BODY_BYTES"),
		LogLevel:      strings.ToLower(v.GetString("LOG_LEVEL")),
		JWTSecret:     v.GetString("JWT_SECRET"),
		JWTTTL:        v.GetDuration("JWT_TTL"),
		UploadDir:     v.GetString("UPLOAD_DIR"),
		WSAuthTimeout: v.GetDuration("WS_AUTH_TIMEOUT"),
		WSSendBuffer:  v.GetInt("WS_SEND_BUFFER"),
	}

	for _, origin := range strings.Split(v.GetString("ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:" + cfg.ServerPort
	}

	return cfg
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "mysql":
		if c.DBName == "" {
			return errors.New("DB_NAME is required for the mysql driver")
		}
	case "sqlite3":
		if c.DBPath == "" {
			return errors.New("DB_PATH is required for the sqlite3 driver")
		}
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.WSAuthTimeout <= 0 {
		return errors.New("WS_AUTH_TIMEOUT must be positive")
	}
	if c.WSSendBuffer <= 0 {
		return errors.New("WS_SEND_BUFFER must be positive")
	}
	return nil
}

// SetupLogging applies LogLevel to the jww stdout threshold.
func (c Config) SetupLogging() {
	switch c.LogLevel {
	case "trace":
		jww.SetStdoutThreshold(jww.LevelTrace)
	case "debug":
		jww.SetStdoutThreshold(jww.LevelDebug)
	case "warn":
		jww.SetStdoutThreshold(jww.LevelWarn)
	case "error":
		jww.SetStdoutThreshold(jww.LevelError)
	default:
		jww.SetStdoutThreshold(jww.LevelInfo)
	}
}
