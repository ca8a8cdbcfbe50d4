package config

import "time"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Previews  PreviewsConfig  `koanf:"previews"`
	Blob      BlobConfig      `koanf:"blob"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Host           string    `koanf:"host"`
	Port           int       `koanf:"port"`
	PublicURL      string    `koanf:"public_url"`
	AllowedOrigins []string  `koanf:"allowed_origins"`
	TLS            TLSConfig `koanf:"tls"`
}

type TLSConfig struct {
	Mode     string        `koanf:"mode"` // off, auto, manual
	CertFile string        `koanf:"cert_file"`
	KeyFile  string        `koanf:"key_file"`
	Auto     TLSAutoConfig `koanf:"auto"`
}

type TLSAutoConfig struct {
	Domain   string `koanf:"domain"`
	Email    string `koanf:"email"`
	CacheDir string `koanf:"cache_dir"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	SessionDuration time.Duration `koanf:"session_duration"`
	SecureCookies   bool          `koanf:"secure_cookies"`
	BcryptCost      int           `koanf:"bcrypt_cost"`
}

// PreviewsConfig tunes the link-preview pipeline: outbound fetches, image
// variants, and the provider-embed cache.
type PreviewsConfig struct {
	FetchTimeout  time.Duration `koanf:"fetch_timeout"`
	TaskTimeout   time.Duration `koanf:"task_timeout"`
	MaxImageBytes int64         `koanf:"max_image_bytes"`
	ThumbEdge     int           `koanf:"thumb_edge"`
	FullEdge      int           `koanf:"full_edge"`
	JPEGQuality   int           `koanf:"jpeg_quality"`
	UserAgent     string        `koanf:"user_agent"`
	OembedTTL     time.Duration `koanf:"oembed_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	SweepBatch    int           `koanf:"sweep_batch"`
}

type BlobConfig struct {
	Backend string      `koanf:"backend"` // fs, minio
	FSRoot  string      `koanf:"fs_root"`
	Minio   MinioConfig `koanf:"minio"`
}

type MinioConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

type RateLimitConfig struct {
	Enabled   bool              `koanf:"enabled"`
	Login     RateLimitEndpoint `koanf:"login"`
	Transform RateLimitEndpoint `koanf:"transform"`
}

type RateLimitEndpoint struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Protocol string `koanf:"protocol"` // grpc, http
	Endpoint string `koanf:"endpoint"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			PublicURL: "http://localhost:8080",
			TLS: TLSConfig{
				Mode: "off",
				Auto: TLSAutoConfig{
					CacheDir: "./data/certs",
				},
			},
		},
		Database: DatabaseConfig{
			Path: "./data/huddle.db",
		},
		Auth: AuthConfig{
			SessionDuration: 720 * time.Hour, // 30 days
			SecureCookies:   false,
			BcryptCost:      12,
		},
		Previews: PreviewsConfig{
			FetchTimeout:  5 * time.Second,
			TaskTimeout:   30 * time.Second,
			MaxImageBytes: 5 << 20, // 5 MiB
			ThumbEdge:     320,
			FullEdge:      640,
			JPEGQuality:   70,
			UserAgent:     "huddlebot/1.0 (+https://github.com/huddle/api)",
			OembedTTL:     24 * time.Hour,
			SweepInterval: time.Hour,
			SweepBatch:    100,
		},
		Blob: BlobConfig{
			Backend: "fs",
			FSRoot:  "./data/previews",
			Minio: MinioConfig{
				Bucket: "huddle-previews",
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			Login:     RateLimitEndpoint{Limit: 10, Window: time.Minute},
			Transform: RateLimitEndpoint{Limit: 30, Window: time.Minute},
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Protocol: "grpc",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
