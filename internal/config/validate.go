package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

func Validate(cfg *Config) error {
	var errs []error

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if cfg.Server.PublicURL != "" {
		if _, err := url.Parse(cfg.Server.PublicURL); err != nil {
			errs = append(errs, fmt.Errorf("server.public_url is not a valid URL: %w", err))
		}
	}

	// Allowed origins validation
	for i, origin := range cfg.Server.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.allowed_origins[%d] %q is not a valid URL with scheme", i, origin))
		}
	}

	// TLS validation
	switch cfg.Server.TLS.Mode {
	case "", "off":
		// no additional validation needed
	case "auto":
		if cfg.Server.TLS.Auto.Domain == "" {
			errs = append(errs, fmt.Errorf("server.tls.auto.domain is required when tls mode is auto"))
		}
		if cfg.Server.TLS.Auto.CacheDir == "" {
			errs = append(errs, fmt.Errorf("server.tls.auto.cache_dir is required when tls mode is auto"))
		}
	case "manual":
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, fmt.Errorf("server.tls.cert_file is required when tls mode is manual"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, fmt.Errorf("server.tls.key_file is required when tls mode is manual"))
		}
	default:
		errs = append(errs, fmt.Errorf("server.tls.mode must be off, auto, or manual"))
	}

	// Database validation
	if cfg.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}

	// Auth validation
	if cfg.Auth.SessionDuration < time.Hour {
		errs = append(errs, fmt.Errorf("auth.session_duration must be at least 1 hour"))
	}
	if cfg.Auth.BcryptCost < 10 || cfg.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between 10 and 31"))
	}

	// Previews validation
	if cfg.Previews.FetchTimeout < time.Second {
		errs = append(errs, fmt.Errorf("previews.fetch_timeout must be at least 1s"))
	}
	if cfg.Previews.TaskTimeout < cfg.Previews.FetchTimeout {
		errs = append(errs, fmt.Errorf("previews.task_timeout must be at least previews.fetch_timeout"))
	}
	if cfg.Previews.MaxImageBytes < 1024 {
		errs = append(errs, fmt.Errorf("previews.max_image_bytes must be at least 1KB"))
	}
	if cfg.Previews.ThumbEdge < 1 || cfg.Previews.FullEdge < 1 {
		errs = append(errs, fmt.Errorf("previews.thumb_edge and previews.full_edge must be positive"))
	}
	if cfg.Previews.ThumbEdge > cfg.Previews.FullEdge {
		errs = append(errs, fmt.Errorf("previews.thumb_edge must not exceed previews.full_edge"))
	}
	if cfg.Previews.JPEGQuality < 1 || cfg.Previews.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("previews.jpeg_quality must be between 1 and 100"))
	}
	if cfg.Previews.OembedTTL < time.Minute {
		errs = append(errs, fmt.Errorf("previews.oembed_ttl must be at least 1m"))
	}
	if cfg.Previews.SweepInterval < time.Minute {
		errs = append(errs, fmt.Errorf("previews.sweep_interval must be at least 1m"))
	}
	if cfg.Previews.SweepBatch < 1 {
		errs = append(errs, fmt.Errorf("previews.sweep_batch must be at least 1"))
	}

	// Blob validation
	switch cfg.Blob.Backend {
	case "fs":
		if cfg.Blob.FSRoot == "" {
			errs = append(errs, fmt.Errorf("blob.fs_root is required when blob backend is fs"))
		}
	case "minio":
		if cfg.Blob.Minio.Endpoint == "" {
			errs = append(errs, fmt.Errorf("blob.minio.endpoint is required when blob backend is minio"))
		}
		if cfg.Blob.Minio.Bucket == "" {
			errs = append(errs, fmt.Errorf("blob.minio.bucket is required when blob backend is minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.backend must be fs or minio"))
	}

	// Rate limit validation (only when enabled)
	if cfg.RateLimit.Enabled {
		for _, ep := range []struct {
			name string
			cfg  RateLimitEndpoint
		}{
			{"rate_limit.login", cfg.RateLimit.Login},
			{"rate_limit.transform", cfg.RateLimit.Transform},
		} {
			if ep.cfg.Limit < 1 {
				errs = append(errs, fmt.Errorf("%s.limit must be at least 1", ep.name))
			}
			if ep.cfg.Window < time.Second {
				errs = append(errs, fmt.Errorf("%s.window must be at least 1s", ep.name))
			}
		}
	}

	// Telemetry validation (only when enabled)
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Protocol != "grpc" && cfg.Telemetry.Protocol != "http" {
			errs = append(errs, fmt.Errorf("telemetry.protocol must be grpc or http"))
		}
	}

	// Log validation
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error"))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
