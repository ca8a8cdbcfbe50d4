package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return Defaults()
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_TLSAuto_RequiresDomain(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "auto"
	cfg.Server.TLS.Auto.Domain = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for auto mode without domain")
	}
	if !strings.Contains(err.Error(), "tls.auto.domain") {
		t.Fatalf("expected error about tls.auto.domain, got: %v", err)
	}
}

func TestValidate_TLSManual_RequiresCertAndKey(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "manual"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for manual mode without cert/key")
	}
	if !strings.Contains(err.Error(), "cert_file") || !strings.Contains(err.Error(), "key_file") {
		t.Fatalf("expected errors about cert_file and key_file, got: %v", err)
	}
}

func TestValidate_TLSUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS.Mode = "sideways"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown tls mode")
	}
}

func TestValidate_Previews(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short fetch timeout", func(c *Config) { c.Previews.FetchTimeout = 100 * time.Millisecond }, "fetch_timeout"},
		{"task shorter than fetch", func(c *Config) { c.Previews.TaskTimeout = time.Second }, "task_timeout"},
		{"tiny max bytes", func(c *Config) { c.Previews.MaxImageBytes = 10 }, "max_image_bytes"},
		{"zero thumb edge", func(c *Config) { c.Previews.ThumbEdge = 0 }, "thumb_edge"},
		{"thumb larger than full", func(c *Config) { c.Previews.ThumbEdge = 900 }, "thumb_edge"},
		{"quality out of range", func(c *Config) { c.Previews.JPEGQuality = 0 }, "jpeg_quality"},
		{"short oembed ttl", func(c *Config) { c.Previews.OembedTTL = time.Second }, "oembed_ttl"},
		{"zero sweep batch", func(c *Config) { c.Previews.SweepBatch = 0 }, "sweep_batch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_BlobBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Blob.Backend = "s3"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown blob backend")
	}

	cfg = validConfig()
	cfg.Blob.Backend = "minio"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for minio backend without endpoint")
	}
	if !strings.Contains(err.Error(), "minio.endpoint") {
		t.Fatalf("expected error about minio.endpoint, got: %v", err)
	}

	cfg.Blob.Minio.Endpoint = "minio.internal:9000"
	if err := Validate(cfg); err != nil {
		t.Fatalf("minio backend with endpoint and bucket should pass: %v", err)
	}
}

func TestValidate_RateLimitDisabledSkipsChecks(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.Login.Limit = 0

	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled rate limit should skip endpoint checks: %v", err)
	}
}

func TestValidate_TelemetryProtocol(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Protocol = "udp"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for unknown telemetry protocol")
	}
	if !strings.Contains(err.Error(), "telemetry.protocol") {
		t.Fatalf("expected error about telemetry.protocol, got: %v", err)
	}
}

func TestValidate_Log(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}

	cfg = validConfig()
	cfg.Log.Format = "xml"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}
