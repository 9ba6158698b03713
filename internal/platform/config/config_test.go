package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestConfigLoad_UsesDefaults(t *testing.T) {
	for _, key := range []string{"ADDR", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT", "GENERATOR_STRING", "GENERATOR_BLOCK_SIZE", "DB_TYPE", "REDIS_SERVER", "PHISHTANK"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Addr != ":8000" {
		t.Fatalf("Addr: got %q, want %q", cfg.Addr, ":8000")
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Fatalf("IdleTimeout: got %v, want %v", cfg.IdleTimeout, 60*time.Second)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout: got %v, want %v", cfg.ShutdownTimeout, 10*time.Second)
	}
	if cfg.GeneratorString != "mn6j2c4rv8bpygw95z7hsdaetxuk3fq" {
		t.Fatalf("GeneratorString: got %q", cfg.GeneratorString)
	}
	if cfg.GeneratorBlockSize != 24 || cfg.GeneratorMinLength != 5 {
		t.Fatalf("generator: got block %d, min %d", cfg.GeneratorBlockSize, cfg.GeneratorMinLength)
	}
	if cfg.DBType != DBTypePostgres {
		t.Fatalf("DBType: got %q", cfg.DBType)
	}
	if cfg.RedisServer != "" {
		t.Fatalf("RedisServer: got %q, want empty", cfg.RedisServer)
	}
	if cfg.PhishTankEnabled() {
		t.Fatal("PhishTank should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate defaults: %v", err)
	}
}

func TestConfigLoad_ReadsEnv(t *testing.T) {
	t.Setenv("ADDR", ":18080")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("GENERATOR_STRING", "abcdef")
	t.Setenv("GENERATOR_BLOCK_SIZE", "16")
	t.Setenv("GENERATOR_MIN_LENGTH", "8")
	t.Setenv("DB_TYPE", "InMemory")
	t.Setenv("REDIS_SERVER", "redis:6379")
	t.Setenv("REDIS_TTL", "3600")
	t.Setenv("PHISHTANK", "anonymous")
	t.Setenv("PHISHTANK_REFRESH_INTERVAL", "6h")
	t.Setenv("STATS_MODE", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RATELIMIT_ENABLED", "false")

	cfg := Load()

	if cfg.Addr != ":18080" {
		t.Fatalf("Addr: got %q", cfg.Addr)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout: got %v", cfg.ShutdownTimeout)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
		t.Fatalf("log: got %v %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.GeneratorString != "abcdef" || cfg.GeneratorBlockSize != 16 || cfg.GeneratorMinLength != 8 {
		t.Fatalf("generator: got %q %d %d", cfg.GeneratorString, cfg.GeneratorBlockSize, cfg.GeneratorMinLength)
	}
	if cfg.DBType != DBTypeInMemory {
		t.Fatalf("DBType: got %q", cfg.DBType)
	}
	if cfg.RedisServer != "redis:6379" || cfg.RedisTTL != time.Hour {
		t.Fatalf("redis: got %q %v", cfg.RedisServer, cfg.RedisTTL)
	}
	if !cfg.PhishTankEnabled() || cfg.PhishTankRefreshInterval != 6*time.Hour {
		t.Fatalf("phishtank: got %q %v", cfg.PhishTank, cfg.PhishTankRefreshInterval)
	}
	if cfg.StatsMode != StatsModeKafka || len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("stats: got %q %v", cfg.StatsMode, cfg.KafkaBrokers)
	}
	if cfg.RateLimitEnabled {
		t.Fatal("RateLimitEnabled: got true, want false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown db type", func(c *Config) { c.DBType = "sqlite" }, true},
		{"unknown stats mode", func(c *Config) { c.StatsMode = "udp" }, true},
		{"bad create rate", func(c *Config) { c.RateLimitCreate = "lots" }, true},
		{"bad rate ignored when disabled", func(c *Config) { c.RateLimitEnabled = false; c.RateLimitCreate = "lots" }, false},
		{"no admin token", func(c *Config) { c.Token = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate: got %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in         string
		wantN      int
		wantWindow time.Duration
		wantErr    bool
	}{
		{"100/minute", 100, time.Minute, false},
		{"10/second", 10, time.Second, false},
		{"1000/hour", 1000, time.Hour, false},
		{" 5 / 30s ", 5, 30 * time.Second, false},
		{"5/day", 5, 24 * time.Hour, false},
		{"0/minute", 0, 0, true},
		{"abc/minute", 0, 0, true},
		{"10", 0, 0, true},
		{"10/fortnight", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, w, err := ParseRate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRate(%q) err: %v", tt.in, err)
			}
			if n != tt.wantN || w != tt.wantWindow {
				t.Fatalf("ParseRate(%q): got %d/%v, want %d/%v", tt.in, n, w, tt.wantN, tt.wantWindow)
			}
		})
	}
}
