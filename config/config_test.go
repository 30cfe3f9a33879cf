package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_DRIVER", "PRESENCE_SCOPE", "PRESENCE_GRACE", "SEND_QUEUE_SIZE", "CORS_ALLOWED_ORIGINS", "CLIENT_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	want := Default()

	if cfg.Port != want.Port {
		t.Errorf("Port = %q, want %q", cfg.Port, want.Port)
	}
	if cfg.StoreDriver != DriverSQLite {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, DriverSQLite)
	}
	if cfg.PresenceGrace != 2*time.Second {
		t.Errorf("PresenceGrace = %v, want 2s", cfg.PresenceGrace)
	}
	if cfg.TypingTimeout != 3*time.Second {
		t.Errorf("TypingTimeout = %v, want 3s", cfg.TypingTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, cfg Config)
	}{
		{
			name:  "port",
			key:   "PORT",
			value: "5000",
			check: func(t *testing.T, cfg Config) {
				if cfg.Port != "5000" {
					t.Errorf("Port = %q, want 5000", cfg.Port)
				}
			},
		},
		{
			name:  "mongo driver",
			key:   "STORE_DRIVER",
			value: "Mongo",
			check: func(t *testing.T, cfg Config) {
				if cfg.StoreDriver != DriverMongo {
					t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, DriverMongo)
				}
			},
		},
		{
			name:  "unknown driver keeps default",
			key:   "STORE_DRIVER",
			value: "oracle",
			check: func(t *testing.T, cfg Config) {
				if cfg.StoreDriver != DriverSQLite {
					t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, DriverSQLite)
				}
			},
		},
		{
			name:  "global presence",
			key:   "PRESENCE_SCOPE",
			value: "global",
			check: func(t *testing.T, cfg Config) {
				if cfg.PresenceScope != PresenceScopeGlobal {
					t.Errorf("PresenceScope = %q, want global", cfg.PresenceScope)
				}
			},
		},
		{
			name:  "invalid duration keeps default",
			key:   "PRESENCE_GRACE",
			value: "soon",
			check: func(t *testing.T, cfg Config) {
				if cfg.PresenceGrace != 2*time.Second {
					t.Errorf("PresenceGrace = %v, want 2s", cfg.PresenceGrace)
				}
			},
		},
		{
			name:  "negative queue size keeps default",
			key:   "SEND_QUEUE_SIZE",
			value: "-4",
			check: func(t *testing.T, cfg Config) {
				if cfg.SendQueueSize != 256 {
					t.Errorf("SendQueueSize = %d, want 256", cfg.SendQueueSize)
				}
			},
		},
		{
			name:  "client url as cors fallback",
			key:   "CLIENT_URL",
			value: "https://chat.example.com",
			check: func(t *testing.T, cfg Config) {
				if cfg.AllowedOrigins != "https://chat.example.com" {
					t.Errorf("AllowedOrigins = %q", cfg.AllowedOrigins)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CORS_ALLOWED_ORIGINS", "")
			t.Setenv(tt.key, tt.value)
			tt.check(t, Load())
		})
	}
}
