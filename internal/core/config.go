package core

import (
	"net/http"
	"time"

	"github.com/eteran/cloudfile/internal/accounts"
	"github.com/eteran/cloudfile/internal/upload"
)

type Config struct {
	// DataDir holds spooled request bodies while they are uploaded.
	DataDir  string
	Accounts accounts.Store
	Registry *upload.Registry
	Client   upload.Doer
	Clock    func() time.Time

	// APIUser and APIPassword enable basic auth on the host API when both
	// are set.
	APIUser     string
	APIPassword string
}

type ConfigOption func(*Config)

func WithDataDir(dataDir string) ConfigOption {
	return func(cfg *Config) {
		cfg.DataDir = dataDir
	}
}

func WithAccountStore(store accounts.Store) ConfigOption {
	return func(cfg *Config) {
		cfg.Accounts = store
	}
}

func WithRegistry(registry *upload.Registry) ConfigOption {
	return func(cfg *Config) {
		cfg.Registry = registry
	}
}

func WithHTTPClient(client upload.Doer) ConfigOption {
	return func(cfg *Config) {
		cfg.Client = client
	}
}

func WithClock(clock func() time.Time) ConfigOption {
	return func(cfg *Config) {
		cfg.Clock = clock
	}
}

func WithBasicAuth(user string, password string) ConfigOption {
	return func(cfg *Config) {
		cfg.APIUser = user
		cfg.APIPassword = password
	}
}

// NewConfig applies opts over the defaults: an in-memory account store, a
// fresh registry and a client with no overall timeout.
func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{
		Client: &http.Client{},
		Clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Accounts == nil {
		cfg.Accounts = accounts.NewMemoryStore()
	}
	if cfg.Registry == nil {
		cfg.Registry = upload.NewRegistry()
	}
	return cfg
}
