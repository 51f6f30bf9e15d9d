package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DispatchModeLocal = "local"
	DispatchModeAsynq = "asynq"
)

type R2 struct {
	AccountID  string `env:"R2_ACCOUNT_ID"`
	AccessKey  string `env:"R2_ACCESS_KEY"`
	SecretKey  string `env:"R2_SECRET_KEY"`
	BucketName string `env:"R2_BUCKET_NAME"`
	PublicURL  string `env:"R2_PUBLIC_URL"`
}

// Enabled reports whether enough R2 settings are present to upload media.
func (r R2) Enabled() bool {
	return r.AccountID != "" && r.AccessKey != "" && r.SecretKey != "" && r.BucketName != "" && r.PublicURL != ""
}

type Dispatch struct {
	Mode           string        `env:"DISPATCH_MODE" env-default:"local"`
	MaxAttempts    int           `env:"DISPATCH_MAX_ATTEMPTS" env-default:"3"`
	SubmitTimeout  time.Duration `env:"DISPATCH_SUBMIT_TIMEOUT" env-default:"30s"`
	BackoffInitial time.Duration `env:"DISPATCH_BACKOFF_INITIAL" env-default:"2s"`
	BackoffMax     time.Duration `env:"DISPATCH_BACKOFF_MAX" env-default:"15s"`
	MaxInFlight    int64         `env:"DISPATCH_MAX_IN_FLIGHT" env-default:"10"`
}

type Jobs struct {
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" env-default:"30s"`
	SweepBatchSize       int           `env:"SWEEP_BATCH_SIZE" env-default:"100"`
	StaleDispatchAfter   time.Duration `env:"STALE_DISPATCH_AFTER" env-default:"15m"`
	TokenRefreshInterval time.Duration `env:"TOKEN_REFRESH_INTERVAL" env-default:"10m"`
	TokenRefreshWindow   time.Duration `env:"TOKEN_REFRESH_WINDOW" env-default:"168h"`
}

type Generator struct {
	URL            string        `env:"GENERATOR_URL" env-default:"http://localhost:4000/ai"`
	APIKey         string        `env:"GENERATOR_API_KEY"`
	TokenURL       string        `env:"GENERATOR_TOKEN_URL"`
	ClientID       string        `env:"GENERATOR_CLIENT_ID"`
	ClientSecret   string        `env:"GENERATOR_CLIENT_SECRET"`
	RatePerMinute  int           `env:"GENERATOR_RATE_PER_MINUTE" env-default:"10"`
	RequestTimeout time.Duration `env:"GENERATOR_TIMEOUT" env-default:"2m"`
}

type Providers struct {
	XAPIURL           string `env:"X_API_URL" env-default:"https://api.twitter.com/2"`
	XUploadURL        string `env:"X_UPLOAD_URL" env-default:"https://upload.twitter.com/1.1"`
	InstagramGraphURL string `env:"INSTAGRAM_GRAPH_URL" env-default:"https://graph.facebook.com/v21.0"`
}

type Config struct {
	Env            string `env:"APP_ENV" env-default:"development"`
	HTTPAddr       string `env:"HTTP_ADDR" env-default:":3000"`
	LogLevel       string `env:"LOG_LEVEL" env-default:"info"`
	SentryDSN      string `env:"SENTRY_DSN"`
	SecretKey      string `env:"SECRET_KEY"`
	CookieName     string `env:"COOKIE_NAME" env-default:"autopost_session"`
	DatabaseDriver string `env:"DATABASE_DRIVER" env-default:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisURI       string `env:"REDIS_URI" env-default:"localhost:6379"`
	FrontendURL    string `env:"FRONTEND_URL" env-default:"http://localhost:5173"`

	Dispatch  Dispatch
	Jobs      Jobs
	Generator Generator
	Providers Providers
	R2        R2
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		help, _ := cleanenv.GetDescription(&cfg, nil)
		return nil, fmt.Errorf("read configuration: %w\n%s", err, help)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.SecretKey) != 32 {
		return fmt.Errorf("SECRET_KEY must be exactly 32 bytes, got %d", len(c.SecretKey))
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.Dispatch.Mode {
	case DispatchModeLocal, DispatchModeAsynq:
	default:
		return fmt.Errorf("unsupported DISPATCH_MODE %q", c.Dispatch.Mode)
	}
	if c.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be at least 1")
	}
	if c.Dispatch.MaxInFlight < 1 {
		return fmt.Errorf("DISPATCH_MAX_IN_FLIGHT must be at least 1")
	}
	// the reaper must never fail a dispatch that is still running
	if longest := c.Dispatch.MaxDuration(); c.Jobs.StaleDispatchAfter <= longest {
		return fmt.Errorf("STALE_DISPATCH_AFTER (%s) must exceed the longest dispatch (%s)", c.Jobs.StaleDispatchAfter, longest)
	}
	return nil
}

// MaxDuration bounds one dispatch: every attempt runs to its timeout and
// every wait between attempts gets the full jittered backoff.
func (d Dispatch) MaxDuration() time.Duration {
	if d.MaxAttempts < 1 {
		return 0
	}
	waits := time.Duration(d.MaxAttempts-1) * (d.BackoffMax + d.BackoffMax/2)
	return time.Duration(d.MaxAttempts)*d.SubmitTimeout + waits
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
