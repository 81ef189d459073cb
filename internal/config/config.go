package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
		Lang     string
	} `mapstructure:"app"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
		PollTimeout int   `mapstructure:"poll_timeout"`
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	LabAPI struct {
		BaseURL       string        `mapstructure:"base_url"`
		Timeout       time.Duration `mapstructure:"timeout"`
		RatePerSecond float64       `mapstructure:"rate_per_second"`
		Burst         int64         `mapstructure:"burst"`
	} `mapstructure:"labapi"`

	Wizard struct {
		Debounce        time.Duration `mapstructure:"debounce"`
		ArchDelay       time.Duration `mapstructure:"arch_delay"`
		ProductsPerPage int           `mapstructure:"products_per_page"`
		SessionTTL      time.Duration `mapstructure:"session_ttl"`
	} `mapstructure:"wizard"`

	TransitionCache struct {
		Path string
	} `mapstructure:"transition_cache"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("app.lang", "en")
	v.SetDefault("telegram.poll_timeout", 30)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("labapi.timeout", 0)
	v.SetDefault("labapi.rate_per_second", 10.0)
	v.SetDefault("labapi.burst", 20)
	v.SetDefault("wizard.debounce", 300*time.Millisecond)
	v.SetDefault("wizard.arch_delay", 250*time.Millisecond)
	v.SetDefault("wizard.products_per_page", 8)
	v.SetDefault("wizard.session_ttl", 24*time.Hour)
	v.SetDefault("transition_cache.path", "data/transition.db")
}

func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks required fields and normalises the language tag.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}
	if c.LabAPI.BaseURL == "" {
		errs = append(errs, errors.New("labapi.base_url is required"))
	}
	if c.LabAPI.Timeout < 0 {
		errs = append(errs, errors.New("labapi.timeout must not be negative"))
	}
	if c.LabAPI.RatePerSecond <= 0 || c.LabAPI.Burst <= 0 {
		errs = append(errs, errors.New("labapi.rate_per_second and labapi.burst must be positive"))
	}
	if c.Wizard.Debounce < 0 || c.Wizard.ArchDelay < 0 {
		errs = append(errs, errors.New("wizard delays must not be negative"))
	}
	if c.Wizard.ProductsPerPage <= 0 {
		errs = append(errs, errors.New("wizard.products_per_page must be positive"))
	}
	if c.Wizard.SessionTTL <= 0 {
		errs = append(errs, errors.New("wizard.session_ttl must be positive"))
	}
	tag, err := language.Parse(c.App.Lang)
	if err != nil {
		errs = append(errs, fmt.Errorf("app.lang: %w", err))
	} else {
		base, _ := tag.Base()
		c.App.Lang = base.String()
	}
	return errors.Join(errs...)
}
