package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvFile is loaded when present and no other file is named.
const DefaultEnvFile = ".env"

const (
	keyUUID         = "uuid"
	keyToken        = "token"
	keyRandomOrder  = "random_order"
	keyStaging      = "staging"
	keyStep         = "step"
	keyMaxFails     = "max_fails"
	keyPollInterval = "poll_interval"
	keyAPIURL       = "api_url"
	keyActionsURL   = "actions_url"
	keyDebug        = "debug"
)

type Config struct {
	UUID         string        `mapstructure:"uuid"`
	Token        string        `mapstructure:"token"`
	RandomOrder  bool          `mapstructure:"random_order"`
	Staging      bool          `mapstructure:"staging"`
	Step         int           `mapstructure:"step"`
	MaxFails     int           `mapstructure:"max_fails"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	APIURL       string        `mapstructure:"api_url"`
	ActionsURL   string        `mapstructure:"actions_url"`
	Debug        bool          `mapstructure:"debug"`
}

func Default() *Config {
	return &Config{
		Staging:      true,
		Step:         1,
		MaxFails:     10,
		PollInterval: time.Minute,
	}
}

type binding struct {
	key   string
	env   string
	flag  string
	usage string
}

var bindings = []binding{
	{keyUUID, "UUID", "uuid", "UUID of the device to update (required)"},
	{keyToken, "TOKEN", "token", "API token (required)"},
	{keyRandomOrder, "RANDOM_ORDER", "random-order", "pick each target at random from the supported versions"},
	{keyStaging, "STAGING", "staging", "use the staging environment"},
	{keyStep, "STEP", "step", "offset used to pick the next target by position"},
	{keyMaxFails, "MAX_FAILS", "max-fails", "failure budget for update attempts and device waits"},
	{keyPollInterval, "POLL_INTERVAL", "poll-interval", "wait between polls of the device"},
	{keyAPIURL, "API_URL", "api-url", "override the API base URL"},
	{keyActionsURL, "ACTIONS_URL", "actions-url", "override the actions service base URL"},
	{keyDebug, "DEBUG", "debug", "enable debug logging"},
}

// BindFlags registers the configuration flags on flags and binds them, along
// with their environment variables, to v. Flags take precedence over the
// environment.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	d := Default()
	flags.String(flagName(keyUUID), "", usage(keyUUID))
	flags.String(flagName(keyToken), "", usage(keyToken))
	flags.Bool(flagName(keyRandomOrder), d.RandomOrder, usage(keyRandomOrder))
	flags.Bool(flagName(keyStaging), d.Staging, usage(keyStaging))
	flags.Int(flagName(keyStep), d.Step, usage(keyStep))
	flags.Int(flagName(keyMaxFails), d.MaxFails, usage(keyMaxFails))
	flags.Duration(flagName(keyPollInterval), d.PollInterval, usage(keyPollInterval))
	flags.String(flagName(keyAPIURL), d.APIURL, usage(keyAPIURL))
	flags.String(flagName(keyActionsURL), d.ActionsURL, usage(keyActionsURL))
	flags.Bool(flagName(keyDebug), d.Debug, usage(keyDebug))

	for _, b := range bindings {
		if err := v.BindPFlag(b.key, flags.Lookup(b.flag)); err != nil {
			return errors.Wrapf(err, "could not bind flag %s", b.flag)
		}
	}
	return bindEnv(v)
}

func bindEnv(v *viper.Viper) error {
	d := Default()
	v.SetDefault(keyRandomOrder, d.RandomOrder)
	v.SetDefault(keyStaging, d.Staging)
	v.SetDefault(keyStep, d.Step)
	v.SetDefault(keyMaxFails, d.MaxFails)
	v.SetDefault(keyPollInterval, d.PollInterval)
	v.SetDefault(keyDebug, d.Debug)
	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return errors.Wrapf(err, "could not bind environment variable %s", b.env)
		}
	}
	return nil
}

func flagName(key string) string {
	for _, b := range bindings {
		if b.key == key {
			return b.flag
		}
	}
	return key
}

func usage(key string) string {
	for _, b := range bindings {
		if b.key == key {
			return b.usage + " [$" + b.env + "]"
		}
	}
	return ""
}

// LoadEnvFile adds the variables of the dotenv file at path to the process
// environment without overriding what is already set. An empty path loads
// DefaultEnvFile if it exists.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}
	return errors.Wrapf(godotenv.Load(path), "could not load %s", path)
}

// Load reads the configuration bound to v. A viper instance with no bindings
// is bound to the environment first.
func Load(v *viper.Viper) (*Config, error) {
	if len(v.AllKeys()) == 0 {
		if err := bindEnv(v); err != nil {
			return nil, err
		}
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "could not read configuration")
	}
	// An unset or zero budget falls back to the default.
	if cfg.MaxFails == 0 {
		cfg.MaxFails = Default().MaxFails
	}
	return cfg, nil
}

// Validate checks that the configuration can drive a ladder.
func (c *Config) Validate() error {
	switch {
	case c.UUID == "":
		return errors.New("UUID required in environment")
	case c.Token == "":
		return errors.New("TOKEN required in environment")
	case c.MaxFails < 1:
		return errors.Errorf("MAX_FAILS must be at least 1, got %d", c.MaxFails)
	case !c.RandomOrder && c.Step < 1:
		return errors.Errorf("STEP must be at least 1, got %d", c.Step)
	case c.PollInterval <= 0:
		return errors.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	return nil
}
