package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/env"
)

func load(t *testing.T, args ...string) *Config {
	t.Helper()
	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	assert.NilError(t, BindFlags(v, flags))
	assert.NilError(t, flags.Parse(args))
	cfg, err := Load(v)
	assert.NilError(t, err)
	return cfg
}

func TestDefaults(t *testing.T) {
	defer env.PatchAll(t, map[string]string{
		"UUID":  "abc",
		"TOKEN": "secret",
	})()

	cfg := load(t)
	assert.DeepEqual(t, cfg, &Config{
		UUID:         "abc",
		Token:        "secret",
		Staging:      true,
		Step:         1,
		MaxFails:     10,
		PollInterval: time.Minute,
	})
	assert.NilError(t, cfg.Validate())
}

func TestEnvironment(t *testing.T) {
	defer env.PatchAll(t, map[string]string{
		"UUID":          "abc",
		"TOKEN":         "secret",
		"RANDOM_ORDER":  "true",
		"STAGING":       "false",
		"STEP":          "2",
		"MAX_FAILS":     "3",
		"POLL_INTERVAL": "5s",
		"API_URL":       "http://localhost:8080",
		"DEBUG":         "1",
	})()

	cfg := load(t)
	assert.Equal(t, cfg.UUID, "abc")
	assert.Check(t, cfg.RandomOrder)
	assert.Check(t, !cfg.Staging)
	assert.Equal(t, cfg.Step, 2)
	assert.Equal(t, cfg.MaxFails, 3)
	assert.Equal(t, cfg.PollInterval, 5*time.Second)
	assert.Equal(t, cfg.APIURL, "http://localhost:8080")
	assert.Equal(t, cfg.ActionsURL, "")
	assert.Check(t, cfg.Debug)
}

func TestStagingDefault(t *testing.T) {
	cases := map[string]bool{
		"":      true,
		"true":  true,
		"1":     true,
		"false": false,
		"0":     false,
	}
	for value, expected := range cases {
		t.Run("STAGING="+value, func(t *testing.T) {
			vars := map[string]string{"UUID": "abc", "TOKEN": "secret"}
			if value != "" {
				vars["STAGING"] = value
			}
			defer env.PatchAll(t, vars)()
			assert.Equal(t, load(t).Staging, expected)
		})
	}
}

func TestMaxFailsZeroUsesDefault(t *testing.T) {
	defer env.PatchAll(t, map[string]string{"MAX_FAILS": "0"})()
	assert.Equal(t, load(t).MaxFails, 10)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	defer env.PatchAll(t, map[string]string{
		"UUID":      "from-env",
		"MAX_FAILS": "3",
	})()

	cfg := load(t, "--uuid", "from-flag", "--staging=false", "--poll-interval", "10s")
	assert.Equal(t, cfg.UUID, "from-flag")
	assert.Equal(t, cfg.MaxFails, 3)
	assert.Check(t, !cfg.Staging)
	assert.Equal(t, cfg.PollInterval, 10*time.Second)
}

func TestLoadWithoutFlags(t *testing.T) {
	defer env.PatchAll(t, map[string]string{"UUID": "abc", "STEP": "4"})()
	cfg, err := Load(viper.New())
	assert.NilError(t, err)
	assert.Equal(t, cfg.UUID, "abc")
	assert.Equal(t, cfg.Step, 4)
	assert.Equal(t, cfg.MaxFails, 10)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.UUID = "abc"
		c.Token = "secret"
		return c
	}
	assert.NilError(t, valid().Validate())

	cases := map[string]struct {
		mutate   func(*Config)
		expected string
	}{
		"uuid":     {func(c *Config) { c.UUID = "" }, "UUID required"},
		"token":    {func(c *Config) { c.Token = "" }, "TOKEN required"},
		"fails":    {func(c *Config) { c.MaxFails = -1 }, "MAX_FAILS"},
		"step":     {func(c *Config) { c.Step = 0 }, "STEP"},
		"interval": {func(c *Config) { c.PollInterval = 0 }, "POLL_INTERVAL"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			assert.ErrorContains(t, c.Validate(), tc.expected)
		})
	}

	random := valid()
	random.RandomOrder = true
	random.Step = 0
	assert.NilError(t, random.Validate())
}

func TestLoadEnvFile(t *testing.T) {
	defer env.PatchAll(t, map[string]string{"TOKEN": "from-env"})()

	dir := t.TempDir()
	path := filepath.Join(dir, "ladder.env")
	assert.NilError(t, os.WriteFile(path, []byte("UUID=from-file\nTOKEN=from-file\n"), 0600))

	assert.NilError(t, LoadEnvFile(path))
	cfg := load(t)
	assert.Equal(t, cfg.UUID, "from-file")
	// The environment wins over the file.
	assert.Equal(t, cfg.Token, "from-env")

	assert.Check(t, LoadEnvFile(filepath.Join(dir, "missing.env")) != nil)
}

func TestLoadEnvFileDefaultMissing(t *testing.T) {
	wd, err := os.Getwd()
	assert.NilError(t, err)
	defer os.Chdir(wd)
	assert.NilError(t, os.Chdir(t.TempDir()))

	assert.NilError(t, LoadEnvFile(""))
}
