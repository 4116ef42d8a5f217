// Package config loads the btspp configuration from the configuration file
// and the command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/hjson"
	"github.com/knadh/koanf/providers/cliflagv2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
)

const (
	appName    = "btspp"
	configFile = appName + ".conf"
)

// Config describes the configuration for the app.
type Config struct {
	path string

	Values Values
}

// NewConfig returns a new configuration.
func NewConfig() *Config {
	return &Config{}
}

// Load loads the configuration from the configuration file and the command-line flags.
// Flags take precedence over the configuration file.
func (c *Config) Load(k *koanf.Koanf, cliCtx *cli.Context) error {
	if err := c.createConfigDir(); err != nil {
		return err
	}

	cfgfile, err := c.FilePath(configFile)
	if err != nil {
		return err
	}

	if err := k.Load(file.Provider(cfgfile), hjson.Parser()); err != nil {
		return fmt.Errorf("%s: %w", cfgfile, err)
	}

	if cliCtx != nil {
		if err := k.Load(cliflagv2.Provider(cliCtx, "."), nil); err != nil {
			return err
		}
	}

	return k.UnmarshalWithConf("", &c.Values, koanf.UnmarshalConf{Tag: "koanf"})
}

// ValidateValues validates the configuration values.
func (c *Config) ValidateValues() error {
	return c.Values.validateValues()
}

// ValidateRole validates the configuration values that the named role needs.
func (c *Config) ValidateRole(role string) error {
	return c.Values.validateRole(role)
}

// Dir returns the configuration directory.
func (c *Config) Dir() string {
	return c.path
}

// createConfigDir checks for and/or creates a configuration directory.
// The first existing directory out of $XDG_CONFIG_HOME/btspp, ~/.config/btspp
// and ~/.btspp is used, otherwise the first one that can be created.
func (c *Config) createConfigDir() error {
	candidates := configDirs()
	if len(candidates) == 0 {
		return errors.New("no configuration directory could be determined")
	}

	for _, dir := range candidates {
		if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
			c.path = dir
			return nil
		}
	}

	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o700); err == nil {
			c.path = dir
			return nil
		}
	}

	return fmt.Errorf("the configuration directories could not be created at\n%s", strings.Join(candidates, "\n"))
}

func configDirs() []string {
	var dirs []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, appName))
	}

	if homedir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homedir, ".config", appName),
			filepath.Join(homedir, "."+appName),
		)
	}

	return dirs
}

// FilePath returns the absolute path for the given configuration file.
// The file is created if it does not exist.
func (c *Config) FilePath(name string) (string, error) {
	confPath := filepath.Join(c.path, name)

	if _, err := os.Stat(confPath); err != nil {
		fd, err := os.Create(confPath)
		if err != nil {
			return "", fmt.Errorf("cannot create %s file at %s", name, confPath)
		}
		fd.Close()
	}

	return confPath, nil
}

// GenerateAndSave writes the loaded configuration to the configuration file.
func (c *Config) GenerateAndSave(currentCfg *koanf.Koanf) error {
	data, err := hjson.Parser().Marshal(currentCfg.All())
	if err != nil {
		return err
	}

	conf, err := c.FilePath(configFile)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(conf, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}

	return f.Sync()
}
