// Package config loads the yaml configuration of the reviewd daemon.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ListenAddr    string `yaml:"listenAddr"`
	DataPath      string `yaml:"dataPath"`
	MinimumFreeGB uint   `yaml:"minimumFreeGB"`
	EventBuffer   int    `yaml:"eventBuffer"`
	// KeyBits sizes the substrate keypair generated on first start.
	KeyBits int  `yaml:"keyBits"`
	Debug   bool `yaml:"debug"`
}

func defaults() Config {
	return Config{
		ListenAddr: ":4242",
		DataPath:   "./data",
		KeyBits:    2048,
	}
}

// Load reads the yaml file at path and fills unset fields with defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	conf := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &conf); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if conf.ListenAddr == "" {
		conf.ListenAddr = ":4242"
	}
	if conf.DataPath == "" {
		conf.DataPath = "./data"
	}
	if conf.KeyBits == 0 {
		conf.KeyBits = 2048
	}
	return conf, nil
}
