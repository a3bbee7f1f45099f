// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads blinkctl's settings from flags, with an optional
// YAML file overriding flag defaults before flags are re-applied on top.
package config

import (
	"flag"
	"os"

	"github.com/goccy/go-yaml"
)

// Config holds the settings shared by every blinkctl subcommand: which
// schema to compile, which text mapping encode/decode render through,
// and how verbosely to log.
type Config struct {
	SchemaPath string `yaml:"schema_path"`
	Format     string `yaml:"format"`
	LogLevel   string `yaml:"log_level"`
	Strict     bool   `yaml:"strict"`
}

// Default returns the configuration a bare invocation starts from.
func Default() Config {
	return Config{
		SchemaPath: "schema/blink.blink",
		Format:     "json",
		LogLevel:   "info",
		Strict:     true,
	}
}

// Load reads an optional YAML config file over Default(), then lets flags
// registered on fs override whatever the file set. Flags take precedence
// because fs.Parse runs after the file is unmarshaled into the same
// struct fields the flags are bound to.
func Load(fs *flag.FlagSet, args []string, configFile string) (Config, error) {
	cfg := Default()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	fs.StringVar(&cfg.SchemaPath, "schema", cfg.SchemaPath, "path to a .blink schema file")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "text mapping to encode/decode through: json, tag, or xml")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, or error")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "fail decoding on unknown type ids with a decode error; with --strict=false they still fail, when their group is looked up")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
