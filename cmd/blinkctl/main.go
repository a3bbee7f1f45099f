// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command blinkctl compiles Blink schemas, encodes/decodes messages
// between Compact Binary and the json, tag, and xml text mappings, and
// can run a Dynamic Schema Exchange session over a stream of schema
// updates.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blinkprotocol/blink/internal/config"
)

var rootFlags = struct {
	schemaPath string
	format     string
	strict     bool
	logLevel   string
}{}

func main() {
	cfg, err := config.Load(flag.NewFlagSet("blinkctl", flag.ContinueOnError), nil, configFileFromArgs(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:           "blinkctl",
		Short:         "Compile Blink schemas and encode/decode Blink messages",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&rootFlags.schemaPath, "schema", cfg.SchemaPath, "path to a .blink schema file")
	rootCmd.PersistentFlags().StringVar(&rootFlags.format, "format", cfg.Format, "text mapping to encode/decode through: json, tag, or xml")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.strict, "strict", cfg.Strict, "fail on unknown type ids with a decode error; with --strict=false they still fail, when their group is looked up")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", cfg.LogLevel, "debug, info, warn, or error")
	rootCmd.PersistentFlags().String("config", "", "YAML file overriding the defaults above (read before flags are parsed)")

	rootCmd.AddCommand(newEncodeCmd())
	rootCmd.AddCommand(newDecodeCmd())
	rootCmd.AddCommand(newSchemaCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// configFileFromArgs pulls a --config/--config=value argument out of argv
// before cobra gets a chance to parse it, since the config file has to be
// read and merged into Default() before its values can be handed to
// cobra as the persistent flags' own defaults.
func configFileFromArgs(args []string) string {
	const prefix = "--config="
	for i, arg := range args {
		switch {
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, prefix):
			return arg[len(prefix):]
		}
	}
	return ""
}
