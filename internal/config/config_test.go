// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config_test

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/internal/config"
)

func TestLoadWithoutConfigFileReturnsDefaultsOverriddenByFlags(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("blinkctl", flag.ContinueOnError)
	cfg, err := config.Load(fs, []string{"--format", "tag"}, "")
	require.NoError(t, err)

	assert.Equal(t, "schema/blink.blink", cfg.SchemaPath)
	assert.Equal(t, "tag", cfg.Format)
	assert.True(t, cfg.Strict)
}

func TestLoadConfigFileSetsDefaultsFlagsStillOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "blinkctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema_path: feeds/trade.blink\nformat: xml\nstrict: false\n"), 0o644))

	fs := flag.NewFlagSet("blinkctl", flag.ContinueOnError)
	cfg, err := config.Load(fs, []string{"--strict"}, path)
	require.NoError(t, err)

	assert.Equal(t, "feeds/trade.blink", cfg.SchemaPath)
	assert.Equal(t, "xml", cfg.Format)
	assert.True(t, cfg.Strict)
}
