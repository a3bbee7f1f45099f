// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blinkprotocol/blink/codec/compact"
)

// newEncodeCmd reads a message written in one of the text mappings
// (json, tag, xml) and writes it out as Compact Binary, blinkctl's wire
// format.
func newEncodeCmd() *cobra.Command {
	var (
		typeName string
		input    string
		output   string
		asHex    bool
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a json, tag, or xml message into Compact Binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := compileRegistry(rootFlags.schemaPath)
			if err != nil {
				return err
			}

			data, err := readInput(input)
			if err != nil {
				return err
			}
			if rootFlags.format == "json" {
				data = withJSONTypeDefault(data, typeName)
			}

			msg, err := decodeMappedText(rootFlags.format, data, reg)
			if err != nil {
				return fmt.Errorf("parsing %s message: %w", rootFlags.format, err)
			}

			out, err := compact.EncodeMessage(msg, reg)
			if err != nil {
				return fmt.Errorf("encoding message: %w", err)
			}
			if asHex {
				out = []byte(hex.EncodeToString(out))
			}

			return writeOutput(output, out)
		},
	}

	cmd.Flags().StringVar(&typeName, "type", "", "qualified group name to use when the input doesn't name its own type")
	cmd.Flags().StringVar(&input, "input", "-", "input file, or - for stdin")
	cmd.Flags().StringVar(&output, "output", "-", "output file, or - for stdout")
	cmd.Flags().BoolVar(&asHex, "hex", false, "write the Compact Binary output as a hex string instead of raw bytes")
	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// withJSONTypeDefault injects a "$type" key into a JSON object that
// omits one, so --type can stand in for a message body that was
// authored without its own discriminator. Input that already has
// "$type,"or that doesn't parse as a JSON object, is returned unchanged
// and left for jsonfmt to reject with its own error.
func withJSONTypeDefault(data []byte, typeName string) []byte {
	if typeName == "" {
		return data
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return data
	}
	if _, ok := obj["$type"]; ok {
		return data
	}
	quoted, err := json.Marshal(typeName)
	if err != nil {
		return data
	}
	obj["$type"] = quoted
	out, err := json.Marshal(obj)
	if err != nil {
		return data
	}
	return out
}
