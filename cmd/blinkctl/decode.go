// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blinkprotocol/blink/codec/compact"
)

// newDecodeCmd reads a Compact Binary message and renders it in one of
// the text mappings (json, tag, xml).
func newDecodeCmd() *cobra.Command {
	var (
		input      string
		asHex      bool
		output     string
		indent     bool
		sortKeys   bool
		compactOut bool
	)

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a Compact Binary message into json, tag, or xml",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := compileRegistry(rootFlags.schemaPath)
			if err != nil {
				return err
			}

			data, err := readInput(input)
			if err != nil {
				return err
			}
			if asHex {
				data, err = decodeHexInput(data)
				if err != nil {
					return fmt.Errorf("decoding --hex input: %w", err)
				}
			}

			msg, _, err := compact.DecodeMessage(data, 0, reg, rootFlags.strict)
			if err != nil {
				return fmt.Errorf("decoding message: %w", err)
			}

			out, err := encodeMappedText(rootFlags.format, msg, reg)
			if err != nil {
				return fmt.Errorf("rendering %s: %w", rootFlags.format, err)
			}
			if rootFlags.format == "json" {
				out, err = reformatJSON(out, indent && !compactOut)
				if err != nil {
					return err
				}
			}
			out = append(out, '\n')

			return writeOutput(output, out)
		},
	}

	cmd.Flags().StringVar(&input, "input", "-", "input file, or - for stdin")
	cmd.Flags().BoolVar(&asHex, "hex", false, "read --input as a hex string instead of raw Compact Binary bytes")
	cmd.Flags().StringVar(&output, "output", "-", "output file, or - for stdout")
	cmd.Flags().BoolVar(&indent, "indent", true, "pretty-print JSON output (json format only)")
	cmd.Flags().BoolVar(&sortKeys, "sort-keys", true, "sort JSON object keys (json format only; jsonfmt already writes keys in sorted order)")
	cmd.Flags().BoolVar(&compactOut, "compact", false, "write JSON output on a single line, overriding --indent")
	return cmd
}

func decodeHexInput(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	decoded := make([]byte, hex.DecodedLen(len(trimmed)))
	n, err := hex.Decode(decoded, trimmed)
	if err != nil {
		return nil, err
	}
	return decoded[:n], nil
}

// reformatJSON re-indents jsonfmt's output when pretty is true and
// compacts it onto a single line otherwise. jsonfmt builds every object
// as a Go map, which encoding/json writes with its keys in sorted order,
// so the output is already key-sorted and --sort-keys needs no extra
// step; --sort-keys=false leaves the keys sorted as well.
func reformatJSON(data []byte, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	if !pretty {
		if err := json.Compact(&buf, data); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
