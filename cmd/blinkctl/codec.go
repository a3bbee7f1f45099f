// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/blinkprotocol/blink/codec/jsonfmt"
	"github.com/blinkprotocol/blink/codec/tag"
	"github.com/blinkprotocol/blink/codec/xmlfmt"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

func compileRegistry(path string) (*registry.TypeRegistry, error) {
	compiled, err := schema.CompileSchemaFile(path)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", path, err)
	}
	reg, err := registry.NewTypeRegistry(compiled)
	if err != nil {
		return nil, fmt.Errorf("building registry for %s: %w", path, err)
	}
	return reg, nil
}

// encodeMappedText renders msg in one of the three human-editable text
// mappings. Compact Binary is always the wire format blinkctl reads and
// writes; format only picks how that message looks as text.
func encodeMappedText(format string, msg runtime.Message, reg *registry.TypeRegistry) ([]byte, error) {
	switch format {
	case "json":
		return jsonfmt.Encode(msg, reg)
	case "tag":
		line, err := tag.Encode(msg, reg)
		if err != nil {
			return nil, err
		}
		return []byte(line), nil
	case "xml":
		doc, err := xmlfmt.Encode(msg, reg)
		if err != nil {
			return nil, err
		}
		return []byte(doc), nil
	default:
		return nil, fmt.Errorf("unknown format %q: want json, tag, or xml", format)
	}
}

// decodeMappedText parses data out of one of the three text mappings.
func decodeMappedText(format string, data []byte, reg *registry.TypeRegistry) (runtime.Message, error) {
	switch format {
	case "json":
		return jsonfmt.Decode(data, reg)
	case "tag":
		return tag.Decode(string(data), reg)
	case "xml":
		return xmlfmt.Decode(data, reg)
	default:
		return runtime.Message{}, fmt.Errorf("unknown format %q: want json, tag, or xml", format)
	}
}
