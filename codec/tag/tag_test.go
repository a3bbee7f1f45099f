// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/codec/tag"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

const noteSchema = `
namespace Chat

Attachment/2 ->
    string Name,
    binary Data?

Note/1 ->
    string Body,
    bool Urgent,
    decimal Score,
    Attachment [] Files,
    Attachment* Ref?
`

func buildRegistry(t *testing.T) *registry.TypeRegistry {
	t.Helper()
	compiled, err := schema.CompileSchema(noteSchema)
	require.NoError(t, err)
	reg, err := registry.NewTypeRegistry(compiled)
	require.NoError(t, err)
	return reg
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Chat", Name: "Note"}, map[string]interface{}{
		"Body":    "hello | world",
		"Urgent":  true,
		"Score":   runtime.DecimalValue{Exponent: -1, Mantissa: 95},
		"Files":   []interface{}{runtime.NewStaticGroupValue(map[string]interface{}{"Name": "a.txt"})},
		"Ref":     runtime.NewMessage(schema.QName{Namespace: "Chat", Name: "Attachment"}, map[string]interface{}{"Name": "b.txt"}, nil),
	}, nil)

	line, err := tag.Encode(msg, reg)
	require.NoError(t, err)
	assert.Contains(t, line, "@Chat:Note")
	assert.Contains(t, line, `Urgent=Y`)

	decoded, err := tag.Decode(line, reg)
	require.NoError(t, err)
	assert.Equal(t, "hello | world", decoded.Fields["Body"])
	assert.Equal(t, true, decoded.Fields["Urgent"])
	assert.Equal(t, runtime.DecimalValue{Exponent: -1, Mantissa: 95}, decoded.Fields["Score"])

	ref, ok := decoded.Fields["Ref"].(runtime.Message)
	require.True(t, ok)
	assert.Equal(t, "b.txt", ref.Fields["Name"])
}

func TestEncodeDecodeStreamWithComments(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Chat", Name: "Note"}, map[string]interface{}{
		"Body":   "ping",
		"Urgent": false,
		"Score":  runtime.DecimalValue{Exponent: 0, Mantissa: 0},
		"Files":  []interface{}{},
	}, nil)

	line, err := tag.Encode(msg, reg)
	require.NoError(t, err)

	stream := "# a comment\n\n" + line + "\n"
	decoded, err := tag.DecodeStream(stream, reg)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "ping", decoded[0].Fields["Body"])
}

func TestEscapingReservedCharacters(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Chat", Name: "Note"}, map[string]interface{}{
		"Body":   "a|b[c]d{e}f;g",
		"Urgent": false,
		"Score":  runtime.DecimalValue{Exponent: 0, Mantissa: 1},
		"Files":  []interface{}{},
	}, nil)

	line, err := tag.Encode(msg, reg)
	require.NoError(t, err)

	decoded, err := tag.Decode(line, reg)
	require.NoError(t, err)
	assert.Equal(t, "a|b[c]d{e}f;g", decoded.Fields["Body"])
}
