// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xmlfmt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/codec/xmlfmt"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

const eventSchema = `
namespace Ops

Tag/2 ->
    string Key,
    bool Flag

Event/1 ->
    string Name,
    u32 Count,
    binary Payload,
    Tag [] Tags,
    Tag* Extra?
`

const alertSchema = `
namespace Ops

Alert/3 ->
    string Message
`

func buildRegistry(t *testing.T) *registry.TypeRegistry {
	t.Helper()
	compiled, err := schema.CompileSchema(eventSchema)
	require.NoError(t, err)
	reg, err := registry.NewTypeRegistry(compiled)
	require.NoError(t, err)
	return reg
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Ops", Name: "Event"}, map[string]interface{}{
		"Name":    "deploy",
		"Count":   int64(3),
		"Payload": []byte{0xff, 0x00, 0x10},
		"Tags":    []interface{}{runtime.NewStaticGroupValue(map[string]interface{}{"Key": "env", "Flag": true})},
	}, nil)

	doc, err := xmlfmt.Encode(msg, reg)
	require.NoError(t, err)
	assert.Contains(t, doc, `binary="yes"`)

	decoded, err := xmlfmt.Decode([]byte(doc), reg)
	require.NoError(t, err)
	assert.Equal(t, "deploy", decoded.Fields["Name"])
	assert.Equal(t, int64(3), decoded.Fields["Count"])
	assert.Equal(t, []byte{0xff, 0x00, 0x10}, decoded.Fields["Payload"])

	tags, ok := decoded.Fields["Tags"].([]interface{})
	require.True(t, ok)
	require.Len(t, tags, 1)
	tag, ok := tags[0].(runtime.StaticGroupValue)
	require.True(t, ok)
	assert.Equal(t, "env", tag.Fields["Key"])
	assert.Equal(t, true, tag.Fields["Flag"])
}

func TestEncodeDecodeWithExtensions(t *testing.T) {
	t.Parallel()

	compiled, err := schema.CompileSchema(eventSchema)
	require.NoError(t, err)
	reg, err := registry.NewTypeRegistry(compiled)
	require.NoError(t, err)

	alertCompiled, err := schema.CompileSchema(alertSchema)
	require.NoError(t, err)
	for _, g := range alertCompiled.Groups() {
		require.NoError(t, reg.RegisterGroup(g))
	}

	alert := runtime.NewMessage(schema.QName{Namespace: "Ops", Name: "Alert"}, map[string]interface{}{
		"Message": "disk full",
	}, nil)

	msg := runtime.NewMessage(schema.QName{Namespace: "Ops", Name: "Event"}, map[string]interface{}{
		"Name":    "alarm",
		"Count":   int64(1),
		"Payload": []byte("ok"),
		"Tags":    []interface{}{},
	}, []runtime.Message{alert})

	doc, err := xmlfmt.Encode(msg, reg)
	require.NoError(t, err)

	decoded, err := xmlfmt.Decode([]byte(doc), reg)
	require.NoError(t, err)
	require.Len(t, decoded.Extensions, 1)
	assert.Equal(t, "disk full", decoded.Extensions[0].Fields["Message"])
}
