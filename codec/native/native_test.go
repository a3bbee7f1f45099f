// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package native_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/codec/native"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

const quoteSchema = `
namespace Market

Venue/1 ->
    string(8) Code,
    binary Blob?

Quote/2 ->
    string(8) Symbol,
    Venue Source,
    Venue* AltSource?,
    u32 [] Sizes,
    string Note?
`

func buildRegistry(t *testing.T) *registry.TypeRegistry {
	t.Helper()
	compiled, err := schema.CompileSchema(quoteSchema)
	require.NoError(t, err)
	reg, err := registry.NewTypeRegistry(compiled)
	require.NoError(t, err)
	return reg
}

func TestEncodeDecodeRoundTripWithInlineStringAndSequence(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Market", Name: "Quote"}, map[string]interface{}{
		"Symbol": "AAPL",
		"Source": runtime.NewStaticGroupValue(map[string]interface{}{
			"Code": "NASDAQ",
			"Blob": []byte{0x01, 0x02, 0x03},
		}),
		"Sizes": []interface{}{int64(10), int64(20), int64(30)},
	}, nil)

	encoded, err := native.Encode(msg, reg)
	require.NoError(t, err)

	decoded, next, err := native.Decode(encoded, 0, reg)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), next)
	assert.Equal(t, "AAPL", decoded.Fields["Symbol"])

	source, ok := decoded.Fields["Source"].(runtime.StaticGroupValue)
	require.True(t, ok)
	assert.Equal(t, "NASDAQ", source.Fields["Code"])
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, source.Fields["Blob"])
	assert.Nil(t, decoded.Fields["AltSource"])
	assert.Nil(t, decoded.Fields["Note"])
	assert.Equal(t, []interface{}{int64(10), int64(20), int64(30)}, decoded.Fields["Sizes"])
}

func TestEncodeDecodeWithDynamicGroupField(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Market", Name: "Quote"}, map[string]interface{}{
		"Symbol": "MSFT",
		"Source": runtime.NewStaticGroupValue(map[string]interface{}{
			"Code": "NYSE",
		}),
		"AltSource": runtime.NewMessage(schema.QName{Namespace: "Market", Name: "Venue"}, map[string]interface{}{
			"Code": "ARCA",
		}, nil),
		"Sizes": []interface{}{},
		"Note":  "late print",
	}, nil)

	encoded, err := native.Encode(msg, reg)
	require.NoError(t, err)

	decoded, _, err := native.Decode(encoded, 0, reg)
	require.NoError(t, err)

	alt, ok := decoded.Fields["AltSource"].(runtime.Message)
	require.True(t, ok)
	assert.Equal(t, "ARCA", alt.Fields["Code"])
	assert.Equal(t, "late print", decoded.Fields["Note"])
	assert.Equal(t, []interface{}{}, decoded.Fields["Sizes"])
}
