// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jsonfmt_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/codec/jsonfmt"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

const tickSchema = `
namespace Feed

Leg/2 ->
    string Symbol,
    decimal Px

Tick/1 ->
    string Symbol,
    u64 BigCount,
    decimal Px,
    f64 Ratio,
    Leg [] Legs,
    Leg* Alt?
`

func buildRegistry(t *testing.T) *registry.TypeRegistry {
	t.Helper()
	compiled, err := schema.CompileSchema(tickSchema)
	require.NoError(t, err)
	reg, err := registry.NewTypeRegistry(compiled)
	require.NoError(t, err)
	return reg
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Feed", Name: "Tick"}, map[string]interface{}{
		"Symbol":   "AAPL",
		"BigCount": int64(5),
		"Px":       runtime.DecimalValue{Exponent: -2, Mantissa: 15099},
		"Ratio":    1.5,
		"Legs":     []interface{}{runtime.NewStaticGroupValue(map[string]interface{}{"Symbol": "AAPL.A", "Px": runtime.DecimalValue{Exponent: 0, Mantissa: 1}})},
	}, nil)

	data, err := jsonfmt.Encode(msg, reg)
	require.NoError(t, err)

	decoded, err := jsonfmt.Decode(data, reg)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", decoded.Fields["Symbol"])
	assert.Equal(t, int64(5), decoded.Fields["BigCount"])
	assert.Equal(t, runtime.DecimalValue{Exponent: -2, Mantissa: 15099}, decoded.Fields["Px"])
	assert.Equal(t, 1.5, decoded.Fields["Ratio"])
}

func TestLargeIntegerEncodesAsString(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Feed", Name: "Tick"}, map[string]interface{}{
		"Symbol":   "BIG",
		"BigCount": int64(2_000_000_000_000_000),
		"Px":       runtime.DecimalValue{Exponent: 0, Mantissa: 1},
		"Ratio":    0.0,
		"Legs":     []interface{}{},
	}, nil)

	data, err := jsonfmt.Encode(msg, reg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"2000000000000000"`)

	decoded, err := jsonfmt.Decode(data, reg)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000_000_000_000), decoded.Fields["BigCount"])
}

func TestNonFiniteFloatEncodesAsToken(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Feed", Name: "Tick"}, map[string]interface{}{
		"Symbol":   "NAN",
		"BigCount": int64(0),
		"Px":       runtime.DecimalValue{Exponent: 0, Mantissa: 1},
		"Ratio":    math.NaN(),
		"Legs":     []interface{}{},
	}, nil)

	data, err := jsonfmt.Encode(msg, reg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"NaN"`)

	decoded, err := jsonfmt.Decode(data, reg)
	require.NoError(t, err)
	ratio, ok := decoded.Fields["Ratio"].(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(ratio))
}
