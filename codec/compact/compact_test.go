// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compact_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/codec/compact"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

const orderSchema = `
namespace Trade

Side = Buy | Sell

Fill/2 ->
    u64 FillId,
    decimal Px

Order/1 ->
    string Symbol,
    u32 Qty,
    decimal Px?,
    Side Direction,
    bool Live,
    Fill InitialFill,
    Fill* LastFill?,
    u32 [] Tags?

Cancel/3 ->
    u64 OrderId
`

func buildRegistry(t *testing.T) *registry.TypeRegistry {
	t.Helper()
	compiled, err := schema.CompileSchema(orderSchema)
	require.NoError(t, err)
	reg, err := registry.NewTypeRegistry(compiled)
	require.NoError(t, err)
	return reg
}

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Trade", Name: "Order"}, map[string]interface{}{
		"Symbol":      "AAPL",
		"Qty":         int64(100),
		"Px":          runtime.DecimalValue{Exponent: -2, Mantissa: 15099},
		"Direction":   "Buy",
		"Live":        true,
		"InitialFill": runtime.NewStaticGroupValue(map[string]interface{}{"FillId": int64(1), "Px": runtime.DecimalValue{Exponent: -2, Mantissa: 15099}}),
		"Tags":        []interface{}{int64(1), int64(2), int64(3)},
	}, nil)

	encoded, err := compact.EncodeMessage(msg, reg)
	require.NoError(t, err)

	decoded, next, err := compact.DecodeMessage(encoded, 0, reg, true)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), next)
	assert.Equal(t, msg.TypeName, decoded.TypeName)
	assert.Equal(t, "AAPL", decoded.Fields["Symbol"])
	assert.Equal(t, int64(100), decoded.Fields["Qty"])
	assert.Equal(t, true, decoded.Fields["Live"])
	assert.Nil(t, decoded.Fields["LastFill"])
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, decoded.Fields["Tags"])
}

func TestEncodeDecodeOptionalFieldAbsent(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	msg := runtime.NewMessage(schema.QName{Namespace: "Trade", Name: "Order"}, map[string]interface{}{
		"Symbol":      "MSFT",
		"Qty":         int64(1),
		"Direction":   "Sell",
		"Live":        false,
		"InitialFill": runtime.NewStaticGroupValue(map[string]interface{}{"FillId": int64(2), "Px": runtime.DecimalValue{Exponent: 0, Mantissa: 1}}),
	}, nil)

	encoded, err := compact.EncodeMessage(msg, reg)
	require.NoError(t, err)

	decoded, _, err := compact.DecodeMessage(encoded, 0, reg, true)
	require.NoError(t, err)
	assert.Nil(t, decoded.Fields["Px"])
	assert.Nil(t, decoded.Fields["LastFill"])
	assert.Nil(t, decoded.Fields["Tags"])
}

func TestEncodeDecodeWithExtensions(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	cancel := runtime.NewMessage(schema.QName{Namespace: "Trade", Name: "Cancel"}, map[string]interface{}{
		"OrderId": int64(42),
	}, nil)

	msg := runtime.NewMessage(schema.QName{Namespace: "Trade", Name: "Order"}, map[string]interface{}{
		"Symbol":      "GOOG",
		"Qty":         int64(5),
		"Direction":   "Buy",
		"Live":        true,
		"InitialFill": runtime.NewStaticGroupValue(map[string]interface{}{"FillId": int64(3), "Px": runtime.DecimalValue{Exponent: 0, Mantissa: 1}}),
	}, []runtime.Message{cancel})

	encoded, err := compact.EncodeMessage(msg, reg)
	require.NoError(t, err)

	decoded, _, err := compact.DecodeMessage(encoded, 0, reg, true)
	require.NoError(t, err)
	require.Len(t, decoded.Extensions, 1)
	assert.Equal(t, cancel.TypeName, decoded.Extensions[0].TypeName)
	assert.Equal(t, int64(42), decoded.Extensions[0].Fields["OrderId"])
}

func TestDecodeFrameUnknownTypeIDStrict(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	raw, err := compact.EncodeFrame(999, []byte{0x01})
	require.NoError(t, err)

	_, _, err = compact.DecodeFrame(raw, 0, reg, true)
	require.Error(t, err)
}

func TestDecodeFrameUnknownTypeIDLax(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t)
	raw, err := compact.EncodeFrame(999, []byte{0x01})
	require.NoError(t, err)

	frame, next, err := compact.DecodeFrame(raw, 0, reg, false)
	require.NoError(t, err)
	assert.Equal(t, len(raw), next)
	assert.Nil(t, frame.Group)
	assert.Equal(t, int64(999), frame.TypeID)
}
