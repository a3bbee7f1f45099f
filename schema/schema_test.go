// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/schema"
)

const tradeSchema = `
namespace Trade

Price = decimal

Color = Red | Green | Blue

Instrument/5 ->
    string Symbol,
    Price Px,
    Color Tone

Order/7 : Instrument ->
    u64 OrderId,
    Instrument* Parent?,
    Instrument [] Legs,
    object [] Extension?
`

func TestCompileSchemaResolvesInheritanceAndTypes(t *testing.T) {
	t.Parallel()

	compiled, err := schema.CompileSchema(tradeSchema)
	require.NoError(t, err)

	instrument, err := compiled.GetGroup(schema.QName{Namespace: "Trade", Name: "Instrument"})
	require.NoError(t, err)
	order, err := compiled.GetGroup(schema.QName{Namespace: "Trade", Name: "Order"})
	require.NoError(t, err)

	fieldNames := make([]string, 0)
	for _, f := range order.AllFields() {
		fieldNames = append(fieldNames, f.Name)
	}
	assert.Equal(t, []string{"Symbol", "Px", "Tone", "OrderId", "Parent", "Legs", "Extension"}, fieldNames)

	pxField := instrument.Fields[1]
	primitive, ok := pxField.TypeRef.(schema.PrimitiveType)
	require.True(t, ok)
	assert.Equal(t, schema.Decimal, primitive.Primitive)

	parentField := order.Fields[1]
	_, ok = parentField.TypeRef.(schema.DynamicGroupRef)
	assert.True(t, ok)

	legsField := order.Fields[2]
	seq, ok := legsField.TypeRef.(schema.SequenceType)
	require.True(t, ok)
	_, ok = seq.ElementType.(schema.StaticGroupRef)
	assert.True(t, ok)

	extensionField := order.Fields[3]
	extSeq, ok := extensionField.TypeRef.(schema.SequenceType)
	require.True(t, ok)
	_, ok = extSeq.ElementType.(schema.ObjectType)
	assert.True(t, ok)
}

func TestCompileSchemaRejectsDuplicateTypeID(t *testing.T) {
	t.Parallel()

	_, err := schema.CompileSchema(`
namespace Dup

A/1 -> u8 X
B/1 -> u8 Y
`)
	require.Error(t, err)
}

func TestCompileSchemaRejectsUnknownPrimitive(t *testing.T) {
	t.Parallel()

	_, err := schema.CompileSchema(`
namespace Bad

A/1 -> nonsense X
`)
	require.Error(t, err)
}
