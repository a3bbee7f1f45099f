// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/schema"
)

const demoSchema = `
namespace Demo

A/1 -> u8 X
B/2 : A -> u8 Y
`

func compileRegistry(t *testing.T, text string) *registry.TypeRegistry {
	t.Helper()
	compiled, err := schema.CompileSchema(text)
	require.NoError(t, err)
	reg, err := registry.NewTypeRegistry(compiled)
	require.NoError(t, err)
	return reg
}

func TestTypeRegistryLooksUpByNameAndID(t *testing.T) {
	t.Parallel()

	reg := compileRegistry(t, demoSchema)

	byName, err := reg.GetGroupByName(schema.QName{Namespace: "Demo", Name: "A"})
	require.NoError(t, err)
	byID, err := reg.GetGroupByID(1)
	require.NoError(t, err)
	assert.Same(t, byName, byID)

	assert.True(t, reg.Contains(schema.QName{Namespace: "Demo", Name: "B"}))
	assert.False(t, reg.Contains(schema.QName{Namespace: "Demo", Name: "Nope"}))
}

func TestTypeRegistryKnownTypeIDs(t *testing.T) {
	t.Parallel()

	reg := compileRegistry(t, demoSchema)
	ids := reg.KnownTypeIDs()
	assert.ElementsMatch(t, []int64{1, 2}, ids)
}

func TestSchemaRegistryApplyGroupDecl(t *testing.T) {
	t.Parallel()

	reg := compileRegistry(t, demoSchema)
	mutable := registry.NewSchemaRegistry(reg)

	err := mutable.ApplyGroupDecl(schema.QName{Namespace: "Demo", Name: "C"}, 16000)
	require.NoError(t, err)

	group, err := mutable.TypeRegistry().GetGroupByID(16000)
	require.NoError(t, err)
	assert.Equal(t, "C", group.Name.Name)
}

func TestSchemaRegistryApplyGroupDeclRejectsConflictingID(t *testing.T) {
	t.Parallel()

	reg := compileRegistry(t, demoSchema)
	mutable := registry.NewSchemaRegistry(reg)

	err := mutable.ApplyGroupDecl(schema.QName{Namespace: "Demo", Name: "C"}, 1)
	require.Error(t, err)
}
