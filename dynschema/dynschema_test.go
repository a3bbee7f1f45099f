// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynschema_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkprotocol/blink/codec/compact"
	"github.com/blinkprotocol/blink/dynschema"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

const exchangeSchema = `
namespace Dynschema

NsName/16020 ->
    string Ns,
    string Name

GroupDecl/16000 ->
    NsName Name,
    u64 Id

Ping/50 ->
    string Note
`

func buildSchemaRegistry(t *testing.T) *registry.SchemaRegistry {
	t.Helper()
	compiled, err := schema.CompileSchema(exchangeSchema)
	require.NoError(t, err)
	typeRegistry, err := registry.NewTypeRegistry(compiled)
	require.NoError(t, err)
	return registry.NewSchemaRegistry(typeRegistry)
}

func groupDeclMessage(ns, name string, id int64) runtime.Message {
	return runtime.NewMessage(schema.QName{Namespace: "Dynschema", Name: "GroupDecl"}, map[string]interface{}{
		"Name": runtime.NewStaticGroupValue(map[string]interface{}{"Ns": ns, "Name": name}),
		"Id":   id,
	}, nil)
}

func TestApplySchemaUpdateRegistersNewGroup(t *testing.T) {
	t.Parallel()

	reg := buildSchemaRegistry(t)
	err := dynschema.ApplySchemaUpdate(reg, groupDeclMessage("Trade", "Fill", 20000))
	require.NoError(t, err)

	group, err := reg.TypeRegistry().GetGroupByID(20000)
	require.NoError(t, err)
	assert.Equal(t, "Fill", group.Name.Name)
}

func TestApplySchemaUpdateRejectsNonTransportMessage(t *testing.T) {
	t.Parallel()

	reg := buildSchemaRegistry(t)
	ping := runtime.NewMessage(schema.QName{Namespace: "Dynschema", Name: "Ping"}, map[string]interface{}{"Note": "hi"}, nil)

	err := dynschema.ApplySchemaUpdate(reg, ping)
	assert.Error(t, err)
}

func TestDecodeWithSchemaExchangeAppliesTransportAndReturnsApplicationMessages(t *testing.T) {
	t.Parallel()

	reg := buildSchemaRegistry(t)
	decl := groupDeclMessage("Trade", "Cancel", 20001)
	declBytes, err := dynschema.EncodeSchemaTransportMessage(decl, reg.TypeRegistry())
	require.NoError(t, err)

	ping := runtime.NewMessage(schema.QName{Namespace: "Dynschema", Name: "Ping"}, map[string]interface{}{"Note": "hi"}, nil)
	pingBytes, err := compact.EncodeMessage(ping, reg.TypeRegistry())
	require.NoError(t, err)

	buf := append(append([]byte{}, declBytes...), pingBytes...)
	messages, err := dynschema.DecodeStreamWithSchemaExchange(buf, reg, true)
	require.NoError(t, err)

	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Fields["Note"])

	group, err := reg.TypeRegistry().GetGroupByID(20001)
	require.NoError(t, err)
	assert.Equal(t, "Cancel", group.Name.Name)
}

func TestDecodeBuffersWithSchemaExchangeAppliesConcurrently(t *testing.T) {
	t.Parallel()

	reg := buildSchemaRegistry(t)

	var buffers [][]byte
	for i, name := range []string{"Refund", "Payout", "Settle", "Adjust"} {
		typeID := int64(20010 + i)
		declBytes, err := dynschema.EncodeSchemaTransportMessage(groupDeclMessage("Trade", name, typeID), reg.TypeRegistry())
		require.NoError(t, err)

		ping := runtime.NewMessage(schema.QName{Namespace: "Dynschema", Name: "Ping"}, map[string]interface{}{"Note": name}, nil)
		pingBytes, err := compact.EncodeMessage(ping, reg.TypeRegistry())
		require.NoError(t, err)

		buffers = append(buffers, append(append([]byte{}, declBytes...), pingBytes...))
	}

	results, err := dynschema.DecodeBuffersWithSchemaExchange(context.Background(), buffers, reg, true)
	require.NoError(t, err)
	require.Len(t, results, len(buffers))

	for i, messages := range results {
		require.Len(t, messages, 1)
		assert.Equal(t, []string{"Refund", "Payout", "Settle", "Adjust"}[i], messages[0].Fields["Note"])
	}

	for i, name := range []string{"Refund", "Payout", "Settle", "Adjust"} {
		group, err := reg.TypeRegistry().GetGroupByID(int64(20010 + i))
		require.NoError(t, err)
		assert.Equal(t, name, group.Name.Name)
	}
}

func TestSessionApplyAndAlive(t *testing.T) {
	t.Parallel()

	reg := buildSchemaRegistry(t)
	session := dynschema.NewSession(reg)

	err := session.Apply(groupDeclMessage("Trade", "Order", 20002))
	require.NoError(t, err)

	resp, err := session.Alive(context.Background(), &dynschema.AliveRequest{})
	require.NoError(t, err)
	assert.Contains(t, resp.KnownTypeIDs, int64(20002))
}

func TestSessionIngestStreamAppliesAndReturnsApplicationMessages(t *testing.T) {
	t.Parallel()

	reg := buildSchemaRegistry(t)
	session := dynschema.NewSession(reg)

	decl := groupDeclMessage("Trade", "Amend", 20005)
	declBytes, err := dynschema.EncodeSchemaTransportMessage(decl, reg.TypeRegistry())
	require.NoError(t, err)

	ping := runtime.NewMessage(schema.QName{Namespace: "Dynschema", Name: "Ping"}, map[string]interface{}{"Note": "hi"}, nil)
	pingBytes, err := compact.EncodeMessage(ping, reg.TypeRegistry())
	require.NoError(t, err)

	buf := append(append([]byte{}, declBytes...), pingBytes...)
	messages, err := session.IngestStream(buf, true)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Fields["Note"])

	resp, err := session.Alive(context.Background(), &dynschema.AliveRequest{})
	require.NoError(t, err)
	assert.Contains(t, resp.KnownTypeIDs, int64(20005))
}

func TestSessionSubscribeSendsPendingUpdates(t *testing.T) {
	t.Parallel()

	reg := buildSchemaRegistry(t)
	session := dynschema.NewSession(reg)
	require.NoError(t, session.Apply(groupDeclMessage("Trade", "Order", 20003)))
	require.NoError(t, session.Apply(groupDeclMessage("Trade", "Fill", 20004)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	toServer := make(chan dynschema.Heartbeat, 1)
	toClient := make(chan dynschema.Update, 1)

	go func() {
		_ = session.Subscribe(ctx, toServer, toClient)
	}()

	toServer <- dynschema.Heartbeat{AppliedTypeIDs: []int64{20003}}

	select {
	case update := <-toClient:
		require.Len(t, update.Pending, 1)
		assert.Equal(t, schema.QName{Namespace: "Dynschema", Name: "GroupDecl"}, update.Pending[0].TypeName)
	case <-ctx.Done():
		t.Fatal("timed out waiting for update")
	}
}
