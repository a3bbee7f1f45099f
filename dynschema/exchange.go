// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dynschema implements the Dynamic Schema Exchange layer: a
// reserved type id range (16000-16383) carrying schema transport messages
// that update a SchemaRegistry at runtime while a stream is being decoded.
package dynschema

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/blinkprotocol/blink/codec/compact"
	"github.com/blinkprotocol/blink/internal/blinkerr"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

// Reserved type ids for the schema transport messages this package
// applies. Only these specific ids cause a runtime schema update;
// every other id in 16000-16383 describes schema structure but carries
// no transport behavior of its own.
const (
	TypeIDGroupDecl = 16000
	TypeIDGroupDef  = 16001
	TypeIDFieldDef  = 16002
	TypeIDDefine    = 16003
	TypeIDTypeDef   = 16004
	TypeIDSymbol    = 16019
)

// ReservedTypeIDMin and ReservedTypeIDMax bound the range set aside for
// schema transport and schema-description types.
const (
	ReservedTypeIDMin = 16000
	ReservedTypeIDMax = 16383
)

// IsSchemaTransportMessage reports whether typeID names one of the
// handful of messages that update a registry, as opposed to one of the
// other reserved ids that merely describe schema structure.
func IsSchemaTransportMessage(typeID int64) bool {
	switch typeID {
	case TypeIDGroupDecl, TypeIDGroupDef, TypeIDFieldDef, TypeIDDefine, TypeIDTypeDef, TypeIDSymbol:
		return true
	default:
		return false
	}
}

// ApplySchemaUpdate routes a decoded schema transport message to its
// handler. GroupDecl and GroupDef are implemented; the remaining
// transport types are recognized but rejected until a future revision
// adds field-level schema mutation.
func ApplySchemaUpdate(reg *registry.SchemaRegistry, message runtime.Message) error {
	group, err := reg.TypeRegistry().GetGroupByName(message.TypeName)
	if err != nil {
		return err
	}
	if group.TypeID == nil {
		return blinkerr.NewSchema("group %s has no type id", message.TypeName)
	}
	typeID := *group.TypeID

	if !IsSchemaTransportMessage(typeID) {
		return blinkerr.NewSchema("type id %d is not a schema transport message", typeID)
	}

	switch typeID {
	case TypeIDGroupDecl:
		return applyGroupDecl(reg, message)
	case TypeIDGroupDef:
		return applyGroupDef(reg, message)
	default:
		return blinkerr.NewSchema("schema transport message type %d not yet implemented", typeID)
	}
}

func nameFields(value interface{}) (ns, name string, err error) {
	switch v := value.(type) {
	case map[string]interface{}:
		ns, _ = v["Ns"].(string)
		name, _ = v["Name"].(string)
	case runtime.StaticGroupValue:
		ns, _ = v.Fields["Ns"].(string)
		name, _ = v.Fields["Name"].(string)
	default:
		return "", "", blinkerr.NewSchema("expected a NsName static group, got %T", value)
	}
	return ns, name, nil
}

func requireInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// applyGroupDecl handles "NsName Name, u64 Id": tag an existing group
// with a type id, or register a placeholder carrying only name and id.
func applyGroupDecl(reg *registry.SchemaRegistry, message runtime.Message) error {
	nameData, ok := message.Fields["Name"]
	if !ok || nameData == nil {
		return blinkerr.NewSchema("GroupDecl missing Name field")
	}
	ns, name, err := nameFields(nameData)
	if err != nil {
		return err
	}
	if name == "" {
		return blinkerr.NewSchema("GroupDecl missing Name.Name")
	}

	idData, ok := message.Fields["Id"]
	if !ok || idData == nil {
		return blinkerr.NewSchema("GroupDecl missing Id field")
	}
	typeID, ok := requireInt64(idData)
	if !ok {
		return blinkerr.NewSchema("GroupDecl Id field must be an integer")
	}

	return reg.ApplyGroupDecl(schema.QName{Namespace: ns, Name: name}, typeID)
}

// applyGroupDef handles "NsName Name, u64 Id?, FieldDef [] Fields, NsName
// Super?": validates the super reference if present and tags the group
// with its type id. A complete field-level definition is left for a
// future revision; this records the id so later frames that reference
// the type id decode successfully.
func applyGroupDef(reg *registry.SchemaRegistry, message runtime.Message) error {
	nameData, ok := message.Fields["Name"]
	if !ok || nameData == nil {
		return blinkerr.NewSchema("GroupDef missing Name field")
	}
	ns, name, err := nameFields(nameData)
	if err != nil {
		return err
	}
	if name == "" {
		return blinkerr.NewSchema("GroupDef missing Name.Name")
	}

	if superData, ok := message.Fields["Super"]; ok && superData != nil {
		superNs, superName, err := nameFields(superData)
		if err != nil {
			return err
		}
		if superName != "" {
			if _, err := reg.TypeRegistry().GetGroupByName(schema.QName{Namespace: superNs, Name: superName}); err != nil {
				return blinkerr.NewSchema("super group %s:%s not found", superNs, superName)
			}
		}
	}

	idData, ok := message.Fields["Id"]
	if !ok || idData == nil {
		return nil
	}
	typeID, ok := requireInt64(idData)
	if !ok {
		return blinkerr.NewSchema("GroupDef Id field must be an integer")
	}
	return reg.ApplyGroupDecl(schema.QName{Namespace: ns, Name: name}, typeID)
}

// DecodeWithSchemaExchange decodes one Compact Binary frame, applying it
// to reg and returning a nil message if it was a schema transport
// message, or the decoded application message otherwise.
func DecodeWithSchemaExchange(buf []byte, reg *registry.SchemaRegistry, offset int, strict bool) (*runtime.Message, int, error) {
	typeRegistry := reg.TypeRegistry()
	msg, newOffset, err := compact.DecodeMessage(buf, offset, typeRegistry, strict)
	if err != nil {
		return nil, 0, err
	}

	group, err := typeRegistry.GetGroupByName(msg.TypeName)
	if err != nil {
		return nil, 0, err
	}
	if group.TypeID != nil && IsSchemaTransportMessage(*group.TypeID) {
		if err := ApplySchemaUpdate(reg, msg); err != nil {
			return nil, 0, err
		}
		return nil, newOffset, nil
	}

	return &msg, newOffset, nil
}

// DecodeStreamWithSchemaExchange decodes every frame in buf, applying
// schema transport messages to reg as they are encountered and returning
// only the application messages.
func DecodeStreamWithSchemaExchange(buf []byte, reg *registry.SchemaRegistry, strict bool) ([]runtime.Message, error) {
	var messages []runtime.Message
	offset := 0
	for offset < len(buf) {
		msg, newOffset, err := DecodeWithSchemaExchange(buf, reg, offset, strict)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			messages = append(messages, *msg)
		}
		offset = newOffset
	}
	return messages, nil
}

// DecodeBuffersWithSchemaExchange decodes several independent Compact
// Binary buffers concurrently, one goroutine per buffer. Every buffer
// shares reg, so a GroupDecl/GroupDef frame in one buffer is visible to
// the others as soon as it is applied; reg's own mutex (registry.SchemaRegistry)
// serializes the writes, and each goroutine's reads always go through
// reg.TypeRegistry() rather than a cached snapshot. Results line up with
// buffers by index, independent of which buffer finishes decoding first.
func DecodeBuffersWithSchemaExchange(ctx context.Context, buffers [][]byte, reg *registry.SchemaRegistry, strict bool) ([][]runtime.Message, error) {
	results := make([][]runtime.Message, len(buffers))
	group, _ := errgroup.WithContext(ctx)
	for i, buf := range buffers {
		i, buf := i, buf
		group.Go(func() error {
			messages, err := DecodeStreamWithSchemaExchange(buf, reg, strict)
			if err != nil {
				return err
			}
			results[i] = messages
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// EncodeSchemaTransportMessage encodes a schema transport message
// (GroupDecl, GroupDef, ...) to Compact Binary, rejecting any message
// whose group is not one of the reserved transport types.
func EncodeSchemaTransportMessage(message runtime.Message, reg *registry.TypeRegistry) ([]byte, error) {
	group, err := reg.GetGroupByName(message.TypeName)
	if err != nil {
		return nil, err
	}
	if group.TypeID == nil {
		return nil, blinkerr.NewEncode("group %s is missing a type id and cannot be encoded", group.Name)
	}
	if !IsSchemaTransportMessage(*group.TypeID) {
		return nil, blinkerr.NewEncode("type id %d is not a schema transport message", *group.TypeID)
	}
	return compact.EncodeMessage(message, reg)
}

// CreateSchemaExchangeRegistry compiles the schema file at path and wraps
// the resulting registry for dynamic updates.
func CreateSchemaExchangeRegistry(path string) (*registry.SchemaRegistry, error) {
	compiled, err := schema.CompileSchemaFile(path)
	if err != nil {
		return nil, err
	}
	typeRegistry, err := registry.NewTypeRegistry(compiled)
	if err != nil {
		return nil, err
	}
	return registry.NewSchemaRegistry(typeRegistry), nil
}
