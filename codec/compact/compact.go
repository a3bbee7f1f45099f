// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compact implements Blink's Compact Binary codec: length-prefixed
// VLC framing, VLC-encoded integers and lengths, presence bytes for
// nullable fixed-binary and static groups, nested frames for dynamic
// groups and objects, and a trailing extension list.
package compact

import (
	"math"

	"github.com/blinkprotocol/blink/codec/vlc"
	"github.com/blinkprotocol/blink/internal/blinkerr"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

// Frame is a decoded Compact Binary message frame: its type id, the raw
// field+extension payload, the frame's length value (the byte count of
// type id plus payload, not counting the length prefix itself), and the
// group resolved from the registry (nil in lax mode for unknown ids).
type Frame struct {
	TypeID  int64
	Payload []byte
	Length  int64
	Group   *schema.GroupDef
}

// EncodeFrame renders the length/type-id preamble around payload.
func EncodeFrame(typeID int64, payload []byte) ([]byte, error) {
	if typeID < 0 {
		return nil, blinkerr.NewEncode("type id must be non-negative")
	}
	body := append(vlc.Encode(typeID), payload...)
	out := append(vlc.Encode(int64(len(body))), body...)
	return out, nil
}

// DecodeFrame decodes a single Compact Binary frame from buf starting at
// offset. In strict mode, an unknown type id fails; otherwise Group is
// left nil so the caller can choose to skip it.
func DecodeFrame(buf []byte, offset int, reg *registry.TypeRegistry, strict bool) (Frame, int, error) {
	length, ok, cursor, err := vlc.Decode(buf, offset)
	if err != nil {
		return Frame{}, 0, err
	}
	if !ok {
		return Frame{}, 0, blinkerr.NewDecode(offset, "frame length cannot be NULL")
	}
	end := cursor + int(length)
	if end > len(buf) {
		return Frame{}, 0, blinkerr.NewDecode(offset, "truncated compact binary frame")
	}
	typeID, ok, cursor, err := vlc.Decode(buf, cursor)
	if err != nil {
		return Frame{}, 0, err
	}
	if !ok {
		return Frame{}, 0, blinkerr.NewDecode(offset, "frame type id cannot be NULL")
	}
	payload := append([]byte(nil), buf[cursor:end]...)
	var group *schema.GroupDef
	if reg != nil {
		g, gerr := reg.GetGroupByID(typeID)
		if gerr != nil {
			if strict {
				return Frame{}, 0, blinkerr.NewDecode(offset, "%s", gerr.Error())
			}
		} else {
			group = g
		}
	}
	return Frame{TypeID: typeID, Payload: payload, Length: length, Group: group}, end, nil
}

// EncodeMessage encodes msg's fields and extensions and wraps the result
// in a Compact Binary frame.
func EncodeMessage(msg runtime.Message, reg *registry.TypeRegistry) ([]byte, error) {
	group, err := reg.GetGroupByName(msg.TypeName)
	if err != nil {
		return nil, err
	}
	if group.TypeID == nil {
		return nil, blinkerr.NewEncode("group %s is missing a type id and cannot be encoded", group.Name)
	}
	payload, err := encodeGroupInstance(group, msg.Fields, reg)
	if err != nil {
		return nil, err
	}
	ext, err := encodeExtensions(msg.Extensions, reg)
	if err != nil {
		return nil, err
	}
	payload = append(payload, ext...)
	return EncodeFrame(*group.TypeID, payload)
}

// DecodeMessage decodes a full message (frame + fields + extensions) from
// buf starting at offset, returning the message and the offset of the
// next frame.
func DecodeMessage(buf []byte, offset int, reg *registry.TypeRegistry, strict bool) (runtime.Message, int, error) {
	frame, newOffset, err := DecodeFrame(buf, offset, reg, strict)
	if err != nil {
		return runtime.Message{}, 0, err
	}
	group := frame.Group
	if group == nil {
		group, err = reg.GetGroupByID(frame.TypeID)
		if err != nil {
			return runtime.Message{}, 0, err
		}
	}
	fields, cursor, err := decodeGroupFields(group, frame.Payload, 0, reg)
	if err != nil {
		return runtime.Message{}, 0, err
	}
	var extensions []runtime.Message
	if cursor < len(frame.Payload) {
		extensions, err = decodeExtensions(frame.Payload[cursor:], reg)
		if err != nil {
			return runtime.Message{}, 0, err
		}
	}
	return runtime.NewMessage(group.Name, fields, extensions), newOffset, nil
}

func encodeGroupInstance(group *schema.GroupDef, values map[string]interface{}, reg *registry.TypeRegistry) ([]byte, error) {
	var out []byte
	for _, field := range group.AllFields() {
		value, present := values[field.Name]
		if (!present || value == nil) && !field.Optional {
			return nil, blinkerr.NewEncode("missing required field %s for %s", field.Name, group.Name)
		}
		if !present {
			value = nil
		}
		encoded, err := encodeType(field.TypeRef, value, field.Optional, reg)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}
	return out, nil
}

func encodeType(typeRef schema.TypeRef, value interface{}, optional bool, reg *registry.TypeRegistry) ([]byte, error) {
	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		return encodePrimitive(t.Primitive, value, optional)
	case schema.BinaryType:
		return encodeBinary(t, value, optional)
	case *schema.EnumType:
		return encodeEnum(t, value, optional)
	case schema.SequenceType:
		return encodeSequence(t, value, optional, reg)
	case schema.StaticGroupRef:
		return encodeStaticGroup(t.Group, value, optional, reg)
	case schema.DynamicGroupRef:
		return encodeDynamicGroup(value, optional, reg)
	case schema.ObjectType:
		return encodeObject(value, optional, reg)
	default:
		return nil, blinkerr.NewEncode("unsupported field type %T", typeRef)
	}
}

func encodePrimitive(kind schema.PrimitiveKind, value interface{}, optional bool) ([]byte, error) {
	if value == nil {
		if !optional {
			return nil, blinkerr.NewEncode("non-optional primitive field cannot be nil")
		}
		return vlc.EncodeNull(), nil
	}
	switch kind {
	case schema.Bool:
		b, ok := value.(bool)
		if !ok {
			return nil, blinkerr.NewEncode("bool field expects a bool value")
		}
		v := int64(0)
		if b {
			v = 1
		}
		return vlc.Encode(v), nil
	case schema.Decimal:
		exp, mant, err := decimalParts(value)
		if err != nil {
			return nil, err
		}
		return append(vlc.Encode(exp), vlc.Encode(mant)...), nil
	case schema.F64:
		f, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		return vlc.Encode(int64(math.Float64bits(f))), nil
	default:
		v, err := toInt64(value)
		if err != nil {
			return nil, blinkerr.NewEncode("primitive %s expects an int-compatible value", kind)
		}
		return vlc.Encode(v), nil
	}
}

func decimalParts(value interface{}) (exponent, mantissa int64, err error) {
	switch v := value.(type) {
	case runtime.DecimalValue:
		return v.Exponent, v.Mantissa, nil
	case [2]int64:
		return v[0], v[1], nil
	default:
		return 0, 0, blinkerr.NewEncode("decimal fields require a runtime.DecimalValue")
	}
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, blinkerr.NewEncode("f64 expects a numeric value, got %T", value)
	}
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, blinkerr.NewEncode("expected int-compatible value, got %T", value)
	}
}

func encodeBinary(binary schema.BinaryType, value interface{}, optional bool) ([]byte, error) {
	if value == nil {
		if !optional {
			return nil, blinkerr.NewEncode("non-optional binary field cannot be nil")
		}
		if binary.Kind == "fixed" {
			return []byte{vlc.NullByte}, nil
		}
		return vlc.EncodeNull(), nil
	}
	var data []byte
	if binary.Kind == "string" {
		s, ok := value.(string)
		if !ok {
			return nil, blinkerr.NewEncode("string fields expect string values")
		}
		data = []byte(s)
	} else {
		b, ok := value.([]byte)
		if !ok {
			return nil, blinkerr.NewEncode("binary fields expect []byte values")
		}
		data = b
	}
	if binary.Kind == "fixed" {
		if len(data) != binary.Size {
			return nil, blinkerr.NewEncode("fixed field requires exactly %d bytes", binary.Size)
		}
		if optional {
			return append([]byte{0x01}, data...), nil
		}
		return data, nil
	}
	return append(vlc.Encode(int64(len(data))), data...), nil
}

func encodeEnum(enum *schema.EnumType, value interface{}, optional bool) ([]byte, error) {
	if value == nil {
		if !optional {
			return nil, blinkerr.NewEncode("non-optional enum field cannot be nil")
		}
		return vlc.EncodeNull(), nil
	}
	var number int64
	switch v := value.(type) {
	case string:
		n, err := enum.ToValue(v)
		if err != nil {
			return nil, err
		}
		number = n
	default:
		n, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		number = n
	}
	return vlc.Encode(number), nil
}

func encodeSequence(seq schema.SequenceType, value interface{}, optional bool, reg *registry.TypeRegistry) ([]byte, error) {
	if value == nil {
		if !optional {
			return nil, blinkerr.NewEncode("non-optional sequence cannot be nil")
		}
		return vlc.EncodeNull(), nil
	}
	items, ok := value.([]interface{})
	if !ok {
		return nil, blinkerr.NewEncode("sequence fields expect []interface{}")
	}
	out := vlc.Encode(int64(len(items)))
	for _, item := range items {
		encoded, err := encodeType(seq.ElementType, item, false, reg)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}
	return out, nil
}

func encodeStaticGroup(group *schema.GroupDef, value interface{}, optional bool, reg *registry.TypeRegistry) ([]byte, error) {
	if value == nil {
		if optional {
			return []byte{vlc.NullByte}, nil
		}
		return nil, blinkerr.NewEncode("static group %s requires a value", group.Name)
	}
	fields, err := asFieldMap(value)
	if err != nil {
		return nil, err
	}
	encoded, err := encodeGroupInstance(group, fields, reg)
	if err != nil {
		return nil, err
	}
	if optional {
		return append([]byte{0x01}, encoded...), nil
	}
	return encoded, nil
}

func asFieldMap(value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case runtime.StaticGroupValue:
		return v.Fields, nil
	case map[string]interface{}:
		return v, nil
	default:
		return nil, blinkerr.NewEncode("static group fields must be a map or runtime.StaticGroupValue")
	}
}

func encodeDynamicGroup(value interface{}, optional bool, reg *registry.TypeRegistry) ([]byte, error) {
	if value == nil {
		if optional {
			return vlc.EncodeNull(), nil
		}
		return nil, blinkerr.NewEncode("dynamic group requires a value")
	}
	msg, ok := value.(runtime.Message)
	if !ok {
		return nil, blinkerr.NewEncode("dynamic group expects a runtime.Message value")
	}
	group, err := reg.GetGroupByName(msg.TypeName)
	if err != nil {
		return nil, err
	}
	if group.TypeID == nil {
		return nil, blinkerr.NewEncode("dynamic group %s is missing a type id", group.Name)
	}
	payload, err := encodeGroupInstance(group, msg.Fields, reg)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(*group.TypeID, payload)
}

func encodeObject(value interface{}, optional bool, reg *registry.TypeRegistry) ([]byte, error) {
	if value == nil {
		if optional {
			return vlc.EncodeNull(), nil
		}
		return nil, blinkerr.NewEncode("object field requires a value")
	}
	msg, ok := value.(runtime.Message)
	if !ok {
		return nil, blinkerr.NewEncode("object entries must be runtime.Message values")
	}
	group, err := reg.GetGroupByName(msg.TypeName)
	if err != nil {
		return nil, err
	}
	if group.TypeID == nil {
		return nil, blinkerr.NewEncode("object entry %s missing type id", group.Name)
	}
	payload, err := encodeGroupInstance(group, msg.Fields, reg)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(*group.TypeID, payload)
}

func decodeGroupFields(group *schema.GroupDef, payload []byte, offset int, reg *registry.TypeRegistry) (map[string]interface{}, int, error) {
	fields := make(map[string]interface{})
	cursor := offset
	for _, field := range group.AllFields() {
		value, next, err := decodeType(field.TypeRef, payload, cursor, field.Optional, reg)
		if err != nil {
			return nil, 0, err
		}
		fields[field.Name] = value
		cursor = next
	}
	return fields, cursor, nil
}

func decodeType(typeRef schema.TypeRef, payload []byte, offset int, optional bool, reg *registry.TypeRegistry) (interface{}, int, error) {
	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		return decodePrimitive(t.Primitive, payload, offset)
	case schema.BinaryType:
		return decodeBinary(t, payload, offset, optional)
	case *schema.EnumType:
		value, ok, next, err := vlc.Decode(payload, offset)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, next, nil
		}
		symbol, err := t.ToSymbol(value)
		if err != nil {
			return nil, 0, err
		}
		return symbol, next, nil
	case schema.SequenceType:
		size, ok, cursor, err := vlc.Decode(payload, offset)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, cursor, nil
		}
		items := make([]interface{}, 0, size)
		for i := int64(0); i < size; i++ {
			item, next, err := decodeType(t.ElementType, payload, cursor, false, reg)
			if err != nil {
				return nil, 0, err
			}
			items = append(items, item)
			cursor = next
		}
		return items, cursor, nil
	case schema.StaticGroupRef:
		markerOffset := offset
		if optional {
			if markerOffset >= len(payload) {
				return nil, 0, blinkerr.NewDecode(offset, "missing static group presence byte")
			}
			marker := payload[markerOffset]
			markerOffset++
			if marker == vlc.NullByte {
				return nil, markerOffset, nil
			}
			if marker != 0x01 {
				return nil, 0, blinkerr.NewDecode(offset, "invalid presence byte for static group")
			}
		}
		values, cursor, err := decodeGroupFields(t.Group, payload, markerOffset, reg)
		if err != nil {
			return nil, 0, err
		}
		return runtime.NewStaticGroupValue(values), cursor, nil
	case schema.DynamicGroupRef:
		return decodeDynamicGroup(payload, offset, reg, optional)
	case schema.ObjectType:
		return decodeDynamicGroup(payload, offset, reg, optional)
	default:
		return nil, 0, blinkerr.NewDecode(offset, "unsupported type reference %T", typeRef)
	}
}

func decodePrimitive(kind schema.PrimitiveKind, payload []byte, offset int) (interface{}, int, error) {
	value, ok, cursor, err := vlc.Decode(payload, offset)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, cursor, nil
	}
	switch kind {
	case schema.Bool:
		return value != 0, cursor, nil
	case schema.Decimal:
		mantissa, ok, cursor2, err := vlc.Decode(payload, cursor)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, blinkerr.NewDecode(cursor, "decimal mantissa cannot be NULL")
		}
		return runtime.DecimalValue{Exponent: value, Mantissa: mantissa}, cursor2, nil
	case schema.F64:
		return math.Float64frombits(uint64(value)), cursor, nil
	default:
		return value, cursor, nil
	}
}

func decodeBinary(binary schema.BinaryType, payload []byte, offset int, optional bool) (interface{}, int, error) {
	if binary.Kind == "fixed" {
		cursor := offset
		if optional {
			if cursor >= len(payload) {
				return nil, 0, blinkerr.NewDecode(offset, "missing presence byte for nullable fixed field")
			}
			presence := payload[cursor]
			if presence == vlc.NullByte {
				return nil, cursor + 1, nil
			}
			if presence != 0x01 {
				return nil, 0, blinkerr.NewDecode(offset, "invalid presence byte for nullable fixed field: %#x", presence)
			}
			cursor++
		}
		end := cursor + binary.Size
		if end > len(payload) {
			return nil, 0, blinkerr.NewDecode(offset, "truncated fixed binary field")
		}
		data := append([]byte(nil), payload[cursor:end]...)
		return data, end, nil
	}
	length, ok, cursor, err := vlc.Decode(payload, offset)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, cursor, nil
	}
	end := cursor + int(length)
	if end > len(payload) {
		return nil, 0, blinkerr.NewDecode(offset, "truncated binary/string field")
	}
	data := payload[cursor:end]
	if binary.Kind == "string" {
		return string(data), end, nil
	}
	return append([]byte(nil), data...), end, nil
}

func decodeDynamicGroup(payload []byte, offset int, reg *registry.TypeRegistry, optional bool) (interface{}, int, error) {
	if optional && offset < len(payload) && payload[offset] == vlc.NullByte {
		return nil, offset + 1, nil
	}
	frame, end, err := DecodeFrame(payload, offset, reg, true)
	if err != nil {
		return nil, 0, err
	}
	group := frame.Group
	if group == nil {
		group, err = reg.GetGroupByID(frame.TypeID)
		if err != nil {
			return nil, 0, err
		}
	}
	fields, consumed, err := decodeGroupFields(group, frame.Payload, 0, reg)
	if err != nil {
		return nil, 0, err
	}
	if consumed != len(frame.Payload) {
		return nil, 0, blinkerr.NewDecode(offset, "trailing bytes in dynamic group payload")
	}
	return runtime.NewMessage(group.Name, fields, nil), end, nil
}

func encodeExtensions(extensions []runtime.Message, reg *registry.TypeRegistry) ([]byte, error) {
	if len(extensions) == 0 {
		return nil, nil
	}
	out := vlc.Encode(int64(len(extensions)))
	for _, ext := range extensions {
		group, err := reg.GetGroupByName(ext.TypeName)
		if err != nil {
			return nil, err
		}
		if group.TypeID == nil {
			return nil, blinkerr.NewEncode("extension group %s missing type id", group.Name)
		}
		payload, err := encodeGroupInstance(group, ext.Fields, reg)
		if err != nil {
			return nil, err
		}
		frame, err := EncodeFrame(*group.TypeID, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, frame...)
	}
	return out, nil
}

func decodeExtensions(payload []byte, reg *registry.TypeRegistry) ([]runtime.Message, error) {
	count, ok, cursor, err := vlc.Decode(payload, 0)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, blinkerr.NewDecode(0, "extension count cannot be NULL")
	}
	out := make([]runtime.Message, 0, count)
	for i := int64(0); i < count; i++ {
		msg, next, err := decodeDynamicGroup(payload, cursor, reg, false)
		if err != nil {
			return nil, err
		}
		out = append(out, msg.(runtime.Message))
		cursor = next
	}
	return out, nil
}
