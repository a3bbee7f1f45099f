// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package native implements Blink's Native Binary codec: a fixed header
// (size, type id, extension offset), fixed-width field area with
// field-relative offsets into a trailing data area, inline strings for
// small fixed-capacity string(N) fields, and nested Native messages for
// dynamic groups, objects, and extensions.
package native

import (
	"encoding/binary"
	"math"

	"github.com/blinkprotocol/blink/internal/blinkerr"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

const headerSize = 12 // u64 typeId + u32 extOffset

// dataAreaBuilder accumulates variable-sized data past a field's fixed
// area and computes field-relative offsets into it, per spec.md's Design
// Notes recommendation for the Native codec's offset bookkeeping.
type dataAreaBuilder struct {
	buffer     []byte
	baseOffset int
}

// addData appends data to the area and returns the offset of its start,
// relative to fieldPosition.
func (b *dataAreaBuilder) addData(data []byte, fieldPosition int) uint32 {
	offset := b.baseOffset + len(b.buffer) - fieldPosition
	b.buffer = append(b.buffer, data...)
	return uint32(offset)
}

func putU32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func putU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// Encode renders msg as a complete Native Binary message, including its
// size preamble.
func Encode(msg runtime.Message, reg *registry.TypeRegistry) ([]byte, error) {
	group, err := reg.GetGroupByName(msg.TypeName)
	if err != nil {
		return nil, err
	}
	if group.TypeID == nil {
		return nil, blinkerr.NewEncode("group %s is missing a type id", group.Name)
	}

	fixedSize := headerSize
	for _, field := range group.AllFields() {
		if field.Optional {
			fixedSize++
		}
		size, err := fieldSize(field.TypeRef)
		if err != nil {
			return nil, err
		}
		fixedSize += size
	}

	data := &dataAreaBuilder{baseOffset: fixedSize}
	fieldsData, err := encodeGroupFields(group, msg.Fields, data, reg)
	if err != nil {
		return nil, err
	}

	var extOffset uint32
	if len(msg.Extensions) > 0 {
		extOffset = uint32(data.baseOffset + len(data.buffer) - 8)
		extData, err := encodeExtensions(msg.Extensions, reg)
		if err != nil {
			return nil, err
		}
		data.buffer = append(data.buffer, extData...)
	}

	body := append(putU64(uint64(*group.TypeID)), putU32(extOffset)...)
	body = append(body, fieldsData...)
	body = append(body, data.buffer...)
	return append(putU32(uint32(len(body))), body...), nil
}

// Decode reads a complete Native Binary message from buf starting at
// offset, returning the message and the offset of the byte following it.
func Decode(buf []byte, offset int, reg *registry.TypeRegistry) (runtime.Message, int, error) {
	if offset+4 > len(buf) {
		return runtime.Message{}, 0, blinkerr.NewDecode(offset, "truncated message: missing size preamble")
	}
	size := binary.LittleEndian.Uint32(buf[offset : offset+4])
	offset += 4
	if size < headerSize {
		return runtime.Message{}, 0, blinkerr.NewDecode(offset, "invalid size %d (minimum %d)", size, headerSize)
	}
	end := offset + int(size)
	if end > len(buf) {
		return runtime.Message{}, 0, blinkerr.NewDecode(offset, "truncated message: size %d exceeds buffer", size)
	}

	typeID := binary.LittleEndian.Uint64(buf[offset : offset+8])
	offset += 8

	extOffsetFieldPos := offset
	extOffset := binary.LittleEndian.Uint32(buf[offset : offset+4])
	offset += 4

	group, err := reg.GetGroupByID(int64(typeID))
	if err != nil {
		return runtime.Message{}, 0, err
	}

	fields, newOffset, err := decodeGroupFields(group, buf, offset, end, reg)
	if err != nil {
		return runtime.Message{}, 0, err
	}
	_ = newOffset

	var extensions []runtime.Message
	if extOffset > 0 {
		location := extOffsetFieldPos + int(extOffset)
		extensions, err = decodeExtensions(buf, location, end, reg)
		if err != nil {
			return runtime.Message{}, 0, err
		}
	}

	return runtime.NewMessage(group.Name, fields, extensions), end, nil
}

func encodeGroupFields(group *schema.GroupDef, values map[string]interface{}, data *dataAreaBuilder, reg *registry.TypeRegistry) ([]byte, error) {
	var out []byte
	for _, field := range group.AllFields() {
		value := values[field.Name]
		if value == nil && !field.Optional {
			return nil, blinkerr.NewEncode("missing required field %s", field.Name)
		}
		position := headerSize + len(out)
		encoded, err := encodeField(field.TypeRef, value, field.Optional, position, data, reg)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}
	return out, nil
}

func encodeField(typeRef schema.TypeRef, value interface{}, optional bool, position int, data *dataAreaBuilder, reg *registry.TypeRegistry) ([]byte, error) {
	if optional {
		if value == nil {
			size, err := fieldSize(typeRef)
			if err != nil {
				return nil, err
			}
			return append([]byte{0x00}, make([]byte, size)...), nil
		}
		encoded, err := encodeValue(typeRef, value, position+1, data, reg)
		if err != nil {
			return nil, err
		}
		return append([]byte{0x01}, encoded...), nil
	}
	return encodeValue(typeRef, value, position, data, reg)
}

func encodeValue(typeRef schema.TypeRef, value interface{}, position int, data *dataAreaBuilder, reg *registry.TypeRegistry) ([]byte, error) {
	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		return encodePrimitive(t.Primitive, value)
	case schema.BinaryType:
		return encodeBinary(t, value, position, data)
	case *schema.EnumType:
		var number int64
		switch v := value.(type) {
		case string:
			n, err := t.ToValue(v)
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
		return putU32(uint32(int32(number))), nil
	case schema.SequenceType:
		return encodeSequence(t, value, position, data, reg)
	case schema.StaticGroupRef:
		return encodeStaticGroup(t.Group, value, position, data, reg)
	case schema.DynamicGroupRef:
		return encodeDynamicGroup(value, position, data, reg)
	case schema.ObjectType:
		return encodeDynamicGroup(value, position, data, reg)
	default:
		return nil, blinkerr.NewEncode("unsupported type for Native format: %T", typeRef)
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
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, blinkerr.NewEncode("expected int-compatible value, got %T", value)
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

func encodePrimitive(kind schema.PrimitiveKind, value interface{}) ([]byte, error) {
	switch kind {
	case schema.Bool:
		b, _ := value.(bool)
		if b {
			return []byte{0x01}, nil
		}
		return []byte{0x00}, nil
	case schema.Decimal:
		exp, mant, err := decimalParts(value)
		if err != nil {
			return nil, err
		}
		out := []byte{byte(int8(exp))}
		return append(out, putU64(uint64(mant))...), nil
	case schema.F64:
		f, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		return putU64(math.Float64bits(f)), nil
	case schema.U8:
		v, err := toInt64(value)
		return []byte{byte(v)}, err
	case schema.I8:
		v, err := toInt64(value)
		return []byte{byte(int8(v))}, err
	case schema.U16:
		v, err := toInt64(value)
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(v))
		return buf, err
	case schema.I16:
		v, err := toInt64(value)
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
		return buf, err
	case schema.U32, schema.TimeOfDayMilli:
		v, err := toInt64(value)
		return putU32(uint32(v)), err
	case schema.I32, schema.Date:
		v, err := toInt64(value)
		return putU32(uint32(int32(v))), err
	case schema.U64, schema.TimeOfDayNano:
		v, err := toInt64(value)
		return putU64(uint64(v)), err
	case schema.I64, schema.MilliTime, schema.NanoTime:
		v, err := toInt64(value)
		return putU64(uint64(v)), err
	default:
		return nil, blinkerr.NewEncode("unsupported primitive kind: %s", kind)
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
	default:
		return 0, blinkerr.NewEncode("f64 expects a numeric value, got %T", value)
	}
}

func encodeBinary(binaryType schema.BinaryType, value interface{}, position int, data *dataAreaBuilder) ([]byte, error) {
	var raw []byte
	if s, ok := value.(string); ok {
		raw = []byte(s)
	} else if b, ok := value.([]byte); ok {
		raw = b
	} else {
		return nil, blinkerr.NewEncode("binary/string field expects string or []byte, got %T", value)
	}

	if binaryType.Kind == "fixed" {
		if len(raw) != binaryType.Size {
			return nil, blinkerr.NewEncode("fixed field requires exactly %d bytes", binaryType.Size)
		}
		return raw, nil
	}

	if binaryType.Kind == "string" && binaryType.Size >= 1 && binaryType.Size <= 255 {
		if len(raw) > binaryType.Size {
			return nil, blinkerr.NewEncode("string exceeds max size %d", binaryType.Size)
		}
		out := append([]byte{byte(len(raw))}, raw...)
		return append(out, make([]byte, binaryType.Size-len(raw))...), nil
	}

	withSize := append(putU32(uint32(len(raw))), raw...)
	offset := data.addData(withSize, position)
	return putU32(offset), nil
}

func encodeSequence(seq schema.SequenceType, value interface{}, position int, data *dataAreaBuilder, reg *registry.TypeRegistry) ([]byte, error) {
	items, ok := value.([]interface{})
	if !ok {
		return nil, blinkerr.NewEncode("sequence field expects []interface{}")
	}
	seqData := putU32(uint32(len(items)))

	itemSize, err := fieldSize(seq.ElementType)
	if err != nil {
		return nil, err
	}
	itemData := &dataAreaBuilder{baseOffset: 4 + len(items)*itemSize}
	for i, item := range items {
		itemPos := 4 + i*itemSize
		encoded, err := encodeValue(seq.ElementType, item, itemPos, itemData, reg)
		if err != nil {
			return nil, err
		}
		seqData = append(seqData, encoded...)
	}
	seqData = append(seqData, itemData.buffer...)

	offset := data.addData(seqData, position)
	return putU32(offset), nil
}

func encodeStaticGroup(group *schema.GroupDef, value interface{}, position int, data *dataAreaBuilder, reg *registry.TypeRegistry) ([]byte, error) {
	fields, err := asFieldMap(value)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, field := range group.AllFields() {
		fieldValue := fields[field.Name]
		fieldPos := position + len(out)
		encoded, err := encodeField(field.TypeRef, fieldValue, field.Optional, fieldPos, data, reg)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}
	return out, nil
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

func encodeDynamicGroup(value interface{}, position int, data *dataAreaBuilder, reg *registry.TypeRegistry) ([]byte, error) {
	msg, ok := value.(runtime.Message)
	if !ok {
		return nil, blinkerr.NewEncode("dynamic group expects a runtime.Message value")
	}
	encoded, err := Encode(msg, reg)
	if err != nil {
		return nil, err
	}
	offset := data.addData(encoded, position)
	return putU32(offset), nil
}

func encodeExtensions(extensions []runtime.Message, reg *registry.TypeRegistry) ([]byte, error) {
	out := putU32(uint32(len(extensions)))
	data := &dataAreaBuilder{baseOffset: 4 + len(extensions)*4}
	for i, ext := range extensions {
		position := 4 + i*4
		encoded, err := Encode(ext, reg)
		if err != nil {
			return nil, err
		}
		offset := data.addData(encoded, position)
		out = append(out, putU32(offset)...)
	}
	out = append(out, data.buffer...)
	return out, nil
}

func fieldSize(typeRef schema.TypeRef) (int, error) {
	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		switch t.Primitive {
		case schema.Bool, schema.U8, schema.I8:
			return 1, nil
		case schema.U16, schema.I16:
			return 2, nil
		case schema.U32, schema.I32, schema.Date, schema.TimeOfDayMilli:
			return 4, nil
		case schema.U64, schema.I64, schema.F64, schema.MilliTime, schema.NanoTime, schema.TimeOfDayNano:
			return 8, nil
		case schema.Decimal:
			return 9, nil
		default:
			return 0, blinkerr.NewEncode("unsupported primitive kind: %s", t.Primitive)
		}
	case schema.BinaryType:
		if t.Kind == "fixed" {
			return t.Size, nil
		}
		if t.Kind == "string" && t.Size >= 1 && t.Size <= 255 {
			return 1 + t.Size, nil
		}
		return 4, nil
	case *schema.EnumType:
		return 4, nil
	case schema.SequenceType, schema.DynamicGroupRef, schema.ObjectType:
		return 4, nil
	case schema.StaticGroupRef:
		total := 0
		for _, field := range t.Group.AllFields() {
			if field.Optional {
				total++
			}
			size, err := fieldSize(field.TypeRef)
			if err != nil {
				return 0, err
			}
			total += size
		}
		return total, nil
	default:
		return 0, blinkerr.NewEncode("unsupported type for Native format: %T", typeRef)
	}
}

func decodeGroupFields(group *schema.GroupDef, buf []byte, offset, end int, reg *registry.TypeRegistry) (map[string]interface{}, int, error) {
	fields := make(map[string]interface{})
	cursor := offset
	for _, field := range group.AllFields() {
		value, next, err := decodeField(field.TypeRef, buf, cursor, end, field.Optional, reg)
		if err != nil {
			return nil, 0, err
		}
		fields[field.Name] = value
		cursor = next
	}
	return fields, cursor, nil
}

func decodeField(typeRef schema.TypeRef, buf []byte, offset, end int, optional bool, reg *registry.TypeRegistry) (interface{}, int, error) {
	if optional {
		if offset >= end {
			return nil, 0, blinkerr.NewDecode(offset, "truncated optional field")
		}
		presence := buf[offset]
		offset++
		if presence == 0x00 {
			size, err := fieldSize(typeRef)
			if err != nil {
				return nil, 0, err
			}
			return nil, offset + size, nil
		}
	}
	return decodeValue(typeRef, buf, offset, end, reg)
}

func decodeValue(typeRef schema.TypeRef, buf []byte, offset, end int, reg *registry.TypeRegistry) (interface{}, int, error) {
	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		return decodePrimitive(t.Primitive, buf, offset)
	case schema.BinaryType:
		return decodeBinary(t, buf, offset, end)
	case *schema.EnumType:
		value := int32(binary.LittleEndian.Uint32(buf[offset : offset+4]))
		symbol, err := t.ToSymbol(int64(value))
		if err != nil {
			return nil, 0, err
		}
		return symbol, offset + 4, nil
	case schema.SequenceType:
		return decodeSequence(t, buf, offset, end, reg)
	case schema.StaticGroupRef:
		fields, next, err := decodeGroupFields(t.Group, buf, offset, end, reg)
		if err != nil {
			return nil, 0, err
		}
		return runtime.NewStaticGroupValue(fields), next, nil
	case schema.DynamicGroupRef:
		return decodeDynamicGroup(buf, offset, end, reg)
	case schema.ObjectType:
		return decodeDynamicGroup(buf, offset, end, reg)
	default:
		return nil, 0, blinkerr.NewDecode(offset, "unsupported type %T", typeRef)
	}
}

func decodePrimitive(kind schema.PrimitiveKind, buf []byte, offset int) (interface{}, int, error) {
	switch kind {
	case schema.Bool:
		return buf[offset] != 0, offset + 1, nil
	case schema.Decimal:
		exp := int8(buf[offset])
		mant := int64(binary.LittleEndian.Uint64(buf[offset+1 : offset+9]))
		return runtime.DecimalValue{Exponent: int64(exp), Mantissa: mant}, offset + 9, nil
	case schema.F64:
		bits := binary.LittleEndian.Uint64(buf[offset : offset+8])
		return math.Float64frombits(bits), offset + 8, nil
	case schema.U8:
		return int64(buf[offset]), offset + 1, nil
	case schema.I8:
		return int64(int8(buf[offset])), offset + 1, nil
	case schema.U16:
		return int64(binary.LittleEndian.Uint16(buf[offset : offset+2])), offset + 2, nil
	case schema.I16:
		return int64(int16(binary.LittleEndian.Uint16(buf[offset : offset+2]))), offset + 2, nil
	case schema.U32, schema.TimeOfDayMilli:
		return int64(binary.LittleEndian.Uint32(buf[offset : offset+4])), offset + 4, nil
	case schema.I32, schema.Date:
		return int64(int32(binary.LittleEndian.Uint32(buf[offset : offset+4]))), offset + 4, nil
	case schema.U64, schema.TimeOfDayNano:
		return int64(binary.LittleEndian.Uint64(buf[offset : offset+8])), offset + 8, nil
	case schema.I64, schema.MilliTime, schema.NanoTime:
		return int64(binary.LittleEndian.Uint64(buf[offset : offset+8])), offset + 8, nil
	default:
		return nil, 0, blinkerr.NewDecode(offset, "unsupported primitive kind: %s", kind)
	}
}

func decodeBinary(binaryType schema.BinaryType, buf []byte, offset, end int) (interface{}, int, error) {
	if binaryType.Kind == "fixed" {
		size := binaryType.Size
		data := append([]byte(nil), buf[offset:offset+size]...)
		return data, offset + size, nil
	}

	if binaryType.Kind == "string" && binaryType.Size >= 1 && binaryType.Size <= 255 {
		sizeByte := int(buf[offset])
		capacity := binaryType.Size
		data := buf[offset+1 : offset+1+sizeByte]
		return string(data), offset + 1 + capacity, nil
	}

	relOffset := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
	dataLocation := offset + relOffset
	if dataLocation+4 > end {
		return nil, 0, blinkerr.NewDecode(offset, "invalid offset for binary data")
	}
	dataSize := int(binary.LittleEndian.Uint32(buf[dataLocation : dataLocation+4]))
	data := buf[dataLocation+4 : dataLocation+4+dataSize]

	if binaryType.Kind == "string" {
		return string(data), offset + 4, nil
	}
	return append([]byte(nil), data...), offset + 4, nil
}

func decodeSequence(seq schema.SequenceType, buf []byte, offset, end int, reg *registry.TypeRegistry) (interface{}, int, error) {
	relOffset := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
	dataLocation := offset + relOffset
	count := int(binary.LittleEndian.Uint32(buf[dataLocation : dataLocation+4]))
	cursor := dataLocation + 4

	items := make([]interface{}, 0, count)
	for i := 0; i < count; i++ {
		item, next, err := decodeValue(seq.ElementType, buf, cursor, end, reg)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
		cursor = next
	}
	return items, offset + 4, nil
}

func decodeDynamicGroup(buf []byte, offset, end int, reg *registry.TypeRegistry) (interface{}, int, error) {
	relOffset := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
	dataLocation := offset + relOffset
	msg, _, err := Decode(buf, dataLocation, reg)
	if err != nil {
		return nil, 0, err
	}
	return msg, offset + 4, nil
}

func decodeExtensions(buf []byte, offset, end int, reg *registry.TypeRegistry) ([]runtime.Message, error) {
	if offset+4 > end {
		return nil, nil
	}
	count := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
	cursor := offset + 4

	extensions := make([]runtime.Message, 0, count)
	for i := 0; i < count; i++ {
		value, next, err := decodeDynamicGroup(buf, cursor, end, reg)
		if err != nil {
			return nil, err
		}
		extensions = append(extensions, value.(runtime.Message))
		cursor = next
	}
	return extensions, nil
}
