// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jsonfmt implements Blink's JSON mapping: a "$type"/"$extension"
// message envelope, a numeric-vs-string threshold at 1e15 for integers
// and decimal mantissas, quoted NaN/Inf/-Inf tokens, integer-unit
// time/date primitives encoded as strings, and binary fields rendered as
// UTF-8 text when valid or a hex-pair array otherwise.
package jsonfmt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/blinkprotocol/blink/internal/blinkerr"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

// numericThreshold is the absolute-value boundary above which integers
// and decimal mantissas are serialized as strings instead of JSON numbers,
// to avoid floating-point precision loss in JSON consumers.
const numericThreshold = 1e15

func isSafeJSONNumber(value int64) bool {
	return math.Abs(float64(value)) < numericThreshold
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

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
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

func formatValue(value interface{}, typeRef schema.TypeRef, reg *registry.TypeRegistry, defaultNamespace string) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		switch t.Primitive {
		case schema.Bool:
			b, _ := value.(bool)
			return b, nil
		case schema.Decimal:
			exponent, mantissa, err := decimalParts(value)
			if err != nil {
				return nil, err
			}
			if isSafeJSONNumber(mantissa) {
				if exponent >= 0 {
					product := mantissa
					for i := int64(0); i < exponent; i++ {
						product *= 10
					}
					return product, nil
				}
				return float64(mantissa) * math.Pow(10, float64(exponent)), nil
			}
			return fmt.Sprintf("%de%d", mantissa, exponent), nil
		case schema.F64:
			f, err := toFloat64(value)
			if err != nil {
				return nil, err
			}
			if math.IsNaN(f) {
				return "NaN", nil
			}
			if math.IsInf(f, 1) {
				return "Inf", nil
			}
			if math.IsInf(f, -1) {
				return "-Inf", nil
			}
			return f, nil
		default:
			if t.Primitive.IsTimeLike() {
				v, err := toInt64(value)
				if err != nil {
					return nil, err
				}
				return strconv.FormatInt(v, 10), nil
			}
			v, err := toInt64(value)
			if err != nil {
				return nil, err
			}
			if isSafeJSONNumber(v) {
				return v, nil
			}
			return strconv.FormatInt(v, 10), nil
		}

	case schema.BinaryType:
		if t.Kind == "string" {
			s, ok := value.(string)
			if !ok {
				return nil, blinkerr.NewEncode("string field expects a string value")
			}
			return s, nil
		}
		data, ok := value.([]byte)
		if !ok {
			return nil, blinkerr.NewEncode("binary field expects a []byte value")
		}
		if utf8.Valid(data) {
			return string(data), nil
		}
		hexes := make([]string, len(data))
		for i, b := range data {
			hexes[i] = fmt.Sprintf("%02x", b)
		}
		return hexes, nil

	case *schema.EnumType:
		return fmt.Sprint(value), nil

	case schema.SequenceType:
		items, ok := value.([]interface{})
		if !ok {
			return nil, blinkerr.NewEncode("sequence field expects []interface{}")
		}
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			formatted, err := formatValue(item, t.ElementType, reg, defaultNamespace)
			if err != nil {
				return nil, err
			}
			out = append(out, formatted)
		}
		return out, nil

	case schema.StaticGroupRef:
		fields, err := asFieldMap(value)
		if err != nil {
			return nil, err
		}
		out := make(map[string]interface{})
		for _, field := range t.Group.AllFields() {
			fv, present := fields[field.Name]
			if !present || fv == nil {
				continue
			}
			formatted, err := formatValue(fv, field.TypeRef, reg, defaultNamespace)
			if err != nil {
				return nil, err
			}
			out[field.Name] = formatted
		}
		return out, nil

	case schema.DynamicGroupRef, schema.ObjectType:
		msg, err := asMessage(value, typeRef, defaultNamespace)
		if err != nil {
			return nil, err
		}
		return formatMessage(msg, reg)

	default:
		return nil, blinkerr.NewEncode("unsupported type for JSON format: %T", typeRef)
	}
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

func asMessage(value interface{}, typeRef schema.TypeRef, defaultNamespace string) (runtime.Message, error) {
	switch v := value.(type) {
	case runtime.Message:
		return v, nil
	case map[string]interface{}:
		var qname schema.QName
		if typeHint, ok := v["$type"]; ok {
			qname = schema.ParseQName(fmt.Sprint(typeHint), defaultNamespace)
		} else if t, ok := typeRef.(schema.DynamicGroupRef); ok {
			qname = t.Group.Name
		} else {
			return runtime.Message{}, blinkerr.NewEncode("dynamic group value requires $type")
		}
		fields := make(map[string]interface{}, len(v))
		for k, fv := range v {
			if k != "$type" {
				fields[k] = fv
			}
		}
		return runtime.NewMessage(qname, fields, nil), nil
	default:
		return runtime.Message{}, blinkerr.NewEncode("dynamic group values must be a map or runtime.Message")
	}
}

func formatMessage(msg runtime.Message, reg *registry.TypeRegistry) (map[string]interface{}, error) {
	group, err := reg.GetGroupByName(msg.TypeName)
	if err != nil {
		return nil, err
	}
	result := map[string]interface{}{"$type": group.Name.String()}
	for _, field := range group.AllFields() {
		value := msg.Fields[field.Name]
		if value == nil {
			continue
		}
		formatted, err := formatValue(value, field.TypeRef, reg, group.Name.Namespace)
		if err != nil {
			return nil, err
		}
		result[field.Name] = formatted
	}
	if len(msg.Extensions) > 0 {
		exts := make([]interface{}, 0, len(msg.Extensions))
		for _, ext := range msg.Extensions {
			formatted, err := formatMessage(ext, reg)
			if err != nil {
				return nil, err
			}
			exts = append(exts, formatted)
		}
		result["$extension"] = exts
	}
	return result, nil
}

// Encode renders msg as an indented JSON object.
func Encode(msg runtime.Message, reg *registry.TypeRegistry) ([]byte, error) {
	data, err := formatMessage(msg, reg)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(data, "", "  ")
}

// EncodeStream renders messages as an indented JSON array.
func EncodeStream(messages []runtime.Message, reg *registry.TypeRegistry) ([]byte, error) {
	out := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		data, err := formatMessage(msg, reg)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return json.MarshalIndent(out, "", "  ")
}

func parseDecimalNumber(numStr string) (runtime.DecimalValue, error) {
	lower := strings.ToLower(numStr)
	if idx := strings.IndexByte(lower, 'e'); idx >= 0 {
		mantissaF, err := strconv.ParseFloat(numStr[:idx], 64)
		if err != nil {
			return runtime.DecimalValue{}, blinkerr.NewDecode(0, "invalid decimal mantissa: %s", numStr)
		}
		exponent, err := strconv.ParseInt(numStr[idx+1:], 10, 64)
		if err != nil {
			return runtime.DecimalValue{}, blinkerr.NewDecode(0, "invalid decimal exponent: %s", numStr)
		}
		for mantissaF != math.Trunc(mantissaF) && mantissaF != 0 {
			mantissaF *= 10
			exponent--
		}
		return runtime.DecimalValue{Exponent: exponent, Mantissa: int64(mantissaF)}, nil
	}
	if idx := strings.IndexByte(numStr, '.'); idx >= 0 {
		intPart, fracPart := numStr[:idx], numStr[idx+1:]
		mantissa, err := strconv.ParseInt(intPart+fracPart, 10, 64)
		if err != nil {
			return runtime.DecimalValue{}, blinkerr.NewDecode(0, "invalid decimal value: %s", numStr)
		}
		return runtime.DecimalValue{Exponent: -int64(len(fracPart)), Mantissa: mantissa}, nil
	}
	mantissa, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return runtime.DecimalValue{}, blinkerr.NewDecode(0, "invalid decimal value: %s", numStr)
	}
	return runtime.DecimalValue{Exponent: 0, Mantissa: mantissa}, nil
}

func parseValue(raw interface{}, typeRef schema.TypeRef, reg *registry.TypeRegistry, defaultNamespace string) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}

	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		switch t.Primitive {
		case schema.Bool:
			switch v := raw.(type) {
			case bool:
				return v, nil
			case string:
				switch strings.ToLower(v) {
				case "true":
					return true, nil
				case "false":
					return false, nil
				}
			}
			return nil, blinkerr.NewDecode(0, "invalid boolean value: %v", raw)
		case schema.Decimal:
			switch v := raw.(type) {
			case json.Number:
				return parseDecimalNumber(string(v))
			case float64:
				return parseDecimalNumber(strconv.FormatFloat(v, 'g', -1, 64))
			case string:
				idx := strings.IndexByte(v, 'e')
				if idx < 0 {
					return nil, blinkerr.NewDecode(0, "invalid decimal format: %s", v)
				}
				mantissa, err := strconv.ParseInt(v[:idx], 10, 64)
				if err != nil {
					return nil, blinkerr.NewDecode(0, "invalid decimal mantissa: %s", v)
				}
				exponent, err := strconv.ParseInt(v[idx+1:], 10, 64)
				if err != nil {
					return nil, blinkerr.NewDecode(0, "invalid decimal exponent: %s", v)
				}
				return runtime.DecimalValue{Exponent: exponent, Mantissa: mantissa}, nil
			case map[string]interface{}:
				exponent, eok := v["exponent"]
				mantissa, mok := v["mantissa"]
				if eok && mok {
					e, err1 := toInt64(numberLike(exponent))
					m, err2 := toInt64(numberLike(mantissa))
					if err1 != nil || err2 != nil {
						return nil, blinkerr.NewDecode(0, "invalid decimal object: %v", raw)
					}
					return runtime.DecimalValue{Exponent: e, Mantissa: m}, nil
				}
			}
			return nil, blinkerr.NewDecode(0, "invalid decimal value: %v", raw)
		case schema.F64:
			if s, ok := raw.(string); ok {
				switch s {
				case "NaN":
					return math.NaN(), nil
				case "Inf":
					return math.Inf(1), nil
				case "-Inf":
					return math.Inf(-1), nil
				}
				f, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, blinkerr.NewDecode(0, "invalid float value: %s", s)
				}
				return f, nil
			}
			return jsonNumberToFloat(raw)
		default:
			if t.Primitive.IsTimeLike() {
				switch v := raw.(type) {
				case string:
					n, err := strconv.ParseInt(v, 10, 64)
					if err != nil {
						return nil, blinkerr.NewDecode(0, "invalid time/date value: %s", v)
					}
					return n, nil
				default:
					return jsonNumberToInt(raw)
				}
			}
			switch v := raw.(type) {
			case string:
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return nil, blinkerr.NewDecode(0, "invalid integer value: %s", v)
				}
				return n, nil
			default:
				return jsonNumberToInt(v)
			}
		}

	case schema.BinaryType:
		if t.Kind == "string" {
			return fmt.Sprint(raw), nil
		}
		switch v := raw.(type) {
		case string:
			return []byte(v), nil
		case []interface{}:
			var out []byte
			for _, entry := range v {
				s, _ := entry.(string)
				for _, hexPair := range strings.Fields(s) {
					b, err := strconv.ParseUint(hexPair, 16, 8)
					if err != nil {
						return nil, blinkerr.NewDecode(0, "invalid hex byte %q", hexPair)
					}
					out = append(out, byte(b))
				}
			}
			return out, nil
		default:
			return nil, blinkerr.NewDecode(0, "invalid binary value: %v", raw)
		}

	case *schema.EnumType:
		return fmt.Sprint(raw), nil

	case schema.SequenceType:
		items, ok := raw.([]interface{})
		if !ok {
			return nil, blinkerr.NewDecode(0, "sequence values must be a JSON array")
		}
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			parsed, err := parseValue(item, t.ElementType, reg, defaultNamespace)
			if err != nil {
				return nil, err
			}
			out = append(out, parsed)
		}
		return out, nil

	case schema.StaticGroupRef:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, blinkerr.NewDecode(0, "static group values must be a JSON object")
		}
		fields := make(map[string]interface{})
		for _, field := range t.Group.AllFields() {
			fv, present := obj[field.Name]
			if !present {
				continue
			}
			parsed, err := parseValue(fv, field.TypeRef, reg, defaultNamespace)
			if err != nil {
				return nil, err
			}
			fields[field.Name] = parsed
		}
		return runtime.NewStaticGroupValue(fields), nil

	case schema.DynamicGroupRef, schema.ObjectType:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, blinkerr.NewDecode(0, "dynamic group values must be a JSON object")
		}
		ns := defaultNamespace
		if t, ok := typeRef.(schema.DynamicGroupRef); ok && ns == "" {
			ns = t.Group.Name.Namespace
		}
		return parseMessage(obj, reg, ns)

	default:
		return nil, blinkerr.NewDecode(0, "unsupported type for JSON parsing: %T", typeRef)
	}
}

func numberLike(v interface{}) interface{} {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err == nil {
			return i
		}
	case float64:
		return int64(n)
	}
	return v
}

func jsonNumberToInt(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		return v.Int64()
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, blinkerr.NewDecode(0, "invalid integer value: %v", raw)
	}
}

func jsonNumberToFloat(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case json.Number:
		return v.Float64()
	case float64:
		return v, nil
	default:
		return 0, blinkerr.NewDecode(0, "invalid float value: %v", raw)
	}
}

func parseMessage(data map[string]interface{}, reg *registry.TypeRegistry, defaultNamespace string) (runtime.Message, error) {
	typeName, ok := data["$type"]
	if !ok {
		return runtime.Message{}, blinkerr.NewDecode(0, "JSON message must include $type")
	}
	qname := schema.ParseQName(fmt.Sprint(typeName), defaultNamespace)
	group, err := reg.GetGroupByName(qname)
	if err != nil {
		return runtime.Message{}, err
	}

	fields := make(map[string]interface{})
	for _, field := range group.AllFields() {
		raw, present := data[field.Name]
		if !present {
			continue
		}
		parsed, err := parseValue(raw, field.TypeRef, reg, group.Name.Namespace)
		if err != nil {
			return runtime.Message{}, err
		}
		fields[field.Name] = parsed
	}

	var extensions []runtime.Message
	if extRaw, ok := data["$extension"]; ok {
		extList, ok := extRaw.([]interface{})
		if !ok {
			return runtime.Message{}, blinkerr.NewDecode(0, "$extension must be an array")
		}
		for _, item := range extList {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return runtime.Message{}, blinkerr.NewDecode(0, "$extension entries must be objects")
			}
			ext, err := parseMessage(obj, reg, group.Name.Namespace)
			if err != nil {
				return runtime.Message{}, err
			}
			extensions = append(extensions, ext)
		}
	}

	return runtime.NewMessage(qname, fields, extensions), nil
}

func decodeInterface(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, blinkerr.NewDecode(0, "invalid JSON: %s", err)
	}
	return raw, nil
}

// Decode parses a single JSON message object.
func Decode(data []byte, reg *registry.TypeRegistry) (runtime.Message, error) {
	raw, err := decodeInterface(data)
	if err != nil {
		return runtime.Message{}, err
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return runtime.Message{}, blinkerr.NewDecode(0, "JSON message must be an object")
	}
	return parseMessage(obj, reg, "")
}

// DecodeStream parses a JSON array of message objects.
func DecodeStream(data []byte, reg *registry.TypeRegistry) ([]runtime.Message, error) {
	raw, err := decodeInterface(data)
	if err != nil {
		return nil, err
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, blinkerr.NewDecode(0, "JSON stream must be an array")
	}
	messages := make([]runtime.Message, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, blinkerr.NewDecode(0, "JSON stream entries must be objects")
		}
		msg, err := parseMessage(obj, reg, "")
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
