// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tag implements Blink's human-readable Tag text codec: one
// message per line in the form "@QName|field=value|...|[ext1;ext2;...]",
// with reserved-character escaping and depth-aware splitting on '|', ';',
// and ','.
package tag

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/blinkprotocol/blink/internal/blinkerr"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

const reservedChars = "|[]{};#\\"

func isReserved(b byte) bool {
	return strings.IndexByte(reservedChars, b) >= 0
}

func escapeByte(b byte) string {
	switch b {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	}
	if isReserved(b) {
		return "\\" + string(b)
	}
	if b < 32 || b > 126 {
		return fmt.Sprintf(`\x%02x`, b)
	}
	return string(b)
}

func escapeString(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		out.WriteString(escapeByte(s[i]))
	}
	return out.String()
}

func unescapeString(s string) (string, error) {
	var buf []byte
	i := 0
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				buf = append(buf, '\n')
				i += 2
			case 'r':
				buf = append(buf, '\r')
				i += 2
			case 't':
				buf = append(buf, '\t')
				i += 2
			case 'x':
				if i+4 > len(s) {
					return "", blinkerr.NewDecode(i, "truncated \\x escape")
				}
				v, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
				if err != nil {
					return "", blinkerr.NewDecode(i, "invalid \\x escape: %s", err)
				}
				buf = append(buf, byte(v))
				i += 4
			case 'u':
				if i+6 > len(s) {
					return "", blinkerr.NewDecode(i, "truncated \\u escape")
				}
				v, err := strconv.ParseUint(s[i+2:i+6], 16, 32)
				if err != nil {
					return "", blinkerr.NewDecode(i, "invalid \\u escape: %s", err)
				}
				buf = utf8.AppendRune(buf, rune(v))
				i += 6
			case 'U':
				if i+10 > len(s) {
					return "", blinkerr.NewDecode(i, "truncated \\U escape")
				}
				v, err := strconv.ParseUint(s[i+2:i+10], 16, 32)
				if err != nil {
					return "", blinkerr.NewDecode(i, "invalid \\U escape: %s", err)
				}
				buf = utf8.AppendRune(buf, rune(v))
				i += 10
			default:
				buf = append(buf, s[i+1])
				i += 2
			}
			continue
		}
		buf = append(buf, s[i])
		i++
	}
	return string(buf), nil
}

func escapeBinary(data []byte) string {
	var parts []string
	for _, b := range data {
		parts = append(parts, fmt.Sprintf("%02x", b))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func unescapeBinary(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, blinkerr.NewDecode(0, "invalid binary format: %s", s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, nil
	}
	parts := strings.Fields(inner)
	out := make([]byte, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return nil, blinkerr.NewDecode(0, "invalid hex byte %q", part)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// splitTopLevel splits s on sep, respecting nested '{...}' and '[...]'
// spans and backslash escapes. Used for top-level parts ('|'), sequence
// elements and extension lists (';'), and static group field pairs (',').
func splitTopLevel(s string, sep byte) []string {
	var result []string
	var current []byte
	depth := 0
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			current = append(current, c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			current = append(current, c)
			escaped = true
		case '{', '[':
			current = append(current, c)
			depth++
		case '}', ']':
			current = append(current, c)
			if depth > 0 {
				depth--
			}
		default:
			if c == sep && depth == 0 {
				result = append(result, string(current))
				current = current[:0]
			} else {
				current = append(current, c)
			}
		}
	}
	if len(current) > 0 || len(result) > 0 {
		result = append(result, string(current))
	}
	return result
}

func findField(group *schema.GroupDef, name string) *schema.FieldDef {
	fields := group.AllFields()
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i]
		}
	}
	return nil
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

func formatValue(value interface{}, typeRef schema.TypeRef, reg *registry.TypeRegistry, defaultNamespace string) (string, error) {
	if value == nil {
		return "", blinkerr.NewEncode("cannot format a nil value in Tag format")
	}

	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		switch t.Primitive {
		case schema.Bool:
			b, _ := value.(bool)
			if b {
				return "Y", nil
			}
			return "N", nil
		case schema.Decimal:
			exp, mant, err := decimalParts(value)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%de%d", mant, exp), nil
		default:
			v, err := toInt64(value)
			if err != nil {
				return "", err
			}
			return strconv.FormatInt(v, 10), nil
		}

	case schema.BinaryType:
		if t.Kind == "string" {
			s, ok := value.(string)
			if !ok {
				return "", blinkerr.NewEncode("string field expects a string value")
			}
			return escapeString(s), nil
		}
		b, ok := value.([]byte)
		if !ok {
			return "", blinkerr.NewEncode("binary field expects a []byte value")
		}
		return escapeBinary(b), nil

	case *schema.EnumType:
		s, ok := value.(string)
		if !ok {
			return "", blinkerr.NewEncode("enum field expects a symbol string")
		}
		return s, nil

	case schema.SequenceType:
		items, ok := value.([]interface{})
		if !ok {
			return "", blinkerr.NewEncode("sequence field expects []interface{}")
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			part, err := formatValue(item, t.ElementType, reg, defaultNamespace)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "[" + strings.Join(parts, ";") + "]", nil

	case schema.DynamicGroupRef, schema.ObjectType:
		msg, err := asMessage(value, typeRef, defaultNamespace)
		if err != nil {
			return "", err
		}
		body, err := formatMessage(msg, reg)
		if err != nil {
			return "", err
		}
		return "{" + body + "}", nil

	case schema.StaticGroupRef:
		fields, err := asFieldMap(value)
		if err != nil {
			return "", err
		}
		var parts []string
		for _, field := range t.Group.AllFields() {
			fv, present := fields[field.Name]
			if !present || fv == nil {
				continue
			}
			part, err := formatValue(fv, field.TypeRef, reg, defaultNamespace)
			if err != nil {
				return "", err
			}
			parts = append(parts, field.Name+"="+part)
		}
		return "{" + strings.Join(parts, ",") + "}", nil

	default:
		return "", blinkerr.NewEncode("unsupported type for Tag format: %T", typeRef)
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
		} else {
			switch t := typeRef.(type) {
			case schema.DynamicGroupRef:
				qname = t.Group.Name
			default:
				return runtime.Message{}, blinkerr.NewEncode("dynamic group value requires $type")
			}
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

func formatMessage(msg runtime.Message, reg *registry.TypeRegistry) (string, error) {
	group, err := reg.GetGroupByName(msg.TypeName)
	if err != nil {
		return "", err
	}
	parts := []string{"@" + group.Name.String()}
	for _, field := range group.AllFields() {
		value := msg.Fields[field.Name]
		if value == nil {
			continue
		}
		fieldStr, err := formatValue(value, field.TypeRef, reg, group.Name.Namespace)
		if err != nil {
			return "", err
		}
		parts = append(parts, field.Name+"="+fieldStr)
	}
	if len(msg.Extensions) > 0 {
		extParts := make([]string, 0, len(msg.Extensions))
		for _, ext := range msg.Extensions {
			extStr, err := formatMessage(ext, reg)
			if err != nil {
				return "", err
			}
			extParts = append(extParts, extStr)
		}
		parts = append(parts, "["+strings.Join(extParts, ";")+"]")
	}
	return strings.Join(parts, "|"), nil
}

// Encode renders msg as a single Tag format line.
func Encode(msg runtime.Message, reg *registry.TypeRegistry) (string, error) {
	return formatMessage(msg, reg)
}

// EncodeStream renders messages as newline-separated Tag format lines.
func EncodeStream(messages []runtime.Message, reg *registry.TypeRegistry) (string, error) {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		line, err := Encode(msg, reg)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func parseValue(s string, typeRef schema.TypeRef, reg *registry.TypeRegistry, defaultNamespace string) (interface{}, error) {
	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		switch t.Primitive {
		case schema.Bool:
			switch s {
			case "Y":
				return true, nil
			case "N":
				return false, nil
			default:
				return nil, blinkerr.NewDecode(0, "invalid boolean value: %s", s)
			}
		case schema.Decimal:
			idx := strings.LastIndexByte(s, 'e')
			if idx < 0 {
				return nil, blinkerr.NewDecode(0, "invalid decimal format: %s", s)
			}
			mantissa, err := strconv.ParseInt(s[:idx], 10, 64)
			if err != nil {
				return nil, blinkerr.NewDecode(0, "invalid decimal mantissa: %s", s)
			}
			exponent, err := strconv.ParseInt(s[idx+1:], 10, 64)
			if err != nil {
				return nil, blinkerr.NewDecode(0, "invalid decimal exponent: %s", s)
			}
			return runtime.DecimalValue{Exponent: exponent, Mantissa: mantissa}, nil
		default:
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, blinkerr.NewDecode(0, "invalid integer value: %s", s)
			}
			return v, nil
		}

	case schema.BinaryType:
		if t.Kind == "string" {
			return unescapeString(s)
		}
		return unescapeBinary(s)

	case *schema.EnumType:
		return s, nil

	case schema.SequenceType:
		if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
			return nil, blinkerr.NewDecode(0, "invalid sequence format: %s", s)
		}
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []interface{}{}, nil
		}
		parts := splitTopLevel(inner, ';')
		items := make([]interface{}, 0, len(parts))
		for _, part := range parts {
			item, err := parseValue(strings.TrimSpace(part), t.ElementType, reg, defaultNamespace)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil

	case schema.StaticGroupRef:
		if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
			return nil, blinkerr.NewDecode(0, "invalid static group format: %s", s)
		}
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return runtime.NewStaticGroupValue(nil), nil
		}
		fields := make(map[string]interface{})
		for _, pair := range splitTopLevel(inner, ',') {
			name, value, err := parseFieldPair(pair)
			if err != nil {
				return nil, err
			}
			fieldDef := findField(t.Group, name)
			if fieldDef == nil {
				continue
			}
			parsed, err := parseValue(value, fieldDef.TypeRef, reg, defaultNamespace)
			if err != nil {
				return nil, err
			}
			fields[name] = parsed
		}
		return runtime.NewStaticGroupValue(fields), nil

	case schema.DynamicGroupRef, schema.ObjectType:
		if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
			return nil, blinkerr.NewDecode(0, "invalid dynamic group format: %s", s)
		}
		return Decode(s[1:len(s)-1], reg)

	default:
		return nil, blinkerr.NewDecode(0, "unsupported type for Tag parsing: %T", typeRef)
	}
}

func parseFieldPair(pair string) (name, value string, err error) {
	idx := strings.IndexByte(pair, '=')
	if idx < 0 {
		return "", "", blinkerr.NewDecode(0, "invalid field pair: %s", pair)
	}
	return strings.TrimSpace(pair[:idx]), strings.TrimSpace(pair[idx+1:]), nil
}

// Decode parses a single Tag format line into a message.
func Decode(s string, reg *registry.TypeRegistry) (runtime.Message, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "@") {
		return runtime.Message{}, blinkerr.NewDecode(0, "invalid Tag format: missing @ prefix")
	}

	parts := splitTopLevel(s[1:], '|')
	if len(parts) == 0 {
		return runtime.Message{}, blinkerr.NewDecode(0, "invalid Tag format: no type specified")
	}

	qname := schema.ParseQName(parts[0], "")
	group, err := reg.GetGroupByName(qname)
	if err != nil {
		return runtime.Message{}, err
	}

	fields := make(map[string]interface{})
	var extensions []runtime.Message

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "[") && strings.HasSuffix(part, "]") {
			inner := strings.TrimSpace(part[1 : len(part)-1])
			if inner != "" {
				for _, extStr := range splitTopLevel(inner, ';') {
					ext, err := Decode(strings.TrimSpace(extStr), reg)
					if err != nil {
						return runtime.Message{}, err
					}
					extensions = append(extensions, ext)
				}
			}
			continue
		}
		name, value, err := parseFieldPair(part)
		if err != nil {
			return runtime.Message{}, err
		}
		fieldDef := findField(group, name)
		if fieldDef == nil {
			continue
		}
		parsed, err := parseValue(value, fieldDef.TypeRef, reg, group.Name.Namespace)
		if err != nil {
			return runtime.Message{}, err
		}
		fields[name] = parsed
	}

	return runtime.NewMessage(group.Name, fields, extensions), nil
}

// DecodeStream parses newline-separated Tag format lines, skipping blank
// lines and lines beginning with '#'.
func DecodeStream(s string, reg *registry.TypeRegistry) ([]runtime.Message, error) {
	var messages []runtime.Message
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		msg, err := Decode(line, reg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
