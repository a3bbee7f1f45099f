// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xmlfmt implements Blink's XML mapping: an element-per-field
// message with its local name placed in the Blink namespace, static
// groups inlined as direct child elements, sequences wrapped in a field
// element with "item" children, binary fields written as text when they
// are valid UTF-8 with no control characters other than tab, LF and CR,
// and otherwise hex-encoded and marked binary="yes", and
// extensions nested under a single "extension" element in the Namespace
// XML namespace, declared as that element's default namespace; no
// "blink:" prefix is written.
package xmlfmt

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/blinkprotocol/blink/internal/blinkerr"
	"github.com/blinkprotocol/blink/registry"
	"github.com/blinkprotocol/blink/runtime"
	"github.com/blinkprotocol/blink/schema"
)

// Namespace is the XML namespace URI of the extension wrapper element.
// Message elements are qualified with their group's Blink namespace name
// instead.
const Namespace = "http://blinkprotocol.org/ns/blink"

type elementNode struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Children []*elementNode
}

func (e *elementNode) attr(local string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
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

// formatScalar renders a non-structural value's element text, and reports
// whether a binary="yes" attribute is required.
func formatScalar(value interface{}, typeRef schema.TypeRef) (string, bool, error) {
	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		switch t.Primitive {
		case schema.Bool:
			b, _ := value.(bool)
			if b {
				return "true", false, nil
			}
			return "false", false, nil
		case schema.Decimal:
			exp, mant, err := decimalParts(value)
			if err != nil {
				return "", false, err
			}
			return fmt.Sprintf("%de%d", mant, exp), false, nil
		default:
			v, err := toInt64(value)
			if err != nil {
				return "", false, err
			}
			return strconv.FormatInt(v, 10), false, nil
		}
	case schema.BinaryType:
		if t.Kind == "string" {
			s, ok := value.(string)
			if !ok {
				return "", false, blinkerr.NewEncode("string field expects a string value")
			}
			return s, false, nil
		}
		data, ok := value.([]byte)
		if !ok {
			return "", false, blinkerr.NewEncode("binary field expects a []byte value")
		}
		if isXMLSafeText(data) {
			return string(data), false, nil
		}
		return hex.EncodeToString(data), true, nil
	case *schema.EnumType:
		s, _ := value.(string)
		return s, false, nil
	default:
		return "", false, blinkerr.NewEncode("unsupported type for XML scalar format: %T", typeRef)
	}
}

func isXMLSafeText(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if b == '\n' || b == '\r' || b == '\t' {
			continue
		}
		if b < 32 || b == 127 {
			return false
		}
	}
	return true
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

func asMessage(value interface{}, group *schema.GroupDef, defaultNamespace string) (runtime.Message, error) {
	switch v := value.(type) {
	case runtime.Message:
		return v, nil
	case map[string]interface{}:
		var qname schema.QName
		if typeHint, ok := v["$type"]; ok {
			qname = schema.ParseQName(fmt.Sprint(typeHint), defaultNamespace)
		} else if group != nil {
			qname = group.Name
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

func groupOf(typeRef schema.TypeRef) *schema.GroupDef {
	switch t := typeRef.(type) {
	case schema.DynamicGroupRef:
		return t.Group
	default:
		return nil
	}
}

// buildFieldElement renders one field (and, recursively, everything it
// nests) as a child element.
func buildFieldElement(field schema.FieldDef, value interface{}, reg *registry.TypeRegistry, namespace string) (*elementNode, error) {
	child := &elementNode{Name: xml.Name{Local: field.Name}}

	switch t := field.TypeRef.(type) {
	case schema.SequenceType:
		items, ok := value.([]interface{})
		if !ok {
			return nil, blinkerr.NewEncode("sequence field expects []interface{}")
		}
		for _, item := range items {
			itemElem := &elementNode{Name: xml.Name{Local: "item"}}
			switch t.ElementType.(type) {
			case schema.StaticGroupRef:
				inline, err := buildFieldElement(schema.FieldDef{Name: "item", TypeRef: t.ElementType}, item, reg, namespace)
				if err != nil {
					return nil, err
				}
				itemElem = inline
			case schema.DynamicGroupRef, schema.ObjectType:
				msg, err := asMessage(item, groupOf(t.ElementType), namespace)
				if err != nil {
					return nil, err
				}
				nested, err := formatMessage(msg, reg)
				if err != nil {
					return nil, err
				}
				itemElem.Children = append(itemElem.Children, nested)
			default:
				text, binaryAttr, err := formatScalar(item, t.ElementType)
				if err != nil {
					return nil, err
				}
				itemElem.Text = text
				if binaryAttr {
					itemElem.Attrs = append(itemElem.Attrs, xml.Attr{Name: xml.Name{Local: "binary"}, Value: "yes"})
				}
			}
			child.Children = append(child.Children, itemElem)
		}
		return child, nil

	case schema.StaticGroupRef:
		fields, err := asFieldMap(value)
		if err != nil {
			return nil, err
		}
		for _, nested := range t.Group.AllFields() {
			fv, present := fields[nested.Name]
			if !present || fv == nil {
				continue
			}
			nestedElem, err := buildFieldElement(nested, fv, reg, namespace)
			if err != nil {
				return nil, err
			}
			child.Children = append(child.Children, nestedElem)
		}
		return child, nil

	case schema.DynamicGroupRef, schema.ObjectType:
		msg, err := asMessage(value, groupOf(field.TypeRef), namespace)
		if err != nil {
			return nil, err
		}
		nested, err := formatMessage(msg, reg)
		if err != nil {
			return nil, err
		}
		child.Children = append(child.Children, nested)
		return child, nil

	default:
		text, binaryAttr, err := formatScalar(value, field.TypeRef)
		if err != nil {
			return nil, err
		}
		child.Text = text
		if binaryAttr {
			child.Attrs = append(child.Attrs, xml.Attr{Name: xml.Name{Local: "binary"}, Value: "yes"})
		}
		return child, nil
	}
}

func formatMessage(msg runtime.Message, reg *registry.TypeRegistry) (*elementNode, error) {
	group, err := reg.GetGroupByName(msg.TypeName)
	if err != nil {
		return nil, err
	}

	root := &elementNode{Name: xml.Name{Space: group.Name.Namespace, Local: group.Name.Name}}
	for _, field := range group.AllFields() {
		value := msg.Fields[field.Name]
		if value == nil {
			continue
		}
		child, err := buildFieldElement(field, value, reg, group.Name.Namespace)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, child)
	}

	if len(msg.Extensions) > 0 {
		extElem := &elementNode{Name: xml.Name{Space: Namespace, Local: "extension"}}
		for _, ext := range msg.Extensions {
			nested, err := formatMessage(ext, reg)
			if err != nil {
				return nil, err
			}
			extElem.Children = append(extElem.Children, nested)
		}
		root.Children = append(root.Children, extElem)
	}

	return root, nil
}

func writeElement(enc *xml.Encoder, node *elementNode) error {
	start := xml.StartElement{Name: node.Name, Attr: node.Attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if node.Text != "" {
		if err := enc.EncodeToken(xml.CharData(node.Text)); err != nil {
			return err
		}
	}
	for _, child := range node.Children {
		if err := writeElement(enc, child); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// Encode renders msg as an XML document string.
func Encode(msg runtime.Message, reg *registry.TypeRegistry) (string, error) {
	root, err := formatMessage(msg, reg)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := writeElement(enc, root); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// EncodeStream renders messages as newline-separated XML documents, one
// root element per message.
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

func findField(group *schema.GroupDef, name string) *schema.FieldDef {
	fields := group.AllFields()
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i]
		}
	}
	return nil
}

func isHexString(s string) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func parseValue(elem *elementNode, typeRef schema.TypeRef, reg *registry.TypeRegistry, defaultNamespace string) (interface{}, error) {
	switch t := typeRef.(type) {
	case schema.PrimitiveType:
		switch t.Primitive {
		case schema.Bool:
			return strings.ToLower(elem.Text) == "true", nil
		case schema.Decimal:
			idx := strings.IndexByte(elem.Text, 'e')
			if idx < 0 {
				return nil, blinkerr.NewDecode(0, "invalid decimal format: %s", elem.Text)
			}
			mantissa, err := strconv.ParseInt(elem.Text[:idx], 10, 64)
			if err != nil {
				return nil, blinkerr.NewDecode(0, "invalid decimal mantissa: %s", elem.Text)
			}
			exponent, err := strconv.ParseInt(elem.Text[idx+1:], 10, 64)
			if err != nil {
				return nil, blinkerr.NewDecode(0, "invalid decimal exponent: %s", elem.Text)
			}
			return runtime.DecimalValue{Exponent: exponent, Mantissa: mantissa}, nil
		default:
			text := elem.Text
			if text == "" {
				text = "0"
			}
			v, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return nil, blinkerr.NewDecode(0, "invalid integer value: %s", text)
			}
			return v, nil
		}

	case schema.BinaryType:
		if t.Kind == "string" {
			return elem.Text, nil
		}
		if binaryAttr, _ := elem.attr("binary"); binaryAttr == "yes" {
			data, err := hex.DecodeString(elem.Text)
			if err != nil {
				return nil, blinkerr.NewDecode(0, "invalid hex binary value: %s", elem.Text)
			}
			return data, nil
		}
		if isHexString(elem.Text) {
			data, err := hex.DecodeString(elem.Text)
			if err == nil {
				return data, nil
			}
		}
		return []byte(elem.Text), nil

	case *schema.EnumType:
		return elem.Text, nil

	case schema.SequenceType:
		var items []interface{}
		for _, child := range elem.Children {
			if child.Name.Local != "item" {
				continue
			}
			item, err := parseValue(child, t.ElementType, reg, defaultNamespace)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil

	case schema.StaticGroupRef:
		fields := make(map[string]interface{})
		for _, child := range elem.Children {
			fieldDef := findField(t.Group, child.Name.Local)
			if fieldDef == nil {
				continue
			}
			value, err := parseValue(child, fieldDef.TypeRef, reg, defaultNamespace)
			if err != nil {
				return nil, err
			}
			fields[fieldDef.Name] = value
		}
		return runtime.NewStaticGroupValue(fields), nil

	case schema.DynamicGroupRef, schema.ObjectType:
		if len(elem.Children) == 0 {
			return nil, blinkerr.NewDecode(0, "dynamic group element must contain a child message element")
		}
		ns := defaultNamespace
		if g := groupOf(typeRef); g != nil && ns == "" {
			ns = g.Name.Namespace
		}
		return parseMessage(elem.Children[0], reg, ns)

	default:
		return nil, blinkerr.NewDecode(0, "unsupported type for XML parsing: %T", typeRef)
	}
}

func parseMessage(elem *elementNode, reg *registry.TypeRegistry, defaultNamespace string) (runtime.Message, error) {
	var qname schema.QName
	if elem.Name.Space != "" {
		qname = schema.QName{Namespace: elem.Name.Space, Name: elem.Name.Local}
	} else {
		qname = schema.QName{Namespace: defaultNamespace, Name: elem.Name.Local}
	}

	group, err := reg.GetGroupByName(qname)
	if err != nil {
		return runtime.Message{}, err
	}

	fields := make(map[string]interface{})
	var extensions []runtime.Message
	for _, child := range elem.Children {
		if child.Name.Space == Namespace && child.Name.Local == "extension" {
			for _, extChild := range child.Children {
				ext, err := parseMessage(extChild, reg, group.Name.Namespace)
				if err != nil {
					return runtime.Message{}, err
				}
				extensions = append(extensions, ext)
			}
			continue
		}
		fieldDef := findField(group, child.Name.Local)
		if fieldDef == nil {
			continue
		}
		value, err := parseValue(child, fieldDef.TypeRef, reg, group.Name.Namespace)
		if err != nil {
			return runtime.Message{}, err
		}
		fields[fieldDef.Name] = value
	}

	return runtime.NewMessage(qname, fields, extensions), nil
}

func parseTree(data []byte) (*elementNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var stack []*elementNode
	var root *elementNode
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, blinkerr.NewDecode(0, "invalid XML: %s", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &elementNode{Name: t.Name, Attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			} else {
				root = node
			}
			stack = append(stack, node)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, blinkerr.NewDecode(0, "empty XML document")
	}
	return root, nil
}

// Decode parses a single XML document into a message.
func Decode(data []byte, reg *registry.TypeRegistry) (runtime.Message, error) {
	root, err := parseTree(data)
	if err != nil {
		return runtime.Message{}, err
	}
	return parseMessage(root, reg, "")
}

// DecodeStream parses newline-separated XML documents, one root element
// per non-blank line.
func DecodeStream(data []byte, reg *registry.TypeRegistry) ([]runtime.Message, error) {
	var messages []runtime.Message
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		msg, err := Decode([]byte(line), reg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
