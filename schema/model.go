// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package schema holds the resolved Blink type model: qualified names,
// primitive kinds, binary/enum/sequence types, group references, field
// and group definitions, and the schema that indexes them.
package schema

import (
	"fmt"
	"strings"

	"github.com/blinkprotocol/blink/internal/blinkerr"
)

// QName is a qualified Blink name: an optional namespace plus a required
// local name.
type QName struct {
	Namespace string // empty when unqualified
	Name      string
}

// String renders "ns:name" when namespaced, else "name".
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Name
	}
	return q.Namespace + ":" + q.Name
}

// ParseQName parses "ns:name" or "name", falling back to defaultNamespace
// when the input carries no namespace of its own.
func ParseQName(raw string, defaultNamespace string) QName {
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		ns, name := raw[:idx], raw[idx+1:]
		return QName{Namespace: ns, Name: name}
	}
	return QName{Namespace: defaultNamespace, Name: raw}
}

// PrimitiveKind enumerates Blink's closed set of primitive types.
type PrimitiveKind string

const (
	U8             PrimitiveKind = "u8"
	U16            PrimitiveKind = "u16"
	U32            PrimitiveKind = "u32"
	U64            PrimitiveKind = "u64"
	I8             PrimitiveKind = "i8"
	I16            PrimitiveKind = "i16"
	I32            PrimitiveKind = "i32"
	I64            PrimitiveKind = "i64"
	Bool           PrimitiveKind = "bool"
	F64            PrimitiveKind = "f64"
	Decimal        PrimitiveKind = "decimal"
	MilliTime      PrimitiveKind = "millitime"
	NanoTime       PrimitiveKind = "nanotime"
	Date           PrimitiveKind = "date"
	TimeOfDayMilli PrimitiveKind = "timeOfDayMilli"
	TimeOfDayNano  PrimitiveKind = "timeOfDayNano"
)

var primitiveNames = map[string]PrimitiveKind{
	"u8": U8, "u16": U16, "u32": U32, "u64": U64,
	"i8": I8, "i16": I16, "i32": I32, "i64": I64,
	"bool": Bool, "f64": F64, "decimal": Decimal,
	"millitime": MilliTime, "nanotime": NanoTime, "date": Date,
	"timeOfDayMilli": TimeOfDayMilli, "timeOfDayNano": TimeOfDayNano,
}

// PrimitiveKindFromName maps a keyword to its PrimitiveKind.
func PrimitiveKindFromName(name string) (PrimitiveKind, error) {
	if k, ok := primitiveNames[name]; ok {
		return k, nil
	}
	return "", blinkerr.NewSchema("unknown primitive type: %s", name)
}

// IsTimeLike reports whether the kind is one of the date/time primitives
// whose wire value is an integer unit, per spec.md §4.8 and the Non-goal
// excluding canonical time/date formatting.
func (k PrimitiveKind) IsTimeLike() bool {
	switch k {
	case MilliTime, NanoTime, Date, TimeOfDayMilli, TimeOfDayNano:
		return true
	}
	return false
}

// TypeRef is the tagged sum of every type a field or sequence element can
// reference. Concrete implementations: PrimitiveType, BinaryType,
// EnumType, SequenceType, StaticGroupRef, DynamicGroupRef, ObjectType.
type TypeRef interface {
	isTypeRef()
}

// PrimitiveType references one of the closed-set primitive kinds.
type PrimitiveType struct {
	Primitive PrimitiveKind
}

func (PrimitiveType) isTypeRef() {}

// BinaryType represents string, binary, or fixed(N) payloads.
//
// Size semantics: fixed requires a positive Size; string/binary may carry
// an optional positive max-size. string(N) with 1<=N<=255 additionally
// enables Native Binary's inline-string optimization (codec/native).
type BinaryType struct {
	Kind string // "string", "binary", "fixed"
	Size int    // 0 means "no size given" for string/binary
}

func (BinaryType) isTypeRef() {}

// NewBinaryType validates and builds a BinaryType.
func NewBinaryType(kind string, size int) (BinaryType, error) {
	if kind == "fixed" {
		if size <= 0 {
			return BinaryType{}, blinkerr.NewSchema("fixed type requires a positive size")
		}
	} else if size < 0 {
		return BinaryType{}, blinkerr.NewSchema("%s max-size must be positive, got %d", kind, size)
	}
	return BinaryType{Kind: kind, Size: size}, nil
}

// EnumType is a named, closed symbol->integer mapping.
type EnumType struct {
	Name              QName
	Symbols           map[string]int64
	Annotations       map[QName]string
	SymbolAnnotations map[string]map[QName]string
}

func (*EnumType) isTypeRef() {}

// NewEnumType validates symbol value uniqueness and builds an EnumType.
func NewEnumType(name QName, symbols map[string]int64) (*EnumType, error) {
	seen := make(map[int64]struct{}, len(symbols))
	for symbol, value := range symbols {
		if _, ok := seen[value]; ok {
			return nil, blinkerr.NewSchema("duplicate enum value %d for symbol %s", value, symbol)
		}
		seen[value] = struct{}{}
	}
	return &EnumType{Name: name, Symbols: symbols}, nil
}

// ToSymbol looks up the symbol name carrying value.
func (e *EnumType) ToSymbol(value int64) (string, error) {
	for symbol, number := range e.Symbols {
		if number == value {
			return symbol, nil
		}
	}
	return "", blinkerr.NewSchema("enum %s has no symbol for value %d", e.Name, value)
}

// ToValue looks up the integer value of symbol.
func (e *EnumType) ToValue(symbol string) (int64, error) {
	v, ok := e.Symbols[symbol]
	if !ok {
		return 0, blinkerr.NewSchema("enum %s has no symbol %s", e.Name, symbol)
	}
	return v, nil
}

// SequenceType is a homogeneous sequence of a non-sequence element type.
type SequenceType struct {
	ElementType TypeRef
}

func (SequenceType) isTypeRef() {}

// ObjectType is the universal dynamic-group slot: any group may be stored,
// provided a discriminator ($type) is supplied.
type ObjectType struct{}

func (ObjectType) isTypeRef() {}

// StaticGroupRef is an inline, unframed reference to a group.
type StaticGroupRef struct {
	Group *GroupDef
}

func (StaticGroupRef) isTypeRef() {}

// DynamicGroupRef is a self-describing, framed reference to a group or any
// of its subtypes.
type DynamicGroupRef struct {
	Group *GroupDef
}

func (DynamicGroupRef) isTypeRef() {}

// FieldDef is one field of a group: name, type reference, optionality,
// and annotations.
type FieldDef struct {
	Name        string
	TypeRef     TypeRef
	Optional    bool
	Annotations map[QName]string
}

// GroupDef is a named, optionally-identified record type. Groups may
// inherit fields from a super group; the effective field list is
// super.AllFields() ++ own Fields.
type GroupDef struct {
	Name        QName
	TypeID      *int64 // nil when the group carries no numeric id
	Fields      []FieldDef
	Super       *GroupDef
	Annotations map[QName]string
}

// AllFields returns the effective field list: inherited fields first, in
// declaration order, followed by this group's own fields. Every codec and
// the JSON/XML mappings depend on this ordering.
func (g *GroupDef) AllFields() []FieldDef {
	var out []FieldDef
	if g.Super != nil {
		out = append(out, g.Super.AllFields()...)
	}
	return append(out, g.Fields...)
}

// Schema is the compiled, read-only (outside of dynamic exchange) result
// of compiling a Blink schema document: a namespace, a group index by
// qualified name, and a group index by numeric type id.
type Schema struct {
	Namespace   string
	groups      map[string]*GroupDef
	typeIDs     map[int64]*GroupDef
	Annotations map[QName]string
}

// NewSchema builds an empty schema rooted at namespace.
func NewSchema(namespace string) *Schema {
	return &Schema{
		Namespace:   namespace,
		groups:      make(map[string]*GroupDef),
		typeIDs:     make(map[int64]*GroupDef),
		Annotations: make(map[QName]string),
	}
}

// AddGroup registers group, rejecting duplicate names or type ids.
func (s *Schema) AddGroup(group *GroupDef) error {
	key := group.Name.String()
	if _, ok := s.groups[key]; ok {
		return blinkerr.NewSchema("duplicate group definition for %s", key)
	}
	if group.TypeID != nil {
		if _, ok := s.typeIDs[*group.TypeID]; ok {
			return blinkerr.NewSchema("duplicate type id %d", *group.TypeID)
		}
		s.typeIDs[*group.TypeID] = group
	}
	s.groups[key] = group
	return nil
}

// GetGroup looks up a group by qualified name.
func (s *Schema) GetGroup(name QName) (*GroupDef, error) {
	g, ok := s.groups[name.String()]
	if !ok {
		return nil, blinkerr.NewSchema("unknown group %s", name)
	}
	return g, nil
}

// GetGroupByID looks up a group by numeric type id.
func (s *Schema) GetGroupByID(typeID int64) (*GroupDef, error) {
	g, ok := s.typeIDs[typeID]
	if !ok {
		return nil, blinkerr.NewSchema("unknown type id %d", typeID)
	}
	return g, nil
}

// Groups returns every registered group, in no particular order.
func (s *Schema) Groups() []*GroupDef {
	out := make([]*GroupDef, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out
}

func (q QName) GoString() string {
	return fmt.Sprintf("QName(%s)", q.String())
}
