// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

// Annotation is a single "@ns:name=value" annotation, as parsed.
type Annotation struct {
	Name  QName
	Value string
}

// TypeRefAst is the tagged sum of type-expression forms the parser can
// produce, before the resolver turns them into TypeRef.
type TypeRefAst interface {
	isTypeRefAst()
}

// PrimitiveTypeRefAst names a primitive keyword.
type PrimitiveTypeRefAst struct{ Name string }

func (PrimitiveTypeRefAst) isTypeRefAst() {}

// BinaryTypeRefAst is string/binary/fixed, with an optional or required
// size depending on kind.
type BinaryTypeRefAst struct {
	Kind string
	Size int // -1 means "no size given"
}

func (BinaryTypeRefAst) isTypeRefAst() {}

// SequenceTypeRefAst wraps an element type expression in "[]".
type SequenceTypeRefAst struct{ ElementType TypeRefAst }

func (SequenceTypeRefAst) isTypeRefAst() {}

// ObjectTypeRefAst is the bare "object" keyword.
type ObjectTypeRefAst struct{}

func (ObjectTypeRefAst) isTypeRefAst() {}

// NamedTypeRefAst references an enum, group, or type alias by name.
// GroupMode is "" (static, the default), or "dynamic" when the source
// marked the reference with a trailing "*".
type NamedTypeRefAst struct {
	Name      QName
	GroupMode string
}

func (NamedTypeRefAst) isTypeRefAst() {}

// FieldAst is one parsed field: name, type expression, optionality, and
// its own annotations.
type FieldAst struct {
	Name        string
	TypeRef     TypeRefAst
	Optional    bool
	Annotations []Annotation
}

// GroupDefAst is a parsed group header plus its field list.
type GroupDefAst struct {
	Name        QName
	TypeID      *int64
	Fields      []FieldAst
	SuperName   *QName
	Annotations []Annotation
}

// EnumSymbolAst is one "Symbol/value" entry of an enum definition.
type EnumSymbolAst struct {
	Name        string
	Value       int64
	Annotations []Annotation
}

// EnumDefAst is a parsed enum definition.
type EnumDefAst struct {
	Name        QName
	Symbols     []EnumSymbolAst
	Annotations []Annotation
}

// TypeDefAst is a parsed type alias ("QName = <type expression>").
type TypeDefAst struct {
	Name        QName
	TypeRef     TypeRefAst
	Annotations []Annotation
}

// ComponentRefAst addresses an incremental annotation's target: either a
// whole component (Member == "") or one of its members (e.g. an enum
// symbol or a field).
type ComponentRefAst struct {
	Name   QName
	Member string
}

// IncrementalAnnotationAst is a "Target <- @ann..." top-level form.
type IncrementalAnnotationAst struct {
	Target      ComponentRefAst
	Annotations []Annotation
}

// SchemaAst is the complete parsed document: an optional namespace
// declaration plus every top-level form, grouped by kind.
type SchemaAst struct {
	Namespace               string
	Enums                   []EnumDefAst
	TypeDefs                []TypeDefAst
	Groups                  []GroupDefAst
	SchemaAnnotations       []Annotation
	IncrementalAnnotations  []IncrementalAnnotationAst
}
