package ssa

import (
	"fmt"
	"strings"
)

// Source-level type model. The builder constructs types from the textual IR;
// the analyzer reads them through the fields, predicates and accessors below
// and constructs only the array types of aggregate field arrays. Aggregate layout
// is described in bits because the access resolution in the analyzer is
// bit-granular.

// TypeKind tags a Type.
type TypeKind string

const (
	TypeInt       TypeKind = "int"
	TypeFloat     TypeKind = "float"
	TypePointer   TypeKind = "pointer"
	TypeArray     TypeKind = "array" // unmanaged fixed-size array
	TypeAggregate TypeKind = "aggregate"
)

// Type describes a source-level type attached to an operand.
type Type struct {
	Kind     TypeKind
	Bits     int   // total size in bits
	Signed   bool  // integers only
	Referent *Type // pointer referent
	Elem     *Type // array element
	Count    int   // array element count, 0 when unknown
	Name     string
	Fields   []Field // aggregate fields, in declaration order
}

// Field is one member of an aggregate, at a fixed bit offset. Union members
// share offsets; nothing below assumes fields are disjoint.
type Field struct {
	Name   string
	Type   *Type
	Offset int // bit offset from the start of the aggregate
}

// IsPointer reports whether t is a pointer type.
func (t *Type) IsPointer() bool { return t != nil && t.Kind == TypePointer }

// IsUnmanagedArray reports whether t is a fixed-size array type.
func (t *Type) IsUnmanagedArray() bool { return t != nil && t.Kind == TypeArray }

// IsAggregate reports whether t is a struct or union type.
func (t *Type) IsAggregate() bool { return t != nil && t.Kind == TypeAggregate }

// IsFloat reports whether t is a floating-point type.
func (t *Type) IsFloat() bool { return t != nil && t.Kind == TypeFloat }

// IsSignedInt reports whether t is a signed integer type. Non-integer types
// count as signed so that pointer-difference arithmetic picks the signed
// operators.
func (t *Type) IsSignedInt() bool {
	if t == nil {
		return true
	}
	if t.Kind == TypeInt {
		return t.Signed
	}
	return true
}

// Indirect returns the type one level of dereferencing away: the referent
// for pointers, the element type for arrays, nil otherwise.
func (t *Type) Indirect() *Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TypePointer:
		return t.Referent
	case TypeArray:
		return t.Elem
	}
	return nil
}

// NewInt returns an integer type of the given width.
func NewInt(bits int, signed bool) *Type {
	return &Type{Kind: TypeInt, Bits: bits, Signed: signed}
}

// NewFloat returns a floating-point type of the given width.
func NewFloat(bits int) *Type {
	return &Type{Kind: TypeFloat, Bits: bits}
}

// NewPointer returns a pointer type. Pointer width is the machine word size
// of the unit the type belongs to.
func NewPointer(referent *Type, wordBits int) *Type {
	return &Type{Kind: TypePointer, Bits: wordBits, Referent: referent}
}

// NewArray returns a fixed-size array type.
func NewArray(elem *Type, count int) *Type {
	bits := 0
	if elem != nil {
		bits = elem.Bits * count
	}
	return &Type{Kind: TypeArray, Bits: bits, Elem: elem, Count: count}
}

func (t *Type) String() string {
	if t == nil {
		return "?"
	}
	switch t.Kind {
	case TypeInt:
		if t.Signed {
			return fmt.Sprintf("i%d", t.Bits)
		}
		return fmt.Sprintf("u%d", t.Bits)
	case TypeFloat:
		return fmt.Sprintf("f%d", t.Bits)
	case TypePointer:
		return "*" + t.Referent.String()
	case TypeArray:
		return fmt.Sprintf("[%d]%s", t.Count, t.Elem.String())
	case TypeAggregate:
		if t.Name != "" {
			return "struct " + t.Name
		}
		names := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			names[i] = f.Name
		}
		return "struct {" + strings.Join(names, ", ") + "}"
	}
	return string(t.Kind)
}
