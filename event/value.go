package event

// Kind discriminates the Value union
type Kind uint8

const (
	KindScalar Kind = iota
	KindStructure
	KindSequence
)

// Value is a captured property value: a scalar, a structure of named
// properties, or a sequence of values.
type Value struct {
	kind    Kind
	scalar  any
	typeTag string
	props   []Property
	items   []Value
}

// Property is a named Value
type Property struct {
	Name  string
	Value Value
}

// ScalarValue wraps an opaque value
func ScalarValue(v any) Value {
	return Value{kind: KindScalar, scalar: v}
}

// StructureValue builds a structured value; typeTag may be empty
func StructureValue(typeTag string, props []Property) Value {
	return Value{kind: KindStructure, typeTag: typeTag, props: props}
}

// SequenceValue builds an ordered sequence
func SequenceValue(items []Value) Value {
	return Value{kind: KindSequence, items: items}
}

func (v Value) Kind() Kind { return v.kind }

// Any returns the scalar payload; nil for structures and sequences
func (v Value) Any() any { return v.scalar }

func (v Value) TypeTag() string { return v.typeTag }

// Properties returns the members of a structured value
func (v Value) Properties() []Property { return v.props }

// Items returns the elements of a sequence value
func (v Value) Items() []Value { return v.items }

// Lookup finds a member of a structured value by name
func (v Value) Lookup(name string) (Value, bool) {
	for _, p := range v.props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}
