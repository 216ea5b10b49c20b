package hlbc

import (
	"fmt"

	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

// Kind identifies which of HashLink's 23 type shapes a Type carries. The
// numeric values are the wire tag and must never be reordered — they are
// read directly off the byte stream as a single unsigned byte.
type Kind byte

const (
	KindVoid Kind = iota
	KindU8
	KindU16
	KindI32
	KindI64
	KindF32
	KindF64
	KindBool
	KindBytes
	KindDyn
	KindFun
	KindObj
	KindArray
	KindTypeType
	KindRef
	KindVirtual
	KindDynObj
	KindAbstract
	KindEnum
	KindNull
	KindMethod
	KindStruct
	KindPacked
)

var kindNames = [...]string{
	KindVoid: "Void", KindU8: "U8", KindU16: "U16", KindI32: "I32",
	KindI64: "I64", KindF32: "F32", KindF64: "F64", KindBool: "Bool",
	KindBytes: "Bytes", KindDyn: "Dyn", KindFun: "Fun", KindObj: "Obj",
	KindArray: "Array", KindTypeType: "Type", KindRef: "Ref",
	KindVirtual: "Virtual", KindDynObj: "DynObj", KindAbstract: "Abstract",
	KindEnum: "Enum", KindNull: "Null", KindMethod: "Method",
	KindStruct: "Struct", KindPacked: "Packed",
}

// numKinds is the length of the frozen TYPEDEFS table; a Kind byte outside
// [0, numKinds) is not a valid HashLink type.
const numKinds = 23

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// HasPayload reports whether a Kind carries a TypeDef payload beyond its
// tag byte. Void through Dyn, Array, TypeType and DynObj are "no data"
// kinds, identified by the tag alone.
func (k Kind) HasPayload() bool {
	switch k {
	case KindVoid, KindU8, KindU16, KindI32, KindI64, KindF32, KindF64,
		KindBool, KindBytes, KindDyn, KindArray, KindTypeType, KindDynObj:
		return false
	default:
		return true
	}
}

// TypeDef is the payload carried by type kinds that need more than a tag
// byte. No-data kinds (see Kind.HasPayload) have a nil TypeDef.
type TypeDef interface {
	decode(r *varint.Reader) error
	encode(w *varint.Writer) error
}

// Type is a single entry in a module's type pool: a tag identifying the
// shape, plus the shape-specific payload.
type Type struct {
	Kind Kind
	Def  TypeDef
}

// newTypeDef allocates the zero-value payload for a Kind, or nil for a
// no-data kind.
func newTypeDef(k Kind) (TypeDef, error) {
	switch k {
	case KindFun:
		return &FunType{}, nil
	case KindObj:
		return &ObjType{}, nil
	case KindRef:
		return &RefType{}, nil
	case KindVirtual:
		return &VirtualType{}, nil
	case KindAbstract:
		return &AbstractType{}, nil
	case KindEnum:
		return &EnumType{}, nil
	case KindNull:
		return &NullType{}, nil
	case KindMethod:
		return &FunType{}, nil
	case KindStruct:
		return &ObjType{}, nil
	case KindPacked:
		return &PackedType{}, nil
	default:
		if int(k) < numKinds {
			return nil, nil
		}
		return nil, fmt.Errorf("hlbc: %w: type kind %d", ErrMalformedInput, k)
	}
}

// DecodeType reads a single tagged Type from r.
func DecodeType(r *varint.Reader) (Type, error) {
	b, err := r.ReadByte()
	if err != nil {
		return Type{}, fmt.Errorf("hlbc: type kind: %w", err)
	}
	kind := Kind(b)
	def, err := newTypeDef(kind)
	if err != nil {
		return Type{}, err
	}
	if def != nil {
		if err := def.decode(r); err != nil {
			return Type{}, fmt.Errorf("hlbc: %s payload: %w", kind, err)
		}
	}
	return Type{Kind: kind, Def: def}, nil
}

// EncodeType writes t back to its wire form.
func EncodeType(w *varint.Writer, t Type) error {
	w.WriteByte(byte(t.Kind))
	if t.Def != nil {
		if err := t.Def.encode(w); err != nil {
			return fmt.Errorf("hlbc: %s payload: %w", t.Kind, err)
		}
	}
	return nil
}

// FunType is the payload for KindFun and KindMethod: a function's
// argument type indices and return type index, with no opcodes attached.
type FunType struct {
	NArgs varint.VarInt
	Args  []varint.VarInt // type pool indices
	Ret   varint.VarInt   // type pool index
}

func (f *FunType) decode(r *varint.Reader) error {
	n, err := varint.Decode(r)
	if err != nil {
		return fmt.Errorf("nargs: %w", err)
	}
	f.NArgs = n
	if n.Value < 0 {
		return fmt.Errorf("%w: negative nargs %d", ErrMalformedInput, n.Value)
	}
	f.Args = make([]varint.VarInt, n.Value)
	for i := range f.Args {
		if f.Args[i], err = varint.Decode(r); err != nil {
			return fmt.Errorf("arg %d: %w", i, err)
		}
	}
	if f.Ret, err = varint.Decode(r); err != nil {
		return fmt.Errorf("ret: %w", err)
	}
	return nil
}

func (f *FunType) encode(w *varint.Writer) error {
	if err := varint.Encode(w, f.NArgs); err != nil {
		return fmt.Errorf("nargs: %w", err)
	}
	for i, a := range f.Args {
		if err := varint.Encode(w, a); err != nil {
			return fmt.Errorf("arg %d: %w", i, err)
		}
	}
	return varint.Encode(w, f.Ret)
}

// Field is a named, typed class member.
type Field struct {
	Name varint.VarInt // string pool index
	Type varint.VarInt // type pool index
}

func decodeField(r *varint.Reader) (Field, error) {
	var f Field
	var err error
	if f.Name, err = varint.Decode(r); err != nil {
		return Field{}, fmt.Errorf("name: %w", err)
	}
	if f.Type, err = varint.Decode(r); err != nil {
		return Field{}, fmt.Errorf("type: %w", err)
	}
	return f, nil
}

func encodeField(w *varint.Writer, f Field) error {
	if err := varint.Encode(w, f.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	return varint.Encode(w, f.Type)
}

// Proto is a virtual method slot: the method's name, the function it
// currently resolves to, and an opaque prototype index whose use HashLink
// itself leaves undocumented.
type Proto struct {
	Name   varint.VarInt // string pool index
	FIndex varint.VarInt // function pool index
	PIndex varint.VarInt
}

func decodeProto(r *varint.Reader) (Proto, error) {
	var p Proto
	var err error
	if p.Name, err = varint.Decode(r); err != nil {
		return Proto{}, fmt.Errorf("name: %w", err)
	}
	if p.FIndex, err = varint.Decode(r); err != nil {
		return Proto{}, fmt.Errorf("findex: %w", err)
	}
	if p.PIndex, err = varint.Decode(r); err != nil {
		return Proto{}, fmt.Errorf("pindex: %w", err)
	}
	return p, nil
}

func encodeProto(w *varint.Writer, p Proto) error {
	if err := varint.Encode(w, p.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if err := varint.Encode(w, p.FIndex); err != nil {
		return fmt.Errorf("findex: %w", err)
	}
	return varint.Encode(w, p.PIndex)
}

// Binding is a static override of a field slot by a specific function.
type Binding struct {
	Field  varint.VarInt // field index within the resolved field list
	FIndex varint.VarInt // function pool index
}

func decodeBinding(r *varint.Reader) (Binding, error) {
	var b Binding
	var err error
	if b.Field, err = varint.Decode(r); err != nil {
		return Binding{}, fmt.Errorf("field: %w", err)
	}
	if b.FIndex, err = varint.Decode(r); err != nil {
		return Binding{}, fmt.Errorf("findex: %w", err)
	}
	return b, nil
}

func encodeBinding(w *varint.Writer, b Binding) error {
	if err := varint.Encode(w, b.Field); err != nil {
		return fmt.Errorf("field: %w", err)
	}
	return varint.Encode(w, b.FIndex)
}

// ObjType is the payload for KindObj and KindStruct: a class definition's
// name, superclass, global initializer slot, and its own fields/protos/
// bindings (not including inherited ones — see Module.ResolveFields).
type ObjType struct {
	Name      varint.VarInt // string pool index
	Super     varint.VarInt // type pool index, negative means no superclass
	Global    varint.VarInt // global pool index
	NFields   varint.VarInt
	NProtos   varint.VarInt
	NBindings varint.VarInt
	Fields    []Field
	Protos    []Proto
	Bindings  []Binding
}

func (o *ObjType) decode(r *varint.Reader) error {
	var err error
	if o.Name, err = varint.Decode(r); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if o.Super, err = varint.Decode(r); err != nil {
		return fmt.Errorf("super: %w", err)
	}
	if o.Global, err = varint.Decode(r); err != nil {
		return fmt.Errorf("global: %w", err)
	}
	if o.NFields, err = varint.Decode(r); err != nil {
		return fmt.Errorf("nfields: %w", err)
	}
	if o.NProtos, err = varint.Decode(r); err != nil {
		return fmt.Errorf("nprotos: %w", err)
	}
	if o.NBindings, err = varint.Decode(r); err != nil {
		return fmt.Errorf("nbindings: %w", err)
	}
	if o.NFields.Value < 0 || o.NProtos.Value < 0 || o.NBindings.Value < 0 {
		return fmt.Errorf("%w: negative obj count", ErrMalformedInput)
	}
	o.Fields = make([]Field, o.NFields.Value)
	for i := range o.Fields {
		if o.Fields[i], err = decodeField(r); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	o.Protos = make([]Proto, o.NProtos.Value)
	for i := range o.Protos {
		if o.Protos[i], err = decodeProto(r); err != nil {
			return fmt.Errorf("proto %d: %w", i, err)
		}
	}
	o.Bindings = make([]Binding, o.NBindings.Value)
	for i := range o.Bindings {
		if o.Bindings[i], err = decodeBinding(r); err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}
	}
	return nil
}

func (o *ObjType) encode(w *varint.Writer) error {
	for _, v := range []varint.VarInt{o.Name, o.Super, o.Global, o.NFields, o.NProtos, o.NBindings} {
		if err := varint.Encode(w, v); err != nil {
			return err
		}
	}
	for i, f := range o.Fields {
		if err := encodeField(w, f); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	for i, p := range o.Protos {
		if err := encodeProto(w, p); err != nil {
			return fmt.Errorf("proto %d: %w", i, err)
		}
	}
	for i, b := range o.Bindings {
		if err := encodeBinding(w, b); err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}
	}
	return nil
}

// RefType is the payload for KindRef: a memory reference to an instance
// of the referenced type.
type RefType struct {
	Type varint.VarInt // type pool index
}

func (r *RefType) decode(rd *varint.Reader) error {
	v, err := varint.Decode(rd)
	if err != nil {
		return fmt.Errorf("type: %w", err)
	}
	r.Type = v
	return nil
}

func (r *RefType) encode(w *varint.Writer) error {
	return varint.Encode(w, r.Type)
}

// VirtualType is the payload for KindVirtual: an anonymous structural
// type defined purely by its field list.
type VirtualType struct {
	NFields varint.VarInt
	Fields  []Field
}

func (v *VirtualType) decode(r *varint.Reader) error {
	n, err := varint.Decode(r)
	if err != nil {
		return fmt.Errorf("nfields: %w", err)
	}
	v.NFields = n
	if n.Value < 0 {
		return fmt.Errorf("%w: negative nfields %d", ErrMalformedInput, n.Value)
	}
	v.Fields = make([]Field, n.Value)
	for i := range v.Fields {
		if v.Fields[i], err = decodeField(r); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	return nil
}

func (v *VirtualType) encode(w *varint.Writer) error {
	if err := varint.Encode(w, v.NFields); err != nil {
		return err
	}
	for i, f := range v.Fields {
		if err := encodeField(w, f); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	return nil
}

// AbstractType is the payload for KindAbstract: an opaque host type
// identified only by name.
type AbstractType struct {
	Name varint.VarInt // string pool index
}

func (a *AbstractType) decode(r *varint.Reader) error {
	v, err := varint.Decode(r)
	if err != nil {
		return fmt.Errorf("name: %w", err)
	}
	a.Name = v
	return nil
}

func (a *AbstractType) encode(w *varint.Writer) error {
	return varint.Encode(w, a.Name)
}

// EnumConstruct is one named, possibly-parameterized case of an Enum.
type EnumConstruct struct {
	Name    varint.VarInt // string pool index
	NParams varint.VarInt
	Params  []varint.VarInt // type pool indices
}

func decodeEnumConstruct(r *varint.Reader) (EnumConstruct, error) {
	var c EnumConstruct
	var err error
	if c.Name, err = varint.Decode(r); err != nil {
		return EnumConstruct{}, fmt.Errorf("name: %w", err)
	}
	if c.NParams, err = varint.Decode(r); err != nil {
		return EnumConstruct{}, fmt.Errorf("nparams: %w", err)
	}
	if c.NParams.Value < 0 {
		return EnumConstruct{}, fmt.Errorf("%w: negative nparams", ErrMalformedInput)
	}
	c.Params = make([]varint.VarInt, c.NParams.Value)
	for i := range c.Params {
		if c.Params[i], err = varint.Decode(r); err != nil {
			return EnumConstruct{}, fmt.Errorf("param %d: %w", i, err)
		}
	}
	return c, nil
}

func encodeEnumConstruct(w *varint.Writer, c EnumConstruct) error {
	if err := varint.Encode(w, c.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if err := varint.Encode(w, c.NParams); err != nil {
		return fmt.Errorf("nparams: %w", err)
	}
	for i, p := range c.Params {
		if err := varint.Encode(w, p); err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
	}
	return nil
}

// EnumType is the payload for KindEnum.
type EnumType struct {
	Name        varint.VarInt // string pool index
	Global      varint.VarInt // global pool index
	NConstructs varint.VarInt
	Constructs  []EnumConstruct
}

func (e *EnumType) decode(r *varint.Reader) error {
	var err error
	if e.Name, err = varint.Decode(r); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if e.Global, err = varint.Decode(r); err != nil {
		return fmt.Errorf("global: %w", err)
	}
	if e.NConstructs, err = varint.Decode(r); err != nil {
		return fmt.Errorf("nconstructs: %w", err)
	}
	if e.NConstructs.Value < 0 {
		return fmt.Errorf("%w: negative nconstructs", ErrMalformedInput)
	}
	e.Constructs = make([]EnumConstruct, e.NConstructs.Value)
	for i := range e.Constructs {
		if e.Constructs[i], err = decodeEnumConstruct(r); err != nil {
			return fmt.Errorf("construct %d: %w", i, err)
		}
	}
	return nil
}

func (e *EnumType) encode(w *varint.Writer) error {
	for _, v := range []varint.VarInt{e.Name, e.Global, e.NConstructs} {
		if err := varint.Encode(w, v); err != nil {
			return err
		}
	}
	for i, c := range e.Constructs {
		if err := encodeEnumConstruct(w, c); err != nil {
			return fmt.Errorf("construct %d: %w", i, err)
		}
	}
	return nil
}

// NullType is the payload for KindNull: nullable wrapper around another
// type, used for boxed primitives (Null U8, Null I32, ...).
type NullType struct {
	Type varint.VarInt // type pool index
}

func (n *NullType) decode(r *varint.Reader) error {
	v, err := varint.Decode(r)
	if err != nil {
		return fmt.Errorf("type: %w", err)
	}
	n.Type = v
	return nil
}

func (n *NullType) encode(w *varint.Writer) error {
	return varint.Encode(w, n.Type)
}

// PackedType is the payload for KindPacked: an unboxed inline struct
// representation of another type.
type PackedType struct {
	Inner varint.VarInt // type pool index
}

func (p *PackedType) decode(r *varint.Reader) error {
	v, err := varint.Decode(r)
	if err != nil {
		return fmt.Errorf("inner: %w", err)
	}
	p.Inner = v
	return nil
}

func (p *PackedType) encode(w *varint.Writer) error {
	return varint.Encode(w, p.Inner)
}
