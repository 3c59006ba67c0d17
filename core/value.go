package core

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Kind identifies which variant of Value is populated.
type Kind int

const (
	KindInt Kind = iota
	KindStr
	KindList
	KindDict
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindStr:
		return "str"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindLabel:
		return "label"
	default:
		return "unknown"
	}
}

// Value is the tagged union every SANVM stack slot, storage binding, and
// list/dict element holds. The original source's stack is a Python list
// that happily mixes ints, strings, lists and dicts; Value reproduces that
// dynamic-typing surface in a statically-typed host.
//
// Int is backed by uint256.Int rather than a machine word: contract ids and
// arithmetic results in this system are unbounded unsigned integers, and a
// single 256-bit representation covers both without a secondary widening
// path. Arithmetic wraps modulo 2^256, matching uint256's own semantics.
type Value struct {
	Kind  Kind
	Int   *uint256.Int
	Str   string
	List  []Value
	Dict  map[string]Value
	Label string // set only when Kind == KindLabel
}

// IntValue builds an integer Value from an int64.
func IntValue(n int64) Value {
	u := new(uint256.Int)
	if n < 0 {
		u.SetUint64(uint64(-n))
		u.Neg(u)
	} else {
		u.SetUint64(uint64(n))
	}
	return Value{Kind: KindInt, Int: u}
}

// UintValue builds an integer Value from a *uint256.Int directly.
func UintValue(u *uint256.Int) Value {
	return Value{Kind: KindInt, Int: u}
}

// StrValue builds a string Value.
func StrValue(s string) Value {
	return Value{Kind: KindStr, Str: s}
}

// ListValue builds a list Value.
func ListValue(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindList, List: items}
}

// DictValue builds a dict Value.
func DictValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Kind: KindDict, Dict: m}
}

// LabelValue builds a label sentinel Value. PenaParser resolves its labels
// with internal markers and never emits one; the VM skips a label found in
// opcode position as a no-op.
func LabelValue(name string) Value {
	return Value{Kind: KindLabel, Label: name}
}

// IsZero reports whether v is the VM's notion of "false": the integer zero.
// Non-integer values are always truthy. Used by AND/OR and by FOR_LOOP's
// bound check; IF itself never consults this - it compares its condition
// for exact equality against an inline literal instead (see opIf).
func (v Value) IsZero() bool {
	return v.Kind == KindInt && v.Int.IsZero()
}

// Equal implements the VM's EQ/NEQ semantics: same kind and same content.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int.Eq(other.Int)
	case KindStr:
		return v.Str == other.Str
	case KindLabel:
		return v.Label == other.Label
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.Dict) != len(other.Dict) {
			return false
		}
		for k, val := range v.Dict {
			ov, ok := other.Dict[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Less implements the VM's LT/LTE/GT/GTE semantics for the two ordered
// kinds the original language exposes ordering for: integers and strings.
// Comparing across kinds, or ordering a list/dict, is a TypeError.
func (v Value) Less(other Value) (bool, error) {
	if v.Kind != other.Kind {
		return false, fmt.Errorf("%w: cannot order %s against %s", ErrType, v.Kind, other.Kind)
	}
	switch v.Kind {
	case KindInt:
		return v.Int.Lt(other.Int), nil
	case KindStr:
		return v.Str < other.Str, nil
	default:
		return false, fmt.Errorf("%w: %s is not ordered", ErrType, v.Kind)
	}
}

// String renders v for PRINT and diagnostics.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return v.Int.Dec()
	case KindStr:
		return v.Str
	case KindLabel:
		return v.Label
	case KindList:
		return fmt.Sprintf("%v", v.List)
	case KindDict:
		return fmt.Sprintf("%v", v.Dict)
	default:
		return "<invalid>"
	}
}

// AsKey renders v the way the VM uses stack values as Storage/dict keys:
// by their textual form. Pena source only ever uses string literals or
// identifiers as keys, but the bytecode form places no such restriction on
// SET/GET/DICT_SET/DICT_GET, so any Value is accepted.
func (v Value) AsKey() string {
	return v.String()
}
