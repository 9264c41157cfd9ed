// Package spec implements specifications of the observation and
// action spaces of environments
package spec

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Cardinality determines the cardinality of a number (discrete or
// continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// DefaultKey is the key under which a non-dict space stores its single
// sub-space. Environments with a plain array observation or action are
// represented internally as a single-key dict so that consumers never
// branch on space shape.
const DefaultKey string = "default"

// SubSpace describes one named component of a Space: a flat numeric
// vector of fixed length with per-dimension bounds.
type SubSpace struct {
	Dim        int
	LowerBound *mat.VecDense
	UpperBound *mat.VecDense
	Cardinality
}

// NewSubSpace constructs a new sub-space of dim dimensions. The bounds
// must either be nil or have length dim.
func NewSubSpace(dim int, lowerBound, upperBound *mat.VecDense,
	cardinality Cardinality) SubSpace {
	if lowerBound != nil && lowerBound.Len() != dim {
		panic(fmt.Sprintf("dimension %v must match lower bound length %v",
			dim, lowerBound.Len()))
	}
	if upperBound != nil && upperBound.Len() != dim {
		panic(fmt.Sprintf("dimension %v must match upper bound length %v",
			dim, upperBound.Len()))
	}
	return SubSpace{dim, lowerBound, upperBound, cardinality}
}

// Space describes the layout of environment observations or actions
// as an ordered mapping of named sub-spaces. The key set, order, and
// per-key dimensions are fixed for the lifetime of the Space.
type Space struct {
	keys []string
	subs map[string]SubSpace
}

// NewScalarSpace constructs a Space holding a single unnamed
// sub-space, stored under DefaultKey.
func NewScalarSpace(sub SubSpace) Space {
	return Space{
		keys: []string{DefaultKey},
		subs: map[string]SubSpace{DefaultKey: sub},
	}
}

// NewDictSpace constructs a dict Space from an ordered list of keys
// and their sub-spaces. Every key must have a sub-space and vice
// versa.
func NewDictSpace(keys []string, subs map[string]SubSpace) Space {
	if len(keys) != len(subs) {
		panic(fmt.Sprintf("got %v keys for %v sub-spaces", len(keys),
			len(subs)))
	}
	ownKeys := make([]string, len(keys))
	ownSubs := make(map[string]SubSpace, len(subs))
	for i, key := range keys {
		sub, ok := subs[key]
		if !ok {
			panic(fmt.Sprintf("no sub-space for key %q", key))
		}
		ownKeys[i] = key
		ownSubs[key] = sub
	}
	return Space{ownKeys, ownSubs}
}

// Keys returns the ordered keys of the Space
func (s Space) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Sub returns the sub-space stored under key
func (s Space) Sub(key string) (SubSpace, bool) {
	sub, ok := s.subs[key]
	return sub, ok
}

// Scalar returns whether the Space is a normalized non-dict space
func (s Space) Scalar() bool {
	return len(s.keys) == 1 && s.keys[0] == DefaultKey
}

// FlatDim returns the total number of dimensions across all sub-spaces
func (s Space) FlatDim() int {
	dim := 0
	for _, key := range s.keys {
		dim += s.subs[key].Dim
	}
	return dim
}

// Validate checks that a Value has exactly the Space's key set with
// correctly sized vectors under every key.
func (s Space) Validate(v Value) error {
	if len(v) != len(s.keys) {
		return fmt.Errorf("validate: got %v keys, space has %v", len(v),
			len(s.keys))
	}
	for _, key := range s.keys {
		vec, ok := v[key]
		if !ok {
			return fmt.Errorf("validate: missing key %q", key)
		}
		if vec == nil {
			return fmt.Errorf("validate: nil vector under key %q", key)
		}
		if vec.Len() != s.subs[key].Dim {
			return fmt.Errorf("validate: key %q has length %v, space "+
				"requires %v", key, vec.Len(), s.subs[key].Dim)
		}
	}
	return nil
}

// Equal returns whether two Spaces have the same ordered key set with
// the same dimension and cardinality under every key. Bounds are not
// compared.
func (s Space) Equal(o Space) bool {
	if len(s.keys) != len(o.keys) {
		return false
	}
	for i, key := range s.keys {
		if o.keys[i] != key {
			return false
		}
		if s.subs[key].Dim != o.subs[key].Dim ||
			s.subs[key].Cardinality != o.subs[key].Cardinality {
			return false
		}
	}
	return true
}

// Zero returns a new zero-valued Value laid out according to the Space
func (s Space) Zero() Value {
	v := make(Value, len(s.keys))
	for _, key := range s.keys {
		v[key] = mat.NewVecDense(s.subs[key].Dim, nil)
	}
	return v
}
