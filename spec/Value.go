package spec

import "gonum.org/v1/gonum/mat"

// Value is a single observation or action: a mapping from sub-space
// keys to flat numeric vectors. Values produced by a non-dict space
// hold exactly one vector under DefaultKey.
type Value map[string]*mat.VecDense

// Scalar wraps a single vector as a normalized single-key Value
func Scalar(vec *mat.VecDense) Value {
	return Value{DefaultKey: vec}
}

// FromSlice wraps a raw float slice as a normalized single-key Value
func FromSlice(data []float64) Value {
	return Scalar(mat.NewVecDense(len(data), data))
}

// DiscreteAction returns a Value holding a single discrete action
// index
func DiscreteAction(action int) Value {
	return FromSlice([]float64{float64(action)})
}

// Vector returns the vector stored under DefaultKey, or nil if the
// Value is not a normalized scalar Value.
func (v Value) Vector() *mat.VecDense {
	return v[DefaultKey]
}

// Clone returns a deep copy of the Value
func (v Value) Clone() Value {
	if v == nil {
		return nil
	}
	clone := make(Value, len(v))
	for key, vec := range v {
		clone[key] = mat.VecDenseCopyOf(vec)
	}
	return clone
}
