package mps

import "math"

// NonFinite is a decoded f32 or f64 holding NaN or an infinity.
// It marshals to JSON as the string "NaN", "+Inf" or "-Inf".
type NonFinite float64

func (f NonFinite) String() string {
	switch {
	case math.IsNaN(float64(f)):
		return "NaN"
	case f > 0:
		return "+Inf"
	}
	return "-Inf"
}

func (f NonFinite) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.String() + `"`), nil
}

// finite wraps NaN and infinite floats in NonFinite and passes everything
// else through.
func finite(v any) any {
	switch f := v.(type) {
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return NonFinite(f)
		}
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return NonFinite(f)
		}
	}
	return v
}
