package encoding

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"strings"
)

// ErrInvalidVector is returned when a vector is invalid
var ErrInvalidVector = errors.New("invalid vector")

// bytesPerElement is the on-disk width of one float32 component
const bytesPerElement = 4

// VectorByteLen returns the encoded size of a vector with the given dimension
func VectorByteLen(dims int) int {
	return dims * bytesPerElement
}

// EncodeVector encodes a float32 vector as concatenated little-endian
// IEEE-754 values. There is no header; the dimension travels out of band.
// A nil or empty vector encodes to zero bytes.
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*bytesPerElement)
	for i, val := range vector {
		binary.LittleEndian.PutUint32(buf[i*bytesPerElement:], math.Float32bits(val))
	}
	return buf
}

// DecodeVector decodes raw into a vector of expectedDims components.
//
// raw may be a []byte, an already decoded []float32, a numeric array of byte
// values ([]int, []int64, []float64, []any) or a string holding a JSON array
// of byte values, which is how some drivers hand BLOB columns back. The input
// is normalized to bytes before validation.
//
// DecodeVector returns nil, never an error, when the input is not byte-like
// or its length is not expectedDims*4. Callers treat nil as a corrupted row.
func DecodeVector(raw any, expectedDims int) []float32 {
	if expectedDims < 0 {
		return nil
	}

	if vec, ok := raw.([]float32); ok {
		if len(vec) != expectedDims {
			return nil
		}
		out := make([]float32, len(vec))
		copy(out, vec)
		return out
	}

	data, ok := normalizeBytes(raw)
	if !ok || len(data) != VectorByteLen(expectedDims) {
		return nil
	}

	vector := make([]float32, expectedDims)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*bytesPerElement:]))
	}
	return vector
}

// normalizeBytes converts the accepted raw shapes into a byte slice
func normalizeBytes(raw any) ([]byte, bool) {
	switch v := raw.(type) {
	case []byte:
		return v, true
	case json.RawMessage:
		return fromJSONArray(v)
	case string:
		return fromJSONArray([]byte(v))
	case []int:
		out := make([]byte, len(v))
		for i, n := range v {
			b, ok := byteValue(float64(n))
			if !ok {
				return nil, false
			}
			out[i] = b
		}
		return out, true
	case []int64:
		out := make([]byte, len(v))
		for i, n := range v {
			b, ok := byteValue(float64(n))
			if !ok {
				return nil, false
			}
			out[i] = b
		}
		return out, true
	case []float64:
		out := make([]byte, len(v))
		for i, n := range v {
			b, ok := byteValue(n)
			if !ok {
				return nil, false
			}
			out[i] = b
		}
		return out, true
	case []any:
		out := make([]byte, len(v))
		for i, elem := range v {
			var f float64
			switch n := elem.(type) {
			case float64:
				f = n
			case int:
				f = float64(n)
			case int64:
				f = float64(n)
			case json.Number:
				parsed, err := n.Float64()
				if err != nil {
					return nil, false
				}
				f = parsed
			default:
				return nil, false
			}
			b, ok := byteValue(f)
			if !ok {
				return nil, false
			}
			out[i] = b
		}
		return out, true
	default:
		return nil, false
	}
}

func fromJSONArray(data []byte) ([]byte, bool) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var values []float64
	if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
		return nil, false
	}
	return normalizeBytes(values)
}

// byteValue reports whether f is an integral value in [0,255]
func byteValue(f float64) (byte, bool) {
	if f < 0 || f > 255 || f != math.Trunc(f) {
		return 0, false
	}
	return byte(f), true
}

// ValidateVector reports whether every component is finite
func ValidateVector(vector []float32) error {
	for _, val := range vector {
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return ErrInvalidVector
		}
	}
	return nil
}
