package encoding

import (
	"math"
	"testing"
)

func TestVectorRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
	}{
		{name: "simple vector", vector: []float32{1.0, 2.0, 3.0}},
		{name: "empty vector", vector: []float32{}},
		{name: "single element", vector: []float32{42.0}},
		{name: "negative and tiny", vector: []float32{-0.5, 1e-38, -3.4e38, 0}},
		{name: "large vector", vector: make([]float32, 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.vector) == 1000 {
				for i := range tt.vector {
					tt.vector[i] = float32(i) * 0.1
				}
			}

			encoded := EncodeVector(tt.vector)
			if len(encoded) != VectorByteLen(len(tt.vector)) {
				t.Fatalf("EncodeVector() length = %d, want %d", len(encoded), 4*len(tt.vector))
			}

			decoded := DecodeVector(encoded, len(tt.vector))
			if decoded == nil {
				t.Fatal("DecodeVector() returned nil")
			}
			if len(decoded) != len(tt.vector) {
				t.Fatalf("decoded length = %d, want %d", len(decoded), len(tt.vector))
			}
			for i, v := range decoded {
				if math.Float32bits(v) != math.Float32bits(tt.vector[i]) {
					t.Errorf("decoded[%d] = %v, want %v", i, v, tt.vector[i])
				}
			}
		})
	}
}

func TestEncodeVectorLittleEndian(t *testing.T) {
	got := EncodeVector([]float32{1.0})
	want := []byte{0x00, 0x00, 0x80, 0x3f}
	if string(got) != string(want) {
		t.Errorf("EncodeVector(1.0) = %v, want %v", got, want)
	}
}

func TestDecodeVectorShapes(t *testing.T) {
	// 1.0 and 2.0 as little-endian float32
	raw := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0x40}

	tests := []struct {
		name  string
		input any
	}{
		{name: "bytes", input: raw},
		{name: "int array", input: []int{0, 0, 128, 63, 0, 0, 0, 64}},
		{name: "int64 array", input: []int64{0, 0, 128, 63, 0, 0, 0, 64}},
		{name: "float64 array", input: []float64{0, 0, 128, 63, 0, 0, 0, 64}},
		{name: "any array", input: []any{0.0, 0.0, 128.0, 63.0, 0, 0, int64(0), 64.0}},
		{name: "json string", input: "[0,0,128,63,0,0,0,64]"},
		{name: "float32 slice", input: []float32{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeVector(tt.input, 2)
			if len(got) != 2 || got[0] != 1 || got[1] != 2 {
				t.Errorf("DecodeVector() = %v, want [1 2]", got)
			}
		})
	}
}

func TestDecodeVectorRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
		dims  int
	}{
		{name: "wrong length", input: make([]byte, 12), dims: 2},
		{name: "truncated buffer", input: make([]byte, 7), dims: 2},
		{name: "nil", input: nil, dims: 2},
		{name: "number", input: 42, dims: 1},
		{name: "map", input: map[string]int{"a": 1}, dims: 1},
		{name: "non-array string", input: "hello", dims: 1},
		{name: "malformed json", input: "[1,2,", dims: 1},
		{name: "out of range element", input: []int{0, 0, 0, 256}, dims: 1},
		{name: "fractional element", input: []float64{0, 0, 0, 1.5}, dims: 1},
		{name: "string element", input: []any{"a", 0, 0, 0}, dims: 1},
		{name: "float32 wrong dims", input: []float32{1, 2, 3}, dims: 2},
		{name: "negative dims", input: []byte{}, dims: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeVector(tt.input, tt.dims); got != nil {
				t.Errorf("DecodeVector() = %v, want nil", got)
			}
		})
	}
}

func TestDecodeVectorEmpty(t *testing.T) {
	got := DecodeVector([]byte{}, 0)
	if got == nil || len(got) != 0 {
		t.Errorf("DecodeVector(empty, 0) = %v, want empty non-nil vector", got)
	}
}

func TestValidateVector(t *testing.T) {
	if err := ValidateVector([]float32{1, 2}); err != nil {
		t.Errorf("ValidateVector() error = %v", err)
	}
	if err := ValidateVector([]float32{float32(math.NaN())}); err != ErrInvalidVector {
		t.Errorf("ValidateVector(NaN) error = %v, want ErrInvalidVector", err)
	}
	if err := ValidateVector([]float32{float32(math.Inf(1))}); err != ErrInvalidVector {
		t.Errorf("ValidateVector(Inf) error = %v, want ErrInvalidVector", err)
	}
}
