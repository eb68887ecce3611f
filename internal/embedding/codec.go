// Package embedding holds the face embedding type and its transport codec.
//
// The wire form is the standard base64 encoding of the raw little-endian
// float64 bytes, with no header or delimiters. An empty embedding encodes to
// the empty string.
package embedding

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

const elementSize = 8

// Embedding is an ordered float64 vector produced by a face encoder.
type Embedding []float64

// Dim returns the number of components.
func (e Embedding) Dim() int {
	return len(e)
}

// IsEmpty reports whether the embedding is absent.
func (e Embedding) IsEmpty() bool {
	return len(e) == 0
}

// Clone returns an independent copy.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Float32 converts to single precision for the pgvector column.
func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// Encode serializes e losslessly.
func Encode(e Embedding) string {
	if len(e) == 0 {
		return ""
	}
	buf := make([]byte, len(e)*elementSize)
	for i, v := range e {
		binary.LittleEndian.PutUint64(buf[i*elementSize:], math.Float64bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// Decode parses a string produced by Encode. Invalid base64 or a byte length
// that is not a multiple of 8 yields domain.ErrMalformedVector.
func Decode(s string) (Embedding, error) {
	if s == "" {
		return Embedding{}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, domain.ErrMalformedVector.WithError(fmt.Errorf("base64: %w", err))
	}
	if len(raw)%elementSize != 0 {
		return nil, domain.ErrMalformedVector.WithError(
			fmt.Errorf("byte length %d is not a multiple of %d", len(raw), elementSize))
	}

	out := make(Embedding, len(raw)/elementSize)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*elementSize:]))
	}
	return out, nil
}
