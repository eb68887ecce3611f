// Package otp issues the numeric one-time codes printed to users at
// enrollment. A code is the only key a user presents to verify or delete.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

// ErrExhausted is returned when every candidate collided with an existing code.
var ErrExhausted = errors.New("otp: no free code after max attempts")

// ExistsFunc reports whether a code is already assigned.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

type Generator struct {
	length      int
	maxAttempts int
	random      io.Reader
}

func NewGenerator(length, maxAttempts int) *Generator {
	if length <= 0 {
		length = 6
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Generator{length: length, maxAttempts: maxAttempts, random: rand.Reader}
}

// Generate returns a uniformly random code of the configured length,
// zero-padded.
func (g *Generator) Generate() (string, error) {
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.length)), nil)
	n, err := rand.Int(g.random, upper)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	digits := n.String()
	return strings.Repeat("0", g.length-len(digits)) + digits, nil
}

// Unique draws codes until exists reports a free one.
func (g *Generator) Unique(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhausted
}

// Valid reports whether s looks like a code this generator could issue.
func (g *Generator) Valid(s string) bool {
	if len(s) != g.length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ExistsInStore adapts a GetByOTP lookup to ExistsFunc.
func ExistsInStore(lookup func(ctx context.Context, code string) (*domain.Identity, error)) ExistsFunc {
	return func(ctx context.Context, code string) (bool, error) {
		_, err := lookup(ctx, code)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, domain.ErrOTPNotFound):
			return false, nil
		default:
			return false, err
		}
	}
}
