// Package codes draws verification codes and checks them against the
// persisted certificate set before handing them out.
package codes

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrExhausted is returned when MaxAttempts candidates in a row collided.
var ErrExhausted = errors.New("verification code allocation exhausted")

const (
	// AlphabetFull is every upper-case letter and digit.
	AlphabetFull = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// AlphabetUnambiguous drops 0 O 1 I L, which are easy to misread
	// when a code is typed from paper.
	AlphabetUnambiguous = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	DefaultMaxAttempts = 32
)

// ExistsFunc reports whether code is already taken. It must compare
// case-insensitively and include inactive certificates.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Allocator generates random codes of a fixed length.
type Allocator struct {
	Alphabet    string
	Length      int
	MaxAttempts int
}

// Legacy is the 6-character allocator used by single issuance.
func Legacy() Allocator {
	return Allocator{Alphabet: AlphabetFull, Length: 6, MaxAttempts: DefaultMaxAttempts}
}

// Extended is the 8-character allocator used by batch issuance.
func Extended() Allocator {
	return Allocator{Alphabet: AlphabetUnambiguous, Length: 8, MaxAttempts: DefaultMaxAttempts}
}

// Generate returns one random code without checking the store.
func (a Allocator) Generate() (string, error) {
	alphabet := a.Alphabet
	if alphabet == "" {
		alphabet = AlphabetFull
	}
	n := a.Length
	if n <= 0 {
		n = 6
	}
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return strings.ToUpper(b.String()), nil
}

// Allocate draws codes until exists reports one free. A nil exists
// accepts the first candidate; the store's unique index stays the final
// authority either way.
func (a Allocator) Allocate(ctx context.Context, exists ExistsFunc) (string, error) {
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := a.Generate()
		if err != nil {
			return "", err
		}
		if exists == nil {
			return code, nil
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
}
