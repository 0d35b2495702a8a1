// Package otp generates and hashes the 6-digit email verification codes.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// Length is the number of digits in a code.
const Length = 6

const (
	lowest = 100000
	span   = 900000 // codes fall in [100000, 999999], never with a leading zero
)

// Generate returns a code drawn uniformly from [100000, 999999] using crypto/rand.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return strconv.FormatInt(n.Int64()+lowest, 10), nil
}

// Generator adapts Generate to the flow's generator interface.
type Generator struct{}

func (Generator) Generate() (string, error) { return Generate() }

// Valid reports whether s is exactly Length ASCII digits.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Hash returns the bcrypt hash of code at the given cost.
func Hash(code string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}
	return string(b), nil
}

// Matches reports whether code hashes to hash.
func Matches(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
