// Package teamcode generates the short codes people type to join a team.
package teamcode

import (
	"math/rand/v2"
	"strings"
)

// Alphabet is uppercase letters and digits without 0, 1, I and O.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const Length = 6

// MinJoinLength is the shortest input accepted by the join flow.
const MinJoinLength = 4

// Generate returns a random code. It is not suitable as a secret.
func Generate() string {
	var b [Length]byte
	for i := range b {
		b[i] = Alphabet[rand.IntN(len(Alphabet))]
	}
	return string(b[:])
}

// Normalize trims and uppercases user input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code has the exact shape Generate produces.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
