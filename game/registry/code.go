package registry

import (
	"crypto/rand"
	"strings"
)

const (
	// DefaultCodeLength is the length of generated room codes
	DefaultCodeLength = 5

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generator produces human-enterable room codes
type Generator struct {
	Length int
}

// Generate draws codes until one is not reported by exists. With 36^5 codes
// and a handful of live rooms the loop ends on the first or second draw.
func (g Generator) Generate(exists func(string) bool) string {
	for {
		code := g.draw()
		if exists == nil || !exists(code) {
			return code
		}
	}
}

func (g Generator) draw() string {
	n := g.Length
	if n <= 0 {
		n = DefaultCodeLength
	}

	// 252 is the largest multiple of 36 below 256; bytes above it are
	// rejected so every symbol is equally likely.
	const limit = 252
	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, n)
	for sb.Len() < n {
		rand.Read(buf)
		for _, b := range buf {
			if b >= limit {
				continue
			}
			sb.WriteByte(codeAlphabet[int(b)%len(codeAlphabet)])
			if sb.Len() == n {
				break
			}
		}
	}
	return sb.String()
}

// Normalize trims and uppercases a user-entered code
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
