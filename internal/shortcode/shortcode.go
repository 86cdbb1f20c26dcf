// Package shortcode generates the random aliases handed out when a link
// owner does not pick a custom one.
package shortcode

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	base     = 36

	minLength = 4
	maxLength = 8

	maxAttempts = 16
)

// ErrExhausted means generation could not produce an acceptable candidate.
// That is an alphabet/bounds misconfiguration, not a user error.
var ErrExhausted = errors.New("shortcode: generation exhausted, alphabet or bounds misconfigured")

// DefaultReserved covers route names and words that must never become
// aliases. Callers add their own route table on top.
var DefaultReserved = []string{
	"api", "admin", "app", "auth", "health", "login", "logout",
	"metrics", "static", "stats", "shorten", "review", "orgs",
}

type Generator struct {
	reserved map[string]struct{}
	min, max *big.Int
}

func New(reserved []string) *Generator {
	set := make(map[string]struct{}, len(reserved))
	for _, w := range reserved {
		set[strings.ToLower(w)] = struct{}{}
	}

	// Values in [base^(minLength-1), base^maxLength) always encode to
	// minLength..maxLength characters.
	min := new(big.Int).Exp(big.NewInt(base), big.NewInt(minLength-1), nil)
	max := new(big.Int).Exp(big.NewInt(base), big.NewInt(maxLength), nil)

	return &Generator{reserved: set, min: min, max: max}
}

// Generate returns a random 4-8 character code. Reserved words are
// filtered here; collisions with existing aliases are left to the store's
// unique constraint, and the caller retries on that signal.
func (g *Generator) Generate() (string, error) {
	span := new(big.Int).Sub(g.max, g.min)
	for i := 0; i < maxAttempts; i++ {
		n, err := rand.Int(rand.Reader, span)
		if err != nil {
			return "", err
		}
		code := encode(n.Add(n, g.min))
		if g.Reserved(code) {
			continue
		}
		return code, nil
	}
	return "", ErrExhausted
}

// Reserved reports whether name may never be used as an alias.
func (g *Generator) Reserved(name string) bool {
	_, ok := g.reserved[strings.ToLower(name)]
	return ok
}

var bigBase = big.NewInt(base)

func encode(n *big.Int) string {
	if n.Sign() == 0 {
		return string(alphabet[0])
	}

	num := new(big.Int).Set(n)
	mod := new(big.Int)

	var b []byte
	for num.Sign() > 0 {
		num.DivMod(num, bigBase, mod)
		b = append(b, alphabet[mod.Int64()])
	}

	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
