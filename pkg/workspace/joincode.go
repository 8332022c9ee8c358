package workspace

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/tendant/teamspace/pkg/domain"
)

const joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewJoinCode returns a random uppercase alphanumeric join code.
func NewJoinCode() (string, error) {
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	b := make([]byte, domain.JoinCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		b[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// ValidJoinCode reports whether code, after normalization, has the join
// code shape.
func ValidJoinCode(code string) bool {
	code = domain.NormalizeJoinCode(code)
	if len(code) != domain.JoinCodeLength {
		return false
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
