package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewSessionCode returns a random 6-digit code for ad-hoc session check-ins.
func NewSessionCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
