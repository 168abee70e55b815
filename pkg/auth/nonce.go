package auth

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// GenerateNonce returns 32 random hex digits, suitable as a challenge nonce.
func GenerateNonce() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:]), nil
}
