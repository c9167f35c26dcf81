package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// KeyPrefix is the leading marker on every issued API key.
const KeyPrefix = "cl_live_key_"

const secretBytes = 32

// HashAPIKey hashes the raw API key using the same strategy as key creation.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewKeyID derives the public key identifier from a snowflake ID.
func NewKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}

// GenerateKey mints the plaintext key and its stored hash for keyID.
// The plaintext is shown to the caller exactly once.
func GenerateKey(keyID string) (plain, hash string, err error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	secretPart := hex.EncodeToString(secret)
	trimmed := strings.TrimPrefix(keyID, "key_")
	plain = fmt.Sprintf("%s%s_%s", KeyPrefix, trimmed, secretPart)
	return plain, HashAPIKey(plain), nil
}
