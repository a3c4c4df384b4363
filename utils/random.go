package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// referenceCharset excludes look-alike characters (0/O, 1/I/L) so the
// code survives being read over the phone.
const referenceCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateCode returns an uppercase hex string of 2n characters.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateReference returns a collision-resistant short alphanumeric
// code used as the user-facing booking reference. Uniqueness is still
// checked against storage before commit.
func GenerateReference(length int) (string, error) {
	code := make([]byte, length)

	if _, err := rand.Read(code); err != nil {
		return "", err
	}

	for i := 0; i < length; i++ {
		code[i] = referenceCharset[int(code[i])%len(referenceCharset)]
	}

	return string(code), nil
}
