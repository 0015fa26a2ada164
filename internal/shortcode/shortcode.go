// Package shortcode generates random short keys from a secure random source.
//
// The generator does not guarantee uniqueness; the storage insert is
// conditional on key absence and the caller retries on collision.
package shortcode

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// MinLength is the shortest allowed key length.
const MinLength = 6

// ErrInvalidLength is returned for a requested length below MinLength.
var ErrInvalidLength = errors.New("Length can't not be lower than 6")

// Generate returns a random hexadecimal string of exactly `length` characters.
func Generate(length int) (string, error) {
	if length < MinLength {
		return "", ErrInvalidLength
	}

	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	return hex.EncodeToString(buf)[:length], nil
}
