package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateNonce returns a URL-safe random string for one-time values.
func GenerateNonce(length int) (string, error) {
	return gonanoid.New(length)
}
