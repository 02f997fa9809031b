// Package id generates compact identifiers for storage records.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a 26-character lowercase base32 identifier derived from a
// random UUIDv4. The format is URL-safe and sorts poorly on purpose: ordering
// comes from sequence numbers, never from identifiers.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("new uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}
