// Package idgen provides short, URL-safe unique struct IDs backed by nanoid.
package idgen

import (
	"errors"
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultPrefix is prepended to every generated ID.
var DefaultPrefix = "st-"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// maxAttempts bounds collision retries in Generator.Next.
const maxAttempts = 8

// ErrExhausted is returned when every attempt produced an ID already in use.
var ErrExhausted = errors.New("idgen: no free id")

// Generate returns a new unique ID using the default prefix.
func Generate() (string, error) {
	return GenerateWithPrefix(DefaultPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Generator produces IDs with a fixed prefix, skipping any that InUse
// reports as taken.
type Generator struct {
	Prefix string
	InUse  func(id string) bool
}

// Next returns an ID not currently in use.
func (g Generator) Next() (string, error) {
	prefix := g.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	for range maxAttempts {
		id, err := GenerateWithPrefix(prefix)
		if err != nil {
			return "", err
		}
		if g.InUse == nil || !g.InUse(id) {
			return id, nil
		}
	}
	return "", ErrExhausted
}
