// Package id generates run identifiers for ingest and reconcile runs.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for run identifiers. They show up in logs and report headers.
const (
	PrefixIngest    = "ingest"
	PrefixReconcile = "reconcile"
)

// Generate returns prefix-<nanoid>, a 21 character URL-safe NanoID after
// the prefix.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics when the system cannot supply
// randomness.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
