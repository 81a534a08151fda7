// Package testutil holds small deterministic helpers shared by tests.
package testutil

import "crypto/sha256"

// Seed derives a stable 32-byte seed from a label, so tests get
// reproducible keypairs without hard-coding key material.
func Seed(label string) []byte {
	sum := sha256.Sum256([]byte("weavenet-test-" + label))
	return sum[:]
}
