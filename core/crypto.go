package core

// crypto.go – Ed25519 signing over canonical bytes. Keys and signatures
// travel as hex strings; raw signature length is capped at MaxSignatureLen.

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateKeyPair returns a fresh Ed25519 keypair as hex strings.
func GenerateKeyPair() (pubHex, privHex string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate keypair: %w", err)
	}
	return hex.EncodeToString(pub), hex.EncodeToString(priv), nil
}

// KeyPairFromSeed derives a deterministic keypair from a 32-byte seed. Used
// by tooling and tests; production keys come from GenerateKeyPair.
func KeyPairFromSeed(seed []byte) (pubHex, privHex string, err error) {
	if len(seed) != ed25519.SeedSize {
		return "", "", fmt.Errorf("%w: seed must be %d bytes", ErrInvalidStructure, ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub), hex.EncodeToString(priv), nil
}

// PublicKeyFromPrivate extracts the hex public half of a private key.
func PublicKeyFromPrivate(privHex string) (string, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("%w: malformed private key", ErrInvalidSignature)
	}
	pub := ed25519.PrivateKey(raw).Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub), nil
}

// SignBytes signs data with the hex-encoded private key.
func SignBytes(privHex string, data []byte) (string, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("%w: malformed private key", ErrInvalidSignature)
	}
	sig := ed25519.Sign(ed25519.PrivateKey(raw), data)
	return hex.EncodeToString(sig), nil
}

// VerifyBytes checks sigHex over data against the hex-encoded public key.
func VerifyBytes(pubHex string, data []byte, sigHex string) bool {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize || len(sig) > MaxSignatureLen {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig)
}

// signatureOversized reports whether a hex signature decodes past the raw
// byte cap. Undecodable input counts as oversized structure, not a crypto
// failure.
func signatureOversized(sigHex string) bool {
	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return true
	}
	return len(raw) > MaxSignatureLen
}
