package core

// canonical.go – deterministic serialization for hashing and signing.
//
// The canonical form is a recursive key-sorted JSON rendering: objects are
// emitted with lexicographically sorted keys, arrays keep their order and
// numbers keep their literal text (no float round-trip). Hashes and
// signatures are always computed over these bytes, so two nodes produce
// byte-identical material for the same value.

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON renders v into its canonical byte form.
func CanonicalJSON(v interface{}) ([]byte, error) {
	tree, err := toTree(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HashBytes is the engine-wide digest: hex-encoded SHA-256.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// toTree round-trips v through JSON into a generic tree, preserving number
// literals via json.Number.
func toTree(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}
	return tree, nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case json.Number:
		buf.WriteString(t.String())
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// canonicalWithout renders v canonically after dropping the listed top-level
// keys. Used for signable forms: signatures never cover themselves.
func canonicalWithout(v interface{}, drop ...string) ([]byte, error) {
	tree, err := toTree(v)
	if err != nil {
		return nil, err
	}
	m, ok := tree.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: signable form requires an object", ErrInvalidStructure)
	}
	for _, k := range drop {
		delete(m, k)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
