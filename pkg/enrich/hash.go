package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ContentHash returns the SHA-256 of the RFC 8785 canonical form of a JSON
// document. Two semantically identical records hash identically regardless
// of key order or whitespace.
func ContentHash(jsonDoc []byte) (string, error) {
	canonical, err := jcs.Transform(jsonDoc)
	if err != nil {
		return "", fmt.Errorf("canonicalize enrichment record: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
