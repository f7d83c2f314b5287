package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/hyperjump/civicrag/pkg/utils"
)

// Normalize canonicalizes text before hashing: Unicode NFC, whitespace collapsed, trimmed, lower-cased.
func Normalize(text string) string {
	return strings.ToLower(utils.CollapseWhitespace(norm.NFC.String(text)))
}

// ContentHash returns the hex SHA-256 of already-normalized text.
func ContentHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
