package certificate

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// codeByteLen is the entropy of a verification code: 16 bytes = 128 bits.
const codeByteLen = 16

// GenerateVerificationCode produces a new random verification code and its
// SHA-256 digest. Only the digest is ever stored; the code itself is handed
// to the certificate holder exactly once.
func GenerateVerificationCode() (code, hash string, err error) {
	buf := make([]byte, codeByteLen)
	if _, err = rand.Read(buf); err != nil {
		return "", "", errors.Wrap(err, "reading random bytes")
	}
	code = hex.EncodeToString(buf)
	return code, HashCode(code), nil
}

// HashCode returns the hex-encoded SHA-256 digest of a verification code.
// It is pure and deterministic.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// MatchCode reports whether candidate's digest equals the stored integrity
// hash, in constant time.
func MatchCode(storedHash, candidate string) bool {
	if candidate == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(HashCode(candidate))) == 1
}

// newCertificateID generates a human-readable certificate identifier,
// e.g. "CERT-3F07A1B29C44D5E6".
func newCertificateID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	return "CERT-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}
