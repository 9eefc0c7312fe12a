// Package verification issues tamper-evident verification records for
// income reports and answers rate-limited lookups against them.
package verification

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
)

const (
	// CodePrefix starts every verification code.
	CodePrefix = "GIG-"

	// codeBytes of randomness give 64 bits of entropy per code.
	codeBytes = 8
)

// Hash scheme identifiers stored alongside each record.
const (
	SchemeSHA256     = "sha256"
	SchemeHMACSHA256 = "hmac-sha256"
)

// CodeGenerator produces new verification codes.
type CodeGenerator func() (string, error)

// RandomCodes returns a generator reading from crypto/rand.
func RandomCodes() CodeGenerator {
	return func() (string, error) {
		return GenerateCode(rand.Reader)
	}
}

// GenerateCode reads 64 random bits from r and renders them as upper-case
// hex behind CodePrefix.
func GenerateCode(r io.Reader) (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return CodePrefix + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// NormalizeCode canonicalizes user-entered codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HashInput is the data a verification hash binds together.
type HashInput struct {
	IssuedAt time.Time
	Code     string
	UserID   string
	Figures  model.IncomeFigures
}

// Hasher computes verification hashes.
type Hasher interface {
	Hash(in HashInput) string
	Scheme() string
}

// SHA256Hasher binds the code to the headline figures with a plain digest.
type SHA256Hasher struct{}

// Hash implements Hasher.
func (SHA256Hasher) Hash(in HashInput) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%.2f|%.2f|%.2f",
		in.Code,
		in.Figures.Total90Days,
		in.Figures.MonthlyAverage,
		in.Figures.WeeklyAverage)))
	return hex.EncodeToString(sum[:])
}

// Scheme implements Hasher.
func (SHA256Hasher) Scheme() string { return SchemeSHA256 }

// HMACHasher keys the digest with a server secret and additionally binds the
// user and issuance time, so a valid hash cannot be produced without the secret.
type HMACHasher struct {
	secret []byte
}

// NewHMACHasher creates an HMAC-SHA256 hasher.
func NewHMACHasher(secret string) (*HMACHasher, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("hmac secret must be at least 32 bytes")
	}
	return &HMACHasher{secret: []byte(secret)}, nil
}

// Hash implements Hasher.
func (h *HMACHasher) Hash(in HashInput) string {
	mac := hmac.New(sha256.New, h.secret)
	_, _ = fmt.Fprintf(mac, "%s|%s|%s|%.2f|%.2f|%.2f",
		in.Code,
		in.UserID,
		in.IssuedAt.UTC().Format(time.RFC3339Nano),
		in.Figures.Total90Days,
		in.Figures.MonthlyAverage,
		in.Figures.WeeklyAverage)
	return hex.EncodeToString(mac.Sum(nil))
}

// Scheme implements Hasher.
func (h *HMACHasher) Scheme() string { return SchemeHMACSHA256 }

// Matches reports whether hash is what hasher produces for in, using a
// constant-time comparison.
func Matches(hasher Hasher, in HashInput, hash string) bool {
	return hmac.Equal([]byte(hasher.Hash(in)), []byte(strings.ToLower(hash)))
}
