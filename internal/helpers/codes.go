package helpers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/argon2"
)

// BackupCodeAlphabet omits characters that are easy to confuse (0/O, 1/I/L).
const BackupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

var argonParams = argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  32,
	KeyLength:   32,
}

// CreateHash returns an encoded argon2id hash of a one-time code.
func CreateHash(code string) (string, error) {
	hash, err := argon2id.CreateHash(code, &argonParams)
	if err != nil {
		return "", errors.New("can not create hash")
	}

	return hash, nil
}

// CompareHash checks code against an encoded argon2id hash in constant time.
func CompareHash(code string, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(code, hash)
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// CompareDummyHash spends the same work as CompareHash so that callers without a
// stored hash answer in the same time as callers with one.
func CompareDummyHash(code string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = CreateHash("dummy-code-for-timing")
	})
	_, _ = CompareHash(code, dummyHash)
}

func ConstantTimeEqual(a string, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomFromCharset(charset string, length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}

// GenerateNumericCode returns a random code of decimal digits for SMS and email challenges.
func GenerateNumericCode(length int) (string, error) {
	return randomFromCharset("0123456789", length)
}

// GenerateBackupCodes returns count canonical codes. Duplicates within a set are redrawn.
func GenerateBackupCodes(count int, length int) ([]string, error) {
	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := randomFromCharset(BackupCodeAlphabet, length)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// FormatBackupCode splits codes of eight or more characters with a hyphen for display.
func FormatBackupCode(code string) string {
	if len(code) < 8 {
		return code
	}
	half := len(code) / 2
	return code[:half] + "-" + code[half:]
}

// CanonicalizeBackupCode removes separators and upper-cases user input.
func CanonicalizeBackupCode(input string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(input) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsBackupCodeShape reports whether a canonical code has the configured length and alphabet.
func IsBackupCodeShape(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(BackupCodeAlphabet, r) {
			return false
		}
	}
	return true
}

func NewBackupCodeSalt() (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt), nil
}

// HashBackupCode derives a deterministic salted hash so a redemption can be claimed
// with a single conditional update on (config, hash).
func HashBackupCode(salt string, code string) string {
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		saltBytes = []byte(salt)
	}
	key := argon2.IDKey([]byte(code), saltBytes, 1, 16*1024, 1, 32)
	return hex.EncodeToString(key)
}

// IsNumericCode reports whether s is exactly length decimal digits.
func IsNumericCode(s string, length int) bool {
	return len(s) == length && isDigits(s)
}
