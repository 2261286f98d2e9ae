package storage

import (
	"crypto/rand"
	"math/big"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const maxBaseLength = 50

var (
	nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)
	safeExtension   = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
	suffixLimit     = big.NewInt(1_000_000_000)
)

// Extension returns the lower-cased extension of name including the dot.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(filepath.Base(name)))
}

// SanitizeBase returns the original name without its extension, every
// non-alphanumeric byte replaced by '_', truncated to 50 bytes.
func SanitizeBase(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = nonAlphaNumeric.ReplaceAllString(base, "_")
	if len(base) > maxBaseLength {
		base = base[:maxBaseLength]
	}
	return base
}

// GenerateName builds {field}-{unixMillis}-{random}-{sanitized}{ext}.
// The result never contains a path separator.
func GenerateName(field Kind, original string, now time.Time) string {
	ext := Extension(strings.ReplaceAll(original, "\\", "/"))
	if !safeExtension.MatchString(ext) {
		ext = ""
	}
	var b strings.Builder
	b.WriteString(string(field))
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('-')
	b.WriteString(randomSuffix())
	b.WriteByte('-')
	b.WriteString(SanitizeBase(original))
	b.WriteString(ext)
	return b.String()
}

func randomSuffix() string {
	n, err := rand.Int(rand.Reader, suffixLimit)
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return n.String()
}
