package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// DownloadTokenLength is the length of a download token in random bytes
	DownloadTokenLength = 32

	// licenseCodeGroups is the number of dash-separated groups in a key code
	licenseCodeGroups = 4

	// licenseCodeGroupLen is the number of characters per group
	licenseCodeGroupLen = 4
)

// licenseCodeAlphabet deliberately omits 0/O and 1/I so codes survive being
// read aloud or retyped from a screenshot.
const licenseCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewLicenseCode generates a key code of the form AB-XXXX-XXXX-XXXX-XXXX.
func NewLicenseCode() (string, error) {
	randomBytes := make([]byte, licenseCodeGroups*licenseCodeGroupLen)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	var b strings.Builder
	b.WriteString("AB")
	for i, rb := range randomBytes {
		if i%licenseCodeGroupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(licenseCodeAlphabet[int(rb)%len(licenseCodeAlphabet)])
	}
	return b.String(), nil
}

// NewDownloadToken generates an opaque URL-safe download token.
func NewDownloadToken() (string, error) {
	randomBytes := make([]byte, DownloadTokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// ExtractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer eyJhbGciOi..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
