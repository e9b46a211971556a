package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tokenFileName = "api_token"

// GenerateToken returns a new 256-bit hex-encoded API token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the hex SHA-256 of token, the form stored in config.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// LoadOrCreateToken reads the bootstrap API token from configDir/api_token,
// or generates and persists a new one if the file is missing or empty.
// The boolean reports whether a token was created.
func LoadOrCreateToken(configDir string) (string, bool, error) {
	path := filepath.Join(configDir, tokenFileName)

	data, err := os.ReadFile(path)
	if token := strings.TrimSpace(string(data)); err == nil && token != "" {
		return token, false, nil
	}

	token, err := RotateToken(configDir)
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// RotateToken generates a new bootstrap token, replacing the existing one.
func RotateToken(configDir string) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, tokenFileName), []byte(token), 0600); err != nil {
		return "", fmt.Errorf("write token: %w", err)
	}
	return token, nil
}

// TokenPath returns where the bootstrap token lives under configDir.
func TokenPath(configDir string) string {
	return filepath.Join(configDir, tokenFileName)
}

// Verifier checks bearer tokens against a set of named SHA-256 hashes.
type Verifier struct {
	names  []string
	hashes [][]byte
}

// NewVerifier builds a Verifier from name → hex hash pairs. Invalid hashes
// are rejected so a typo in config cannot silently lock everyone out.
func NewVerifier(hashes map[string]string) (*Verifier, error) {
	v := &Verifier{}
	for name, h := range hashes {
		raw, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("api token %q: token_hash must be a hex SHA-256 digest", name)
		}
		v.names = append(v.names, name)
		v.hashes = append(v.hashes, raw)
	}
	return v, nil
}

// Add registers a raw token under name.
func (v *Verifier) Add(name, token string) {
	h := sha256.Sum256([]byte(token))
	v.names = append(v.names, name)
	v.hashes = append(v.hashes, h[:])
}

// Len returns the number of registered tokens.
func (v *Verifier) Len() int {
	return len(v.hashes)
}

// Verify returns the name of the token matching token. Every registered hash
// is compared in constant time.
func (v *Verifier) Verify(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(token))

	match := -1
	for i, h := range v.hashes {
		if subtle.ConstantTimeCompare(sum[:], h) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return "", false
	}
	return v.names[match], true
}
