package ingest

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Credentials is an ingest key pair in its transport encoding.
type Credentials struct {
	keyID   string
	encoded string
}

// NewCredentials validates the key pair and encodes it as base64("keyId:secret").
func NewCredentials(keyID, secret string) (Credentials, error) {
	keyID = strings.TrimSpace(keyID)
	secret = strings.TrimSpace(secret)

	if keyID == "" || secret == "" {
		return Credentials{}, ErrMissingCredentials
	}
	if strings.Contains(keyID, ":") {
		return Credentials{}, fmt.Errorf("%w: key id must not contain ':'", ErrCredentialEncoding)
	}
	for _, part := range []string{keyID, secret} {
		if !utf8.ValidString(part) {
			return Credentials{}, fmt.Errorf("%w: invalid UTF-8", ErrCredentialEncoding)
		}
		if strings.IndexFunc(part, unicode.IsControl) >= 0 {
			return Credentials{}, fmt.Errorf("%w: control characters are not allowed", ErrCredentialEncoding)
		}
	}

	return Credentials{
		keyID:   keyID,
		encoded: base64.StdEncoding.EncodeToString([]byte(keyID + ":" + secret)),
	}, nil
}

// IsZero reports whether no key pair is configured.
func (c Credentials) IsZero() bool {
	return c.encoded == ""
}

// KeyID returns the public half of the key pair.
func (c Credentials) KeyID() string {
	return c.keyID
}

func (c Credentials) basicAuth() string {
	return "Basic " + c.encoded
}
