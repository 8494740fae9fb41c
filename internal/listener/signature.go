package listener

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// signatureVerifier checks the lowercase hex HMAC-SHA256 of the raw request
// body. The comparison is exact.
type signatureVerifier struct {
	key []byte
}

func (v *signatureVerifier) verify(body []byte, signature string) error {
	if len(v.key) == 0 {
		return fmt.Errorf("%w: signing key not configured", ErrUnauthorized)
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrUnauthorized)
	}

	mac := hmac.New(sha256.New, v.key)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrUnauthorized
	}
	return nil
}

// Sign returns the signature the indexer would send for body. Used by tests
// and by operators replaying captured notifications.
func Sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
