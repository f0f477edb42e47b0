// Package signing implements a minimal HMAC helper for generating and verifying
// expiring download URLs for files stored on the local filesystem.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for a storage key and expiry.
func (s *Signer) Sign(key string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	payload := fmt.Sprintf("%s:%d", key, expiresUnix)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one. It does not
// check whether the expiry has passed; see Verify.
func (s *Signer) Validate(key, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(key, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Verify validates the signature and rejects expiries before now.
func (s *Signer) Verify(key, expires, signature string, now time.Time) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || time.Unix(exp, 0).Before(now) {
		return false
	}
	return s.Validate(key, expires, signature)
}

// URL builds base?key=...&expires=...&signature=... for key valid until expires.
func (s *Signer) URL(base, key string, expires time.Time) string {
	exp := expires.Unix()
	q := url.Values{}
	q.Set("key", key)
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("signature", s.Sign(key, exp))
	return base + "?" + q.Encode()
}
