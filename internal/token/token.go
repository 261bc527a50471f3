// Package token signs short-lived links to stored media so private buckets
// can be shared without exposing the object key directly.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

type payload struct {
	Key string `json:"k"`
	TS  int64  `json:"t"`
}

// Signer issues and checks media link tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a signer. A zero ttl disables expiry checks.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock replaces the signer's time source and returns s.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign encodes key and the current time into a token.
func (s *Signer) Sign(key string) (string, error) {
	if key == "" {
		return "", ErrInvalid
	}
	data, err := json.Marshal(payload{Key: key, TS: s.now().Unix()})
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(s.mac(data)), nil
}

// Verify checks integrity and age and returns the media key.
func (s *Signer) Verify(tok string) (string, error) {
	body, sigPart, ok := strings.Cut(tok, ".")
	if !ok || strings.Contains(sigPart, ".") {
		return "", ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(body)
	if err != nil {
		return "", ErrInvalid
	}
	sig, err := enc.DecodeString(sigPart)
	if err != nil {
		return "", ErrInvalid
	}
	if !hmac.Equal(s.mac(data), sig) {
		return "", ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil || pl.Key == "" {
		return "", ErrInvalid
	}
	if s.ttl > 0 && s.now().Sub(time.Unix(pl.TS, 0)) > s.ttl {
		return "", ErrExpired
	}
	return pl.Key, nil
}

func (s *Signer) mac(data []byte) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write(data)
	return m.Sum(nil)
}
