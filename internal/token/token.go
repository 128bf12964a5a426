// Package token issues and verifies action tokens: short-lived, HMAC-signed
// proofs that a user completed an action worth up to max_score points.
//
// Wire form:
//
//	base64url(payload) "." base64url(HMAC-SHA256(payload))
//
// where payload is "v1|action_id|user_id|max_score|expires_unix". Changing
// any byte of the payload invalidates the signature. Verification never
// touches storage and is safe for concurrent use.
//
// Possession of a valid, unused token is the whole authorization for one
// score operation; no identity revocation lookup is made on that path.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	version = "v1"
	sep     = "|"

	// MaxTokenLen bounds the accepted wire length before any decoding.
	MaxTokenLen = 1024
)

// Verification and issuance errors. Validate returns exactly one of the first
// four, in the order they are checked.
var (
	ErrMalformed     = errors.New("action token is malformed")
	ErrForged        = errors.New("action token signature is invalid")
	ErrExpired       = errors.New("action token has expired")
	ErrUserMismatch  = errors.New("action token belongs to another user")
	ErrInvalidClaims = errors.New("invalid action token claims")
)

var b64 = base64.RawURLEncoding.Strict()

// Claims is the verified content of an action token.
type Claims struct {
	ActionID  string
	UserID    string
	MaxScore  int64
	ExpiresAt time.Time
	// Fingerprint identifies the signed payload. Every accepted spelling of
	// one token yields the same value.
	Fingerprint string
}

// Signer signs with the current secret and verifies against the current and
// any previous secrets, so secrets can be rotated without invalidating
// tokens already in flight.
type Signer struct {
	current  []byte
	previous [][]byte
	maxTTL   time.Duration
}

// NewSigner builds a Signer. maxTTL <= 0 disables the issuance TTL cap.
func NewSigner(secret string, previous []string, maxTTL time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("token: empty secret")
	}
	s := &Signer{current: []byte(secret), maxTTL: maxTTL}
	for _, p := range previous {
		if p != "" {
			s.previous = append(s.previous, []byte(p))
		}
	}
	return s, nil
}

// Issue signs a new token for trusted callers. The token expires at now+ttl.
func (s *Signer) Issue(actionID, userID string, maxScore int64, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if !validID(actionID) || !validID(userID) || maxScore < 1 || ttl <= 0 {
		return "", time.Time{}, ErrInvalidClaims
	}
	if s.maxTTL > 0 && ttl > s.maxTTL {
		return "", time.Time{}, ErrInvalidClaims
	}
	exp := expiry(now, ttl)
	payload := canonical(Claims{ActionID: actionID, UserID: userID, MaxScore: maxScore, ExpiresAt: exp})
	sig := sign(s.current, payload)
	return b64.EncodeToString(payload) + "." + b64.EncodeToString(sig), exp, nil
}

// Validate verifies raw for authUserID at time now. Checks short-circuit in
// order: structure, signature, expiry, then user binding.
func (s *Signer) Validate(raw, authUserID string, now time.Time) (Claims, error) {
	payload, sig, err := split(raw)
	if err != nil {
		return Claims{}, err
	}
	claims, err := parse(payload)
	if err != nil {
		return Claims{}, err
	}
	if !s.verify(payload, sig) {
		return Claims{}, ErrForged
	}
	if claims.ExpiresAt.Before(now) {
		return Claims{}, ErrExpired
	}
	if claims.UserID != authUserID {
		return Claims{}, ErrUserMismatch
	}
	claims.Fingerprint = fingerprint(payload)
	return claims, nil
}

// expiry is now+ttl rounded up to the next whole second, the resolution of
// the wire format. A token never expires before the requested ttl.
func expiry(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if t := exp.Truncate(time.Second); t.Before(exp) {
		exp = t.Add(time.Second)
	}
	return exp.UTC()
}

func (s *Signer) verify(payload, sig []byte) bool {
	if hmac.Equal(sig, sign(s.current, payload)) {
		return true
	}
	for _, k := range s.previous {
		if hmac.Equal(sig, sign(k, payload)) {
			return true
		}
	}
	return false
}

// fingerprint is the idempotency key for a token: hex SHA-256 of the decoded
// payload. The signature is left out so a payload re-signed with a rotated
// secret still maps to the same key. The raw token is never persisted.
func fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func sign(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}

func canonical(c Claims) []byte {
	return []byte(strings.Join([]string{
		version,
		c.ActionID,
		c.UserID,
		strconv.FormatInt(c.MaxScore, 10),
		strconv.FormatInt(c.ExpiresAt.Unix(), 10),
	}, sep))
}

func split(raw string) (payload, sig []byte, err error) {
	if raw == "" || len(raw) > MaxTokenLen {
		return nil, nil, ErrMalformed
	}
	p, sg, ok := strings.Cut(raw, ".")
	if !ok || p == "" || sg == "" || !isBase64URL(p) || !isBase64URL(sg) {
		return nil, nil, ErrMalformed
	}
	if payload, err = b64.DecodeString(p); err != nil {
		return nil, nil, ErrMalformed
	}
	if sig, err = b64.DecodeString(sg); err != nil || len(sig) != sha256.Size {
		return nil, nil, ErrMalformed
	}
	return payload, sig, nil
}

// isBase64URL reports whether s uses only the unpadded base64url alphabet.
// The decoder alone would skip CR and LF.
func isBase64URL(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func parse(payload []byte) (Claims, error) {
	parts := strings.Split(string(payload), sep)
	if len(parts) != 5 || parts[0] != version {
		return Claims{}, ErrMalformed
	}
	if parts[1] == "" || parts[2] == "" {
		return Claims{}, ErrMalformed
	}
	maxScore, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || maxScore < 1 {
		return Claims{}, ErrMalformed
	}
	exp, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return Claims{}, ErrMalformed
	}
	return Claims{
		ActionID:  parts[1],
		UserID:    parts[2],
		MaxScore:  maxScore,
		ExpiresAt: time.Unix(exp, 0).UTC(),
	}, nil
}

func validID(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.Contains(id, sep) && len(id) <= 128
}
