package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token verification failures.
var (
	ErrTokenMalformed = errors.New("malformed download token")
	ErrTokenSignature = errors.New("invalid download token signature")
	ErrTokenExpired   = errors.New("download token expired")
)

// SignedDownload is the payload carried by a download token.
type SignedDownload struct {
	Subject   string
	Path      string
	ExpiresAt time.Time
}

// URLSigner issues HMAC-SHA256 signed, expiring download tokens of the form
// subject.expiry.base64(path).signature.
type URLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewURLSigner builds a signer. A zero ttl defaults to one day.
func NewURLSigner(secret string, ttl time.Duration) *URLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &URLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens.
func (s *URLSigner) TTL() time.Duration { return s.ttl }

// Sign returns a token granting access to path on behalf of subject.
func (s *URLSigner) Sign(subject, path string) (string, time.Time, error) {
	if subject == "" || path == "" || strings.Contains(subject, ".") {
		return "", time.Time{}, fmt.Errorf("sign download: subject and path are required and subject may not contain dots")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("sign download: secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(path))
	return strings.Join([]string{subject, expiry, encoded, s.mac(subject, expiry, encoded)}, "."), expiresAt, nil
}

// Verify checks the signature and, unless allowExpired is set, the expiry.
func (s *URLSigner) Verify(token string, allowExpired bool) (*SignedDownload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return nil, ErrTokenMalformed
	}
	subject, expiry, encoded, signature := parts[0], parts[1], parts[2], parts[3]
	if !hmac.Equal([]byte(s.mac(subject, expiry, encoded)), []byte(signature)) {
		return nil, ErrTokenSignature
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return nil, ErrTokenMalformed
	}
	path, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrTokenMalformed
	}
	download := &SignedDownload{Subject: subject, Path: string(path), ExpiresAt: time.Unix(unix, 0)}
	if !allowExpired && s.now().After(download.ExpiresAt) {
		return download, ErrTokenExpired
	}
	return download, nil
}

func (s *URLSigner) mac(subject, expiry, encoded string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(subject + "|" + expiry + "|" + encoded))
	return hex.EncodeToString(h.Sum(nil))
}
