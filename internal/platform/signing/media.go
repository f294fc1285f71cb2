// Package signing issues expiring, user-bound media URLs so lesson videos
// held in object storage are only playable by the viewer they were issued to.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	paramExp = "exp"
	paramUID = "uid"
	paramSig = "sig"
)

var (
	ErrMissingSignature = errors.New("signing: missing signed params")
	ErrExpired          = errors.New("signing: url expired")
	ErrBadSignature     = errors.New("signing: signature mismatch")
)

type Signer struct {
	Secret []byte
	TTL    time.Duration

	now func() time.Time
}

// New returns a signer whose URLs expire after ttl (15 minutes when ttl <= 0).
func New(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Signer{Secret: []byte(secret), TTL: ttl, now: time.Now}
}

// SignURL appends exp, uid and sig query parameters to rawURL. A nil signer
// or an empty secret returns rawURL unchanged.
func (s *Signer) SignURL(rawURL, userID string) (string, error) {
	if s == nil || len(s.Secret) == 0 || strings.TrimSpace(rawURL) == "" {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Del(paramExp)
	q.Del(paramUID)
	q.Del(paramSig)
	u.RawQuery = q.Encode()

	exp := s.clock().Add(s.TTL).Unix()
	sig := s.signValue(canonical(u), userID, exp)

	q.Set(paramExp, strconv.FormatInt(exp, 10))
	q.Set(paramUID, userID)
	q.Set(paramSig, sig)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyURL checks a URL produced by SignURL and returns the bound user id.
func (s *Signer) VerifyURL(signedURL string) (string, error) {
	u, err := url.Parse(signedURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	uid := strings.TrimSpace(q.Get(paramUID))
	expStr := strings.TrimSpace(q.Get(paramExp))
	sig := strings.TrimSpace(q.Get(paramSig))
	if uid == "" || expStr == "" || sig == "" {
		return "", ErrMissingSignature
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", ErrMissingSignature
	}
	if s.clock().Unix() > exp {
		return "", ErrExpired
	}
	q.Del(paramExp)
	q.Del(paramUID)
	q.Del(paramSig)
	u.RawQuery = q.Encode()

	if !hmac.Equal([]byte(sig), []byte(s.signValue(canonical(u), uid, exp))) {
		return "", ErrBadSignature
	}
	return uid, nil
}

func (s *Signer) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *Signer) signValue(resource, userID string, exp int64) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(resource))
	mac.Write([]byte("|"))
	mac.Write([]byte(userID))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// canonical is host + path + sorted query; scheme is ignored so http and
// https variants of the same object verify alike.
func canonical(u *url.URL) string {
	return u.Host + u.EscapedPath() + "?" + u.RawQuery
}
