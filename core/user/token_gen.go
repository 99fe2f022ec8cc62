package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Token purposes; a token only verifies for the purpose it was made for.
const (
	PurposePasswordReset = "password_reset"
)

var (
	tokenSalt  = []byte("elimu.core.user.tokens")
	tokenEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// TokenGenerator makes stateless one-time tokens for the links emailed to users.
// A token is "<hours since epoch, base 36>-<HMAC>" and stops verifying once
// the user's password or last login changes, or after the timeout.
type TokenGenerator struct {
	key     []byte
	timeout time.Duration
	now     func() time.Time
}

func NewTokenGenerator(secretKey string, timeout time.Duration) *TokenGenerator {
	key := sha256.Sum256(append(append([]byte{}, tokenSalt...), secretKey...))
	return &TokenGenerator{key: key[:], timeout: timeout, now: time.Now}
}

func (g *TokenGenerator) Make(usr User, purpose string) string {
	return g.make(usr, purpose, g.stamp(g.now()))
}

func (g *TokenGenerator) Verify(usr User, purpose, token string) error {
	tsPart, _, ok := strings.Cut(token, "-")
	if !ok || tsPart == "" {
		return errInvalidToken
	}
	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil || ts < 0 {
		return errInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(g.make(usr, purpose, ts)), []byte(token)) == 0 {
		return errInvalidToken
	}
	if time.Duration(g.stamp(g.now())-ts)*time.Hour > g.timeout {
		return errTokenExpired
	}
	return nil
}

func (g *TokenGenerator) stamp(t time.Time) int64 {
	return int64(t.Sub(tokenEpoch) / time.Hour)
}

func (g *TokenGenerator) make(usr User, purpose string, ts int64) string {
	stamp := strconv.FormatInt(ts, 36)
	mac := hmac.New(sha256.New, g.key)
	for _, part := range [][]byte{
		[]byte(purpose),
		[]byte(usr.ID),
		usr.PasswordHash,
		[]byte(usr.LastLogin.UTC().Format(time.RFC3339Nano)),
		[]byte(stamp),
	} {
		mac.Write(part)
		mac.Write([]byte{0})
	}
	return stamp + "-" + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
