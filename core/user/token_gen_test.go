package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGenerator(t *testing.T) {
	timeout := 3 * 24 * time.Hour
	issuedAt := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	usr := User{
		ID:        "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Name:      "T",
		Username:  "t",
		Email:     "t@test.test",
		IsActive:  true,
		CreatedAt: issuedAt,
		UpdatedAt: issuedAt,
		LastLogin: issuedAt.Add(-time.Hour),
	}
	require.NoError(t, usr.SetPassword("pwd"))

	gen := NewTokenGenerator("secret", timeout)
	gen.now = func() time.Time { return issuedAt }
	token := gen.Make(usr, PurposePasswordReset)
	tampered := []byte(token)
	if tampered[len(tampered)-1] == 'A' {
		tampered[len(tampered)-1] = 'B'
	} else {
		tampered[len(tampered)-1] = 'A'
	}

	otherPwdUsr := usr
	require.NoError(t, otherPwdUsr.SetPassword("other"))
	loggedInUsr := usr
	loggedInUsr.LastLogin = issuedAt.Add(time.Minute)

	tests := []struct {
		name    string
		gen     *TokenGenerator
		usr     User
		purpose string
		token   string
		at      time.Time
		wantErr error
	}{
		{name: "no token", wantErr: errInvalidToken},
		{name: "no separator", token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid timestamp", token: "!!-sig", wantErr: errInvalidToken},
		{name: "tampered signature", token: string(tampered), wantErr: errInvalidToken},
		{name: "password changed", usr: otherPwdUsr, token: token, wantErr: errInvalidToken},
		{name: "logged in since", usr: loggedInUsr, token: token, wantErr: errInvalidToken},
		{name: "other purpose", purpose: "email_confirm", token: token, wantErr: errInvalidToken},
		{name: "other secret key", gen: NewTokenGenerator("other", timeout), token: token, wantErr: errInvalidToken},
		{name: "expired", token: token, at: issuedAt.Add(timeout + time.Hour), wantErr: errTokenExpired},
		{name: "valid at the timeout", token: token, at: issuedAt.Add(timeout)},
		{name: "valid", token: token},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := gen
			if tt.gen != nil {
				g = tt.gen
			}
			at := issuedAt
			if !tt.at.IsZero() {
				at = tt.at
			}
			g.now = func() time.Time { return at }
			u := usr
			if tt.usr.ID != "" {
				u = tt.usr
			}
			purpose := PurposePasswordReset
			if tt.purpose != "" {
				purpose = tt.purpose
			}
			assert.Equal(t, tt.wantErr, g.Verify(u, purpose, tt.token))
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}
	id, err := decodeUID(EncodeUID(usr))
	require.NoError(t, err)
	assert.Equal(t, usr.ID, id)

	_, err = decodeUID("!!!")
	assert.Error(t, err)
}
