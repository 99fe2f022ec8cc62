package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
	testutil "github.com/trezcool/elimu/tests"
)

func TestService_CheckUniqueness(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, app.UserRepo, "Bob", "bob", "bob@test.test", "pwd", nil, true)

	tests := []struct {
		name      string
		uname     string
		email     string
		excl      []user.User
		wantField string
		wantErr   error
	}{
		{name: "username taken", uname: "bob", email: "other@test.test", wantField: "username", wantErr: user.ErrUsernameExists},
		{name: "email taken", uname: "other", email: "bob@test.test", wantField: "email", wantErr: user.ErrEmailExists},
		{name: "owner excluded", uname: "bob", email: "bob@test.test", excl: []user.User{usr}},
		{name: "free", uname: "alice", email: "alice@test.test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := app.UserSvc.CheckUniqueness(ctx, tt.uname, tt.email, tt.excl...)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			testutil.AssertFieldError(t, err, tt.wantField, tt.wantErr)
		})
	}
}

func TestService_Create(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()

	usr, err := app.UserSvc.Create(ctx, user.NewUser{
		Name:     "Alice",
		Username: "alice",
		Email:    "alice@test.test",
		Password: "s3cret-pwd",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsActive)
	assert.Equal(t, []string{}, usr.Roles)
	assert.NoError(t, usr.CheckPassword("s3cret-pwd"))

	got, err := app.UserSvc.GetByUsernameOrEmail(ctx, " ALICE@test.test ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = app.UserSvc.Create(ctx, user.NewUser{Name: "Alice 2", Username: "alice", Password: "pwd"})
	assert.ErrorIs(t, err, user.ErrUsernameExists)
}

func TestNewUser_Validate(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	testutil.CreateUser(t, app.UserRepo, "Bob", "bob", "bob@test.test", "pwd", nil, true)

	nu := user.NewUser{
		Name:            "  Bobby ",
		Username:        " BOB ",
		Email:           "bobby@test.test",
		Password:        "Sup3r-Secr3t!",
		PasswordConfirm: "Sup3r-Secr3t!",
	}
	err := nu.Validate(ctx, app.Validate, app.UserSvc)
	testutil.AssertFieldError(t, err, "username", user.ErrUsernameExists)
	assert.Equal(t, "Bobby", nu.Name)
	assert.Equal(t, "bob", nu.Username)

	nu.Username = "bobby"
	nu.Password, nu.PasswordConfirm = "pwd", "pwd"
	err = nu.Validate(ctx, app.Validate, app.UserSvc)
	var vErrs validator.ValidationErrors
	if assert.ErrorAs(t, err, &vErrs) {
		assert.Equal(t, "password", vErrs[0].Field())
		assert.Equal(t, "pwdminlen", vErrs[0].Tag())
	}

	nu.Password, nu.PasswordConfirm = "Sup3r-Secr3t!", "Sup3r-Secr3t!"
	assert.NoError(t, nu.Validate(ctx, app.Validate, app.UserSvc))
}

func TestService_Query(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	now := time.Now()

	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.test", "", []string{user.RoleAdminOwner}, true, now.Add(-3*time.Hour))
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teach", "teach@test.test", "", []string{user.RoleTeacher}, true, now.Add(-2*time.Hour))
	inactive := testutil.CreateUser(t, app.UserRepo, "Gone", "gone", "gone@test.test", "", nil, false, now.Add(-time.Hour))

	ids := func(users []user.User) []string {
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.ID)
		}
		return out
	}

	tests := []struct {
		name     string
		filter   *user.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all, newest first", want: []string{inactive.ID, teacher.ID, admin.ID}},
		{name: "by role", filter: &user.QueryFilter{Roles: []string{user.RoleAdmin}}, want: []string{admin.ID}},
		{name: "inactive", filter: &user.QueryFilter{IsActive: testutil.Ptr(false)}, want: []string{inactive.ID}},
		{name: "search", filter: &user.QueryFilter{Search: "TEACH"}, want: []string{teacher.ID}},
		{
			name:     "ordered by name",
			ordering: []core.DBOrdering{{Field: "name", Ascending: true}},
			want:     []string{admin.ID, inactive.ID, teacher.ID},
		},
		{
			name:     "unknown ordering ignored",
			ordering: []core.DBOrdering{{Field: "password_hash", Ascending: true}},
			want:     []string{inactive.ID, teacher.ID, admin.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := app.UserSvc.Query(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestService_UpdateDelete(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, app.UserRepo, "Bob", "bob", "bob@test.test", "pwd", nil, true)

	updated, err := app.UserSvc.Update(ctx, usr.ID, user.UpdateUser{
		Name:     "Robert",
		Username: "robert",
		Email:    usr.Email,
		IsActive: testutil.Ptr(false),
		Roles:    []string{user.RoleTeacher},
		Password: "new-pwd",
	})
	require.NoError(t, err)
	assert.Equal(t, "Robert", updated.Name)
	assert.Equal(t, "robert", updated.Username)
	assert.False(t, updated.IsActive)
	assert.Equal(t, []string{user.RoleTeacher}, updated.Roles)
	assert.NoError(t, updated.CheckPassword("new-pwd"))

	_, err = app.UserSvc.Update(ctx, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", user.UpdateUser{Name: "x"})
	assert.ErrorIs(t, err, user.ErrNotFound)

	require.NoError(t, app.UserSvc.Delete(ctx, usr.ID))
	_, err = app.UserSvc.GetByID(ctx, usr.ID)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestService_PasswordReset(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, app.UserRepo, "Bob", "bob", "bob@test.test", "old-pwd", nil, true)
	testutil.CreateUser(t, app.UserRepo, "Gone", "gone", "gone@test.test", "pwd", nil, false)

	t.Run("unknown email", func(t *testing.T) {
		assert.ErrorIs(t, app.UserSvc.RequestPasswordReset(ctx, "nobody@test.test"), user.ErrNotFound)
	})

	t.Run("inactive user", func(t *testing.T) {
		assert.ErrorIs(t, app.UserSvc.RequestPasswordReset(ctx, "gone@test.test"), user.ErrNotFound)
		assert.Empty(t, app.Mail.SentMessages())
	})

	app.Mail.Reset()
	require.NoError(t, app.UserSvc.RequestPasswordReset(ctx, "BOB@test.test"))
	sent := app.Mail.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "password_reset", msg.TemplateName)
	assert.Equal(t, usr.Email, msg.To[0].Address)
	data, ok := msg.TemplateData.(map[string]interface{})
	require.True(t, ok)
	uid, token := data["UID"].(string), data["Token"].(string)
	assert.Contains(t, msg.TextContent, "/password-reset/"+uid+"/"+token)

	t.Run("invalid uid", func(t *testing.T) {
		err := app.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: "!!", Token: token, Password: "new-pwd"})
		testutil.AssertFieldError(t, err, "uid", nil)
	})

	t.Run("invalid token", func(t *testing.T) {
		err := app.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: "NRXWY-sigsig-sig", Password: "new-pwd"})
		testutil.AssertFieldError(t, err, "token", nil)
	})

	require.NoError(t, app.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "new-pwd"}))
	got, err := app.UserSvc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("new-pwd"))

	t.Run("token used once", func(t *testing.T) {
		err := app.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "other-pwd"})
		testutil.AssertFieldError(t, err, "token", nil)
	})
}
