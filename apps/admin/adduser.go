package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

// addUser updates or creates the user holding uname or email, and activates it.
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, isAdmin bool) (user.User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, err
		}
		usr = user.User{Username: uname, Email: email, CreatedAt: now}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, errors.Wrap(err, "hashing password")
	}
	return cli.usrRepo.UpdateOrCreateUser(ctx, usr)
}
