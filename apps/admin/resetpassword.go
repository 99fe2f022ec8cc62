package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	uname = core.CleanString(uname, true /* lower */)
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, uname}})
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = cli.usrRepo.UpdateUser(ctx, usr)
	return err
}
