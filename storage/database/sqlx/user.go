package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

const userColumns = "id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login"

// userRow maps the users table; empty usernames and emails are stored as NULL so they stay unique.
type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive,
		Roles:        []string(row.Roles),
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin.Time,
	}
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DBExecutor) user.Repository {
	return &userRepository{base{db: db}}
}

// trapUserErr maps "no rows" to user.ErrNotFound and unique violations to the uniqueness errors.
func trapUserErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	if code, constraint := pqError(err); code == codeUniqueViolation {
		if strings.Contains(constraint, "username") {
			return user.ErrUsernameExists
		}
		return user.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	var q query
	q.where("username = ? OR email = ?", username, email)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q.where("id NOT IN (?)", ids)
	}
	stmt, args, err := q.build("SELECT "+userColumns+" FROM users", "LIMIT 1")
	if err != nil {
		return err
	}

	var row userRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, stmt, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	if username != "" && row.Username.String == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row := toUserRow(usr)
	_, err := repo.getExec(exec).NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :name, :username, :email, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login)`,
		row)
	if err != nil {
		return user.User{}, trapUserErr(err, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	var q query
	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := like(filter.Search)
			q.where("name ILIKE ? OR username ILIKE ? OR email ILIKE ?", val, val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			patterns := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				patterns = append(patterns, role+"%")
			}
			q.where("EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role ILIKE ANY (?))", pq.StringArray(patterns))
		}
		if filter.IsActive != nil {
			q.where("is_active = ?", *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			q.where("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			q.where("created_at <= ?", filter.CreatedTo.UTC())
		}
	}
	stmt, args, err := q.build("SELECT "+userColumns+" FROM users", orderBy(ordering, "created_at DESC"))
	if err != nil {
		return nil, err
	}

	var rows []userRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var q query
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		q.where("id = ?", filter.ID)
	case filter.Username != "":
		q.where("username = ?", filter.Username)
	case filter.Email != "":
		q.where("email = ?", filter.Email)
	case len(filter.UsernameOrEmail) > 0:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		q.where("username = ? OR email = ?", uname, email)
	default:
		return user.User{}, user.ErrNotFound
	}
	stmt, args, err := q.build("SELECT "+userColumns+" FROM users", "LIMIT 1")
	if err != nil {
		return user.User{}, err
	}

	var row userRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, stmt, args...); err != nil {
		return user.User{}, trapUserErr(err, "finding user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := toUserRow(usr)
	err := update(ctx, repo.getExec(exec), `
		UPDATE users SET
			name = :name, username = :username, email = :email, is_active = :is_active, roles = :roles,
			password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`,
		row, user.ErrNotFound)
	if err != nil {
		return user.User{}, trapUserErr(err, "updating user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM users WHERE id = ANY ($1::uuid[])", pq.StringArray(valid))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	return int(cnt), errors.Wrap(err, "deleting users")
}
