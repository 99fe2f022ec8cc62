package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	return users
}

// conflict must be called with a lock held; empty usernames and emails never collide.
func (repo *userRepository) conflict(username, email string, excludedIDs ...string) error {
	for _, usr := range repo.db.users {
		if core.ContainsString(excludedIDs, usr.ID) {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}
	return repo.conflict(username, email, ids...)
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.conflict(usr.Username, usr.Email); err != nil {
		return user.User{}, err
	}
	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.query() {
		if filter == nil || matchesUser(u, filter) {
			users = append(users, u)
		}
	}
	sortUsers(users, ordering)
	return users, nil
}

func matchesUser(u user.User, filter *user.QueryFilter) bool {
	// users with search keyword matching any Name, Username or Email ?
	if filter.Search != "" &&
		!containsFold(u.Name, filter.Search) && !containsFold(u.Username, filter.Search) && !containsFold(u.Email, filter.Search) {
		return false
	}
	// users with any of the specified roles
	if len(filter.Roles) > 0 {
		var found bool
		for _, r := range filter.Roles {
			if u.RoleStartsWith(r) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && u.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && u.CreatedAt.Before(filter.CreatedFrom.UTC()) {
		return false
	}
	if !filter.CreatedTo.IsZero() && u.CreatedAt.After(filter.CreatedTo.UTC()) {
		return false
	}
	return true
}

func sortUsers(users []user.User, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case "name":
				cmp = strings.Compare(a.Name, b.Name)
			case "username":
				cmp = strings.Compare(a.Username, b.Username)
			case "email":
				cmp = strings.Compare(a.Email, b.Email)
			case "is_active":
				cmp = compareBool(a.IsActive, b.IsActive)
			case "created_at":
				cmp = a.CreatedAt.Compare(b.CreatedAt)
			case "updated_at":
				cmp = a.UpdatedAt.Compare(b.UpdatedAt)
			case "last_login":
				cmp = a.LastLogin.Compare(b.LastLogin)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return false
	})
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var match func(u *user.User) bool
	switch {
	case filter.ID != "":
		if usr, ok := repo.db.users[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	case filter.Username != "":
		match = func(u *user.User) bool { return u.Username == filter.Username }
	case filter.Email != "":
		match = func(u *user.User) bool { return u.Email == filter.Email }
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
		match = func(u *user.User) bool { return u.Username == uname || u.Email == email }
	default:
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.db.users {
		if match(usr) {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.conflict(usr.Username, usr.Email, usr.ID); err != nil {
		return user.User{}, err
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.users[id]; ok {
			delete(repo.db.users, id)
			cnt++
		}
	}
	return cnt, nil
}
