package dummydb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/profile"
)

var (
	errReferenced        = errors.New("this record is referenced by other records")
	errReferencedMissing = errors.New("the referenced record does not exist")
)

type profileRepository struct {
	db *DB
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *DB) profile.Repository {
	return &profileRepository{db: db}
}

func matchesName(first, last, search string) bool {
	return search == "" || containsFold(first, search) || containsFold(last, search) || containsFold(first+" "+last, search)
}

func byLastFirstName(last, first func(i int) string) func(i, j int) bool {
	return func(i, j int) bool {
		if last(i) != last(j) {
			return last(i) < last(j)
		}
		return first(i) < first(j)
	}
}

// parents

func (repo *profileRepository) CreateParent(_ context.Context, p profile.ParentProfile, _ ...core.DBExecutor) (profile.ParentProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = repo.db.nextPK("parent_profiles")
	repo.db.parents[p.ID] = &p
	return p, nil
}

func (repo *profileRepository) GetParent(_ context.Context, id int, _ ...core.DBExecutor) (profile.ParentProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.parents[id]; ok {
		return *p, nil
	}
	return profile.ParentProfile{}, profile.ErrParentNotFound
}

func (repo *profileRepository) QueryParents(_ context.Context, filter profile.QueryFilter, _ ...core.DBExecutor) ([]profile.ParentProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]profile.ParentProfile, 0)
	for _, p := range rows(repo.db.parents) {
		if !matchesName(p.FirstName, p.LastName, filter.Search) && !containsFold(p.Email, filter.Search) {
			continue
		}
		if filter.UserID != "" && !strPtrEquals(p.UserID, filter.UserID) {
			continue
		}
		list = append(list, p)
	}
	sort.SliceStable(list, byLastFirstName(
		func(i int) string { return list[i].LastName },
		func(i int) string { return list[i].FirstName },
	))
	return list, nil
}

func (repo *profileRepository) UpdateParent(_ context.Context, p profile.ParentProfile, _ ...core.DBExecutor) (profile.ParentProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.parents[p.ID]; !ok {
		return profile.ParentProfile{}, profile.ErrParentNotFound
	}
	repo.db.parents[p.ID] = &p
	return p, nil
}

func (repo *profileRepository) DeleteParent(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.parents[id]; !ok {
		return profile.ErrParentNotFound
	}
	for _, c := range repo.db.children {
		if c.ParentID == id {
			return core.NewValidationError(errReferenced)
		}
	}
	delete(repo.db.parents, id)
	return nil
}

// clients

func (repo *profileRepository) CreateClient(_ context.Context, c profile.ClientProfile, _ ...core.DBExecutor) (profile.ClientProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = repo.db.nextPK("client_profiles")
	repo.db.clients[c.ID] = &c
	return c, nil
}

func (repo *profileRepository) GetClient(_ context.Context, id int, _ ...core.DBExecutor) (profile.ClientProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.clients[id]; ok {
		return *c, nil
	}
	return profile.ClientProfile{}, profile.ErrClientNotFound
}

func (repo *profileRepository) QueryClients(_ context.Context, filter profile.QueryFilter, _ ...core.DBExecutor) ([]profile.ClientProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]profile.ClientProfile, 0)
	for _, c := range rows(repo.db.clients) {
		if filter.Search != "" && !containsFold(c.Name, filter.Search) && !containsFold(c.Email, filter.Search) {
			continue
		}
		list = append(list, c)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (repo *profileRepository) UpdateClient(_ context.Context, c profile.ClientProfile, _ ...core.DBExecutor) (profile.ClientProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.clients[c.ID]; !ok {
		return profile.ClientProfile{}, profile.ErrClientNotFound
	}
	repo.db.clients[c.ID] = &c
	return c, nil
}

func (repo *profileRepository) DeleteClient(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.clients[id]; !ok {
		return profile.ErrClientNotFound
	}
	delete(repo.db.clients, id)
	for _, c := range repo.db.children {
		if intPtrEquals(c.ClientID, id) {
			c.ClientID = nil
		}
	}
	return nil
}

// children

func (repo *profileRepository) checkChild(c profile.ChildProfile) error {
	if _, ok := repo.db.parents[c.ParentID]; !ok {
		return core.NewFieldError("parent_id", errReferencedMissing)
	}
	if c.ClientID != nil {
		if _, ok := repo.db.clients[*c.ClientID]; !ok {
			return core.NewFieldError("client_id", errReferencedMissing)
		}
	}
	return nil
}

func (repo *profileRepository) CreateChild(_ context.Context, c profile.ChildProfile, _ ...core.DBExecutor) (profile.ChildProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkChild(c); err != nil {
		return profile.ChildProfile{}, err
	}
	c.ID = repo.db.nextPK("child_profiles")
	repo.db.children[c.ID] = &c
	return c, nil
}

func (repo *profileRepository) GetChild(_ context.Context, id int, _ ...core.DBExecutor) (profile.ChildProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.children[id]; ok {
		return *c, nil
	}
	return profile.ChildProfile{}, profile.ErrChildNotFound
}

func (repo *profileRepository) QueryChildren(_ context.Context, filter profile.QueryFilter, _ ...core.DBExecutor) ([]profile.ChildProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]profile.ChildProfile, 0)
	for _, c := range rows(repo.db.children) {
		switch {
		case !matchesName(c.FirstName, c.LastName, filter.Search):
			continue
		case filter.ParentID != 0 && c.ParentID != filter.ParentID:
			continue
		case filter.ClientID != 0 && !intPtrEquals(c.ClientID, filter.ClientID):
			continue
		case filter.UserID != "" && !strPtrEquals(c.UserID, filter.UserID):
			continue
		}
		list = append(list, c)
	}
	sort.SliceStable(list, byLastFirstName(
		func(i int) string { return list[i].LastName },
		func(i int) string { return list[i].FirstName },
	))
	return list, nil
}

func (repo *profileRepository) UpdateChild(_ context.Context, c profile.ChildProfile, _ ...core.DBExecutor) (profile.ChildProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.children[c.ID]; !ok {
		return profile.ChildProfile{}, profile.ErrChildNotFound
	}
	if err := repo.checkChild(c); err != nil {
		return profile.ChildProfile{}, err
	}
	repo.db.children[c.ID] = &c
	return c, nil
}

func (repo *profileRepository) DeleteChild(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.children[id]; !ok {
		return profile.ErrChildNotFound
	}
	for _, inv := range repo.db.invoices {
		if inv.ChildProfileID == id {
			return core.NewValidationError(errReferenced)
		}
	}
	for _, p := range repo.db.payments {
		if p.ChildProfileID == id {
			return core.NewValidationError(errReferenced)
		}
	}

	delete(repo.db.children, id)
	for enrollmentID, e := range repo.db.enrollments {
		if e.ChildProfileID == id {
			deleteEnrollment(repo.db, enrollmentID)
		}
	}
	for attID, a := range repo.db.attendances {
		if a.ChildProfileID == id {
			delete(repo.db.attendances, attID)
		}
	}
	for resID, r := range repo.db.examResults {
		if r.ChildProfileID == id {
			delete(repo.db.examResults, resID)
		}
	}
	return nil
}

// teachers

func (repo *profileRepository) teacher(t profile.TeacherProfile) profile.TeacherProfile {
	t.SubjectIDs = append(make([]int, 0), repo.db.teacherSubjects[t.ID]...)
	sort.Ints(t.SubjectIDs)
	return t
}

func (repo *profileRepository) userLinked(t profile.TeacherProfile) bool {
	if t.UserID == nil {
		return false
	}
	for _, other := range repo.db.teachers {
		if other.ID != t.ID && strPtrEquals(other.UserID, *t.UserID) {
			return true
		}
	}
	return false
}

func (repo *profileRepository) CreateTeacher(_ context.Context, t profile.TeacherProfile, _ ...core.DBExecutor) (profile.TeacherProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.userLinked(t) {
		return profile.TeacherProfile{}, core.NewFieldError("user_id", profile.ErrUserLinked)
	}
	t.ID = repo.db.nextPK("teacher_profiles")
	t.SubjectIDs = nil
	repo.db.teachers[t.ID] = &t
	return repo.teacher(t), nil
}

func (repo *profileRepository) GetTeacher(_ context.Context, id int, _ ...core.DBExecutor) (profile.TeacherProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.teachers[id]; ok {
		return repo.teacher(*t), nil
	}
	return profile.TeacherProfile{}, profile.ErrTeacherNotFound
}

func (repo *profileRepository) GetTeacherByUserID(_ context.Context, userID string, _ ...core.DBExecutor) (profile.TeacherProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, t := range repo.db.teachers {
		if strPtrEquals(t.UserID, userID) {
			return repo.teacher(*t), nil
		}
	}
	return profile.TeacherProfile{}, profile.ErrTeacherNotFound
}

func (repo *profileRepository) QueryTeachers(_ context.Context, filter profile.QueryFilter, _ ...core.DBExecutor) ([]profile.TeacherProfile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]profile.TeacherProfile, 0)
	for _, t := range rows(repo.db.teachers) {
		if !matchesName(t.FirstName, t.LastName, filter.Search) && !containsFold(t.Email, filter.Search) {
			continue
		}
		if filter.UserID != "" && !strPtrEquals(t.UserID, filter.UserID) {
			continue
		}
		list = append(list, repo.teacher(t))
	}
	sort.SliceStable(list, byLastFirstName(
		func(i int) string { return list[i].LastName },
		func(i int) string { return list[i].FirstName },
	))
	return list, nil
}

func (repo *profileRepository) UpdateTeacher(_ context.Context, t profile.TeacherProfile, _ ...core.DBExecutor) (profile.TeacherProfile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.teachers[t.ID]; !ok {
		return profile.TeacherProfile{}, profile.ErrTeacherNotFound
	}
	if repo.userLinked(t) {
		return profile.TeacherProfile{}, core.NewFieldError("user_id", profile.ErrUserLinked)
	}
	t.SubjectIDs = nil
	repo.db.teachers[t.ID] = &t
	return repo.teacher(t), nil
}

func (repo *profileRepository) SetTeacherSubjects(_ context.Context, teacherID int, subjectIDs []int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.teachers[teacherID]; !ok {
		return profile.ErrTeacherNotFound
	}
	ids := make([]int, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		if _, ok := repo.db.subjects[id]; !ok {
			return core.NewFieldError("subject_id", errReferencedMissing)
		}
		if !core.ContainsInt(ids, id) {
			ids = append(ids, id)
		}
	}
	repo.db.teacherSubjects[teacherID] = ids
	return nil
}

func (repo *profileRepository) DeleteTeacher(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.teachers[id]; !ok {
		return profile.ErrTeacherNotFound
	}
	delete(repo.db.teachers, id)
	delete(repo.db.teacherSubjects, id)
	for sessionID, s := range repo.db.sessions {
		if s.TeacherProfileID == id {
			deleteSession(repo.db, sessionID)
		}
	}
	for slotID, s := range repo.db.slots {
		if s.TeacherProfileID == id {
			delete(repo.db.slots, slotID)
		}
	}
	for _, e := range repo.db.exams {
		if intPtrEquals(e.TeacherProfileID, id) {
			e.TeacherProfileID = nil
		}
	}
	return nil
}
