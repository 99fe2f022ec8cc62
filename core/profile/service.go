package profile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/curriculum"
)

var (
	// errors
	ErrChildNotFound   = errors.New("student not found")
	ErrParentNotFound  = errors.New("parent not found")
	ErrClientNotFound  = errors.New("client not found")
	ErrTeacherNotFound = errors.New("teacher not found")
	ErrUserLinked      = errors.New("this user is already linked to another profile")
	ErrHasChildren     = errors.New("this parent still has students and cannot be deleted")
)

type (
	Repository interface {
		CreateParent(ctx context.Context, p ParentProfile, exec ...core.DBExecutor) (ParentProfile, error)
		GetParent(ctx context.Context, id int, exec ...core.DBExecutor) (ParentProfile, error)
		QueryParents(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]ParentProfile, error)
		UpdateParent(ctx context.Context, p ParentProfile, exec ...core.DBExecutor) (ParentProfile, error)
		DeleteParent(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateClient(ctx context.Context, c ClientProfile, exec ...core.DBExecutor) (ClientProfile, error)
		GetClient(ctx context.Context, id int, exec ...core.DBExecutor) (ClientProfile, error)
		QueryClients(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]ClientProfile, error)
		UpdateClient(ctx context.Context, c ClientProfile, exec ...core.DBExecutor) (ClientProfile, error)
		DeleteClient(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateChild(ctx context.Context, c ChildProfile, exec ...core.DBExecutor) (ChildProfile, error)
		GetChild(ctx context.Context, id int, exec ...core.DBExecutor) (ChildProfile, error)
		// QueryChildren filters on QueryFilter.Search (first or last name), ParentID, ClientID and UserID.
		QueryChildren(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]ChildProfile, error)
		UpdateChild(ctx context.Context, c ChildProfile, exec ...core.DBExecutor) (ChildProfile, error)
		DeleteChild(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateTeacher(ctx context.Context, t TeacherProfile, exec ...core.DBExecutor) (TeacherProfile, error)
		// GetTeacher loads the teacher with its SubjectIDs.
		GetTeacher(ctx context.Context, id int, exec ...core.DBExecutor) (TeacherProfile, error)
		GetTeacherByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (TeacherProfile, error)
		QueryTeachers(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]TeacherProfile, error)
		UpdateTeacher(ctx context.Context, t TeacherProfile, exec ...core.DBExecutor) (TeacherProfile, error)
		// SetTeacherSubjects replaces the subjects assigned to the teacher.
		SetTeacherSubjects(ctx context.Context, teacherID int, subjectIDs []int, exec ...core.DBExecutor) error
		DeleteTeacher(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	Service interface {
		CreateParent(ctx context.Context, data ParentData) (ParentProfile, error)
		GetParent(ctx context.Context, id int) (ParentProfile, error)
		QueryParents(ctx context.Context, filter QueryFilter) ([]ParentProfile, error)
		UpdateParent(ctx context.Context, id int, data ParentData) (ParentProfile, error)
		DeleteParent(ctx context.Context, id int) error
		// ChildrenOf lists the students of a parent.
		ChildrenOf(ctx context.Context, parentID int) ([]ChildProfile, error)

		CreateClient(ctx context.Context, data ClientData) (ClientProfile, error)
		GetClient(ctx context.Context, id int) (ClientProfile, error)
		QueryClients(ctx context.Context, filter QueryFilter) ([]ClientProfile, error)
		UpdateClient(ctx context.Context, id int, data ClientData) (ClientProfile, error)
		DeleteClient(ctx context.Context, id int) error

		CreateChild(ctx context.Context, data ChildData) (ChildProfile, error)
		GetChild(ctx context.Context, id int) (ChildProfile, error)
		QueryChildren(ctx context.Context, filter QueryFilter) ([]ChildProfile, error)
		UpdateChild(ctx context.Context, id int, data ChildData) (ChildProfile, error)
		DeleteChild(ctx context.Context, id int) error

		CreateTeacher(ctx context.Context, data TeacherData) (TeacherProfile, error)
		GetTeacher(ctx context.Context, id int) (TeacherProfile, error)
		GetTeacherByUserID(ctx context.Context, userID string) (TeacherProfile, error)
		QueryTeachers(ctx context.Context, filter QueryFilter) ([]TeacherProfile, error)
		UpdateTeacher(ctx context.Context, id int, data TeacherData) (TeacherProfile, error)
		DeleteTeacher(ctx context.Context, id int) error
	}

	service struct {
		db       core.DB
		repo     Repository
		subjects curriculum.Repository
		activity activity.Recorder
		validate *validator.Validate
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	subjects curriculum.Repository,
	recorder activity.Recorder,
	validate *validator.Validate,
	conf *core.Config,
) Service {
	return &service{db: db, repo: repo, subjects: subjects, activity: recorder, validate: validate, conf: conf}
}

func now() time.Time { return time.Now().UTC() }

// parents

func (svc *service) CreateParent(ctx context.Context, data ParentData) (ParentProfile, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return ParentProfile{}, err
	}

	p := ParentProfile{
		UserID:    data.UserID,
		FirstName: data.FirstName,
		LastName:  data.LastName,
		Email:     data.Email,
		Phone:     data.Phone,
		Address:   data.Address,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if p, err = svc.repo.CreateParent(ctx, p, tx); err != nil {
			return errors.Wrap(err, "creating parent")
		}
		entry := activity.Created(SubjectTypeParent, p.ID, "Created parent "+p.FullName(), p)
		return svc.activity.Record(ctx, entry, tx)
	})
	return p, err
}

func (svc *service) GetParent(ctx context.Context, id int) (ParentProfile, error) {
	return svc.repo.GetParent(ctx, id)
}

func (svc *service) QueryParents(ctx context.Context, filter QueryFilter) ([]ParentProfile, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryParents(ctx, filter)
}

func (svc *service) UpdateParent(ctx context.Context, id int, data ParentData) (ParentProfile, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return ParentProfile{}, err
	}

	var p ParentProfile
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetParent(ctx, id, tx)
		if err != nil {
			return err
		}
		p = orig
		p.UserID = data.UserID
		p.FirstName = data.FirstName
		p.LastName = data.LastName
		p.Email = data.Email
		p.Phone = data.Phone
		p.Address = data.Address
		p.UpdatedAt = now()
		if p, err = svc.repo.UpdateParent(ctx, p, tx); err != nil {
			return errors.Wrap(err, "updating parent")
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeParent, p.ID, "", orig, p), tx)
	})
	return p, err
}

func (svc *service) DeleteParent(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		p, err := svc.repo.GetParent(ctx, id, tx)
		if err != nil {
			return err
		}
		children, err := svc.repo.QueryChildren(ctx, QueryFilter{ParentID: id}, tx)
		if err != nil {
			return errors.Wrap(err, "querying children")
		}
		if len(children) > 0 {
			return core.NewValidationError(ErrHasChildren)
		}
		if err = svc.repo.DeleteParent(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeParent, id, p), tx)
	})
}

func (svc *service) ChildrenOf(ctx context.Context, parentID int) ([]ChildProfile, error) {
	if _, err := svc.repo.GetParent(ctx, parentID); err != nil {
		return nil, err
	}
	return svc.repo.QueryChildren(ctx, QueryFilter{ParentID: parentID})
}

// clients

func (svc *service) CreateClient(ctx context.Context, data ClientData) (ClientProfile, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return ClientProfile{}, err
	}

	c := ClientProfile{
		Name:      data.Name,
		Email:     data.Email,
		Phone:     data.Phone,
		Address:   data.Address,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if c, err = svc.repo.CreateClient(ctx, c, tx); err != nil {
			return errors.Wrap(err, "creating client")
		}
		return svc.activity.Record(ctx, activity.Created(SubjectTypeClient, c.ID, "Created client "+c.Name, c), tx)
	})
	return c, err
}

func (svc *service) GetClient(ctx context.Context, id int) (ClientProfile, error) {
	return svc.repo.GetClient(ctx, id)
}

func (svc *service) QueryClients(ctx context.Context, filter QueryFilter) ([]ClientProfile, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryClients(ctx, filter)
}

func (svc *service) UpdateClient(ctx context.Context, id int, data ClientData) (ClientProfile, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return ClientProfile{}, err
	}

	var c ClientProfile
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetClient(ctx, id, tx)
		if err != nil {
			return err
		}
		c = orig
		c.Name = data.Name
		c.Email = data.Email
		c.Phone = data.Phone
		c.Address = data.Address
		c.UpdatedAt = now()
		if c, err = svc.repo.UpdateClient(ctx, c, tx); err != nil {
			return errors.Wrap(err, "updating client")
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeClient, c.ID, "", orig, c), tx)
	})
	return c, err
}

func (svc *service) DeleteClient(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		c, err := svc.repo.GetClient(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteClient(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeClient, id, c), tx)
	})
}

// children

func (svc *service) buildChild(ctx context.Context, data ChildData, exec core.DBExecutor) (ChildProfile, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return ChildProfile{}, err
	}

	if _, err := svc.repo.GetParent(ctx, data.ParentID, exec); err != nil {
		if errors.Cause(err) == ErrParentNotFound {
			return ChildProfile{}, core.NewFieldError("parent_id", ErrParentNotFound)
		}
		return ChildProfile{}, errors.Wrap(err, "finding parent")
	}
	if data.ClientID != nil {
		if _, err := svc.repo.GetClient(ctx, *data.ClientID, exec); err != nil {
			if errors.Cause(err) == ErrClientNotFound {
				return ChildProfile{}, core.NewFieldError("client_id", ErrClientNotFound)
			}
			return ChildProfile{}, errors.Wrap(err, "finding client")
		}
	}

	c := ChildProfile{
		UserID:    data.UserID,
		ParentID:  data.ParentID,
		ClientID:  data.ClientID,
		FirstName: data.FirstName,
		LastName:  data.LastName,
		Gender:    data.Gender,
		Notes:     data.Notes,
	}
	if data.BirthDate != "" {
		bd, err := core.ParseDate(data.BirthDate, time.UTC)
		if err != nil {
			return ChildProfile{}, err
		}
		c.BirthDate = &bd
	}
	return c, nil
}

func (svc *service) CreateChild(ctx context.Context, data ChildData) (ChildProfile, error) {
	var c ChildProfile
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if c, err = svc.buildChild(ctx, data, tx); err != nil {
			return err
		}
		c.CreatedAt = now()
		c.UpdatedAt = now()
		if c, err = svc.repo.CreateChild(ctx, c, tx); err != nil {
			return errors.Wrap(err, "creating student")
		}
		return svc.activity.Record(ctx, activity.Created(SubjectTypeChild, c.ID, "Registered student "+c.FullName(), c), tx)
	})
	return c, err
}

func (svc *service) GetChild(ctx context.Context, id int) (ChildProfile, error) {
	return svc.repo.GetChild(ctx, id)
}

func (svc *service) QueryChildren(ctx context.Context, filter QueryFilter) ([]ChildProfile, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryChildren(ctx, filter)
}

func (svc *service) UpdateChild(ctx context.Context, id int, data ChildData) (ChildProfile, error) {
	var c ChildProfile
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetChild(ctx, id, tx)
		if err != nil {
			return err
		}
		if c, err = svc.buildChild(ctx, data, tx); err != nil {
			return err
		}
		c.ID = orig.ID
		c.CreatedAt = orig.CreatedAt
		c.UpdatedAt = now()
		if c, err = svc.repo.UpdateChild(ctx, c, tx); err != nil {
			return errors.Wrap(err, "updating student")
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeChild, c.ID, "", orig, c), tx)
	})
	return c, err
}

func (svc *service) DeleteChild(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		c, err := svc.repo.GetChild(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteChild(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeChild, id, c), tx)
	})
}

// teachers

func (svc *service) checkSubjects(ctx context.Context, ids []int, exec core.DBExecutor) ([]int, error) {
	ids = uniqueInts(ids)
	if len(ids) == 0 {
		return ids, nil
	}
	found, err := svc.subjects.QuerySubjects(ctx, curriculum.SubjectFilter{IDs: ids}, exec)
	if err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	if len(found) != len(ids) {
		known := make([]int, 0, len(found))
		for _, s := range found {
			known = append(known, s.ID)
		}
		for _, id := range ids {
			if !core.ContainsInt(known, id) {
				return nil, core.NewValidationError(nil, core.FieldError{
					Field: "subject_ids",
					Error: fmt.Sprintf("subject %d does not exist", id),
				})
			}
		}
	}
	return ids, nil
}

func (svc *service) CreateTeacher(ctx context.Context, data TeacherData) (TeacherProfile, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return TeacherProfile{}, err
	}

	t := TeacherProfile{
		UserID:         data.UserID,
		FirstName:      data.FirstName,
		LastName:       data.LastName,
		Email:          data.Email,
		Phone:          data.Phone,
		Specialization: data.Specialization,
		CreatedAt:      now(),
		UpdatedAt:      now(),
	}
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if t.SubjectIDs, err = svc.checkSubjects(ctx, data.SubjectIDs, tx); err != nil {
			return err
		}
		if err = svc.checkUserLink(ctx, t.UserID, 0, tx); err != nil {
			return err
		}
		subjectIDs := t.SubjectIDs
		if t, err = svc.repo.CreateTeacher(ctx, t, tx); err != nil {
			return errors.Wrap(err, "creating teacher")
		}
		if err = svc.repo.SetTeacherSubjects(ctx, t.ID, subjectIDs, tx); err != nil {
			return errors.Wrap(err, "assigning subjects")
		}
		t.SubjectIDs = subjectIDs
		return svc.activity.Record(ctx, activity.Created(SubjectTypeTeacher, t.ID, "Created teacher "+t.FullName(), t), tx)
	})
	return t, err
}

// checkUserLink enforces one teacher profile per user account.
func (svc *service) checkUserLink(ctx context.Context, userID *string, selfID int, exec core.DBExecutor) error {
	if userID == nil {
		return nil
	}
	other, err := svc.repo.GetTeacherByUserID(ctx, *userID, exec)
	switch {
	case err == nil && other.ID != selfID:
		return core.NewFieldError("user_id", ErrUserLinked)
	case err != nil && errors.Cause(err) != ErrTeacherNotFound:
		return errors.Wrap(err, "finding teacher by user ID")
	}
	return nil
}

func (svc *service) GetTeacher(ctx context.Context, id int) (TeacherProfile, error) {
	return svc.repo.GetTeacher(ctx, id)
}

func (svc *service) GetTeacherByUserID(ctx context.Context, userID string) (TeacherProfile, error) {
	return svc.repo.GetTeacherByUserID(ctx, userID)
}

func (svc *service) QueryTeachers(ctx context.Context, filter QueryFilter) ([]TeacherProfile, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryTeachers(ctx, filter)
}

func (svc *service) UpdateTeacher(ctx context.Context, id int, data TeacherData) (TeacherProfile, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return TeacherProfile{}, err
	}

	var t TeacherProfile
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetTeacher(ctx, id, tx)
		if err != nil {
			return err
		}
		subjectIDs, err := svc.checkSubjects(ctx, data.SubjectIDs, tx)
		if err != nil {
			return err
		}
		if err = svc.checkUserLink(ctx, data.UserID, orig.ID, tx); err != nil {
			return err
		}
		t = orig
		t.UserID = data.UserID
		t.FirstName = data.FirstName
		t.LastName = data.LastName
		t.Email = data.Email
		t.Phone = data.Phone
		t.Specialization = data.Specialization
		t.UpdatedAt = now()
		if t, err = svc.repo.UpdateTeacher(ctx, t, tx); err != nil {
			return errors.Wrap(err, "updating teacher")
		}
		if err = svc.repo.SetTeacherSubjects(ctx, t.ID, subjectIDs, tx); err != nil {
			return errors.Wrap(err, "assigning subjects")
		}
		t.SubjectIDs = subjectIDs
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeTeacher, t.ID, "", orig, t), tx)
	})
	return t, err
}

func (svc *service) DeleteTeacher(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		t, err := svc.repo.GetTeacher(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteTeacher(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeTeacher, id, t), tx)
	})
}

func uniqueInts(ids []int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !core.ContainsInt(out, id) {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
