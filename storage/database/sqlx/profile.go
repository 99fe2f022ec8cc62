package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/profile"
)

const teacherSelect = `
	SELECT t.*, ARRAY(
		SELECT ts.subject_id FROM teacher_subjects ts WHERE ts.teacher_profile_id = t.id ORDER BY ts.subject_id
	) AS subject_ids
	FROM teacher_profiles t`

type teacherRow struct {
	profile.TeacherProfile
	SubjectIDs pq.Int64Array `db:"subject_ids"`
}

func (row teacherRow) teacher() profile.TeacherProfile {
	t := row.TeacherProfile
	t.SubjectIDs = make([]int, 0, len(row.SubjectIDs))
	for _, id := range row.SubjectIDs {
		t.SubjectIDs = append(t.SubjectIDs, int(id))
	}
	return t
}

type profileRepository struct {
	base
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db core.DBExecutor) profile.Repository {
	return &profileRepository{base{db: db}}
}

func trapProfileErr(err, notFound error, table, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	switch code, _ := pqError(err); code {
	case codeUniqueViolation:
		return core.NewFieldError("user_id", profile.ErrUserLinked)
	case codeForeignKeyViolation:
		if table == "" {
			return core.NewValidationError(errReferenced)
		}
		return foreignKeyError(err, table)
	}
	if err == notFound {
		return err
	}
	return errors.Wrap(err, msg)
}

func searchNames(q *query, search string) {
	if search != "" {
		val := like(search)
		q.where("first_name ILIKE ? OR last_name ILIKE ? OR (first_name || ' ' || last_name) ILIKE ?", val, val, val)
	}
}

// parents

func (repo *profileRepository) CreateParent(ctx context.Context, p profile.ParentProfile, exec ...core.DBExecutor) (profile.ParentProfile, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO parent_profiles (user_id, first_name, last_name, email, phone, address, created_at, updated_at)
		VALUES (:user_id, :first_name, :last_name, :email, :phone, :address, :created_at, :updated_at)
		RETURNING id`,
		p)
	if err != nil {
		return profile.ParentProfile{}, trapProfileErr(err, profile.ErrParentNotFound, "parent_profiles", "inserting parent")
	}
	p.ID = id
	return p, nil
}

func (repo *profileRepository) GetParent(ctx context.Context, id int, exec ...core.DBExecutor) (profile.ParentProfile, error) {
	var p profile.ParentProfile
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &p, "SELECT * FROM parent_profiles WHERE id = $1", id); err != nil {
		return profile.ParentProfile{}, trapProfileErr(err, profile.ErrParentNotFound, "parent_profiles", "finding parent")
	}
	return p, nil
}

func (repo *profileRepository) QueryParents(ctx context.Context, filter profile.QueryFilter, exec ...core.DBExecutor) ([]profile.ParentProfile, error) {
	var q query
	searchNames(&q, filter.Search)
	if filter.UserID != "" {
		q.where("user_id::text = ?", filter.UserID)
	}
	stmt, args, err := q.build("SELECT * FROM parent_profiles", "ORDER BY last_name, first_name, id")
	if err != nil {
		return nil, err
	}

	list := make([]profile.ParentProfile, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying parents")
	}
	return list, nil
}

func (repo *profileRepository) UpdateParent(ctx context.Context, p profile.ParentProfile, exec ...core.DBExecutor) (profile.ParentProfile, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE parent_profiles SET
			user_id = :user_id, first_name = :first_name, last_name = :last_name, email = :email,
			phone = :phone, address = :address, updated_at = :updated_at
		WHERE id = :id`,
		p, profile.ErrParentNotFound)
	if err != nil {
		return profile.ParentProfile{}, trapProfileErr(err, profile.ErrParentNotFound, "parent_profiles", "updating parent")
	}
	return p, nil
}

func (repo *profileRepository) DeleteParent(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM parent_profiles WHERE id = $1", id, profile.ErrParentNotFound)
	if err != nil {
		return trapProfileErr(err, profile.ErrParentNotFound, "", "deleting parent")
	}
	return nil
}

// clients

func (repo *profileRepository) CreateClient(ctx context.Context, c profile.ClientProfile, exec ...core.DBExecutor) (profile.ClientProfile, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO client_profiles (name, email, phone, address, created_at, updated_at)
		VALUES (:name, :email, :phone, :address, :created_at, :updated_at)
		RETURNING id`,
		c)
	if err != nil {
		return profile.ClientProfile{}, trapProfileErr(err, profile.ErrClientNotFound, "client_profiles", "inserting client")
	}
	c.ID = id
	return c, nil
}

func (repo *profileRepository) GetClient(ctx context.Context, id int, exec ...core.DBExecutor) (profile.ClientProfile, error) {
	var c profile.ClientProfile
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &c, "SELECT * FROM client_profiles WHERE id = $1", id); err != nil {
		return profile.ClientProfile{}, trapProfileErr(err, profile.ErrClientNotFound, "client_profiles", "finding client")
	}
	return c, nil
}

func (repo *profileRepository) QueryClients(ctx context.Context, filter profile.QueryFilter, exec ...core.DBExecutor) ([]profile.ClientProfile, error) {
	var q query
	if filter.Search != "" {
		val := like(filter.Search)
		q.where("name ILIKE ? OR email ILIKE ?", val, val)
	}
	stmt, args, err := q.build("SELECT * FROM client_profiles", "ORDER BY name, id")
	if err != nil {
		return nil, err
	}

	list := make([]profile.ClientProfile, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying clients")
	}
	return list, nil
}

func (repo *profileRepository) UpdateClient(ctx context.Context, c profile.ClientProfile, exec ...core.DBExecutor) (profile.ClientProfile, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE client_profiles SET name = :name, email = :email, phone = :phone, address = :address, updated_at = :updated_at
		WHERE id = :id`,
		c, profile.ErrClientNotFound)
	if err != nil {
		return profile.ClientProfile{}, trapProfileErr(err, profile.ErrClientNotFound, "client_profiles", "updating client")
	}
	return c, nil
}

func (repo *profileRepository) DeleteClient(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM client_profiles WHERE id = $1", id, profile.ErrClientNotFound)
	if err != nil {
		return trapProfileErr(err, profile.ErrClientNotFound, "", "deleting client")
	}
	return nil
}

// children

func (repo *profileRepository) CreateChild(ctx context.Context, c profile.ChildProfile, exec ...core.DBExecutor) (profile.ChildProfile, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO child_profiles (user_id, parent_id, client_id, first_name, last_name, birth_date, gender, notes, created_at, updated_at)
		VALUES (:user_id, :parent_id, :client_id, :first_name, :last_name, :birth_date, :gender, :notes, :created_at, :updated_at)
		RETURNING id`,
		c)
	if err != nil {
		return profile.ChildProfile{}, trapProfileErr(err, profile.ErrChildNotFound, "child_profiles", "inserting student")
	}
	c.ID = id
	return c, nil
}

func (repo *profileRepository) GetChild(ctx context.Context, id int, exec ...core.DBExecutor) (profile.ChildProfile, error) {
	var c profile.ChildProfile
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &c, "SELECT * FROM child_profiles WHERE id = $1", id); err != nil {
		return profile.ChildProfile{}, trapProfileErr(err, profile.ErrChildNotFound, "child_profiles", "finding student")
	}
	return c, nil
}

func (repo *profileRepository) QueryChildren(ctx context.Context, filter profile.QueryFilter, exec ...core.DBExecutor) ([]profile.ChildProfile, error) {
	var q query
	searchNames(&q, filter.Search)
	if filter.ParentID != 0 {
		q.where("parent_id = ?", filter.ParentID)
	}
	if filter.ClientID != 0 {
		q.where("client_id = ?", filter.ClientID)
	}
	if filter.UserID != "" {
		q.where("user_id::text = ?", filter.UserID)
	}
	stmt, args, err := q.build("SELECT * FROM child_profiles", "ORDER BY last_name, first_name, id")
	if err != nil {
		return nil, err
	}

	list := make([]profile.ChildProfile, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return list, nil
}

func (repo *profileRepository) UpdateChild(ctx context.Context, c profile.ChildProfile, exec ...core.DBExecutor) (profile.ChildProfile, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE child_profiles SET
			user_id = :user_id, parent_id = :parent_id, client_id = :client_id, first_name = :first_name,
			last_name = :last_name, birth_date = :birth_date, gender = :gender, notes = :notes, updated_at = :updated_at
		WHERE id = :id`,
		c, profile.ErrChildNotFound)
	if err != nil {
		return profile.ChildProfile{}, trapProfileErr(err, profile.ErrChildNotFound, "child_profiles", "updating student")
	}
	return c, nil
}

func (repo *profileRepository) DeleteChild(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM child_profiles WHERE id = $1", id, profile.ErrChildNotFound)
	if err != nil {
		return trapProfileErr(err, profile.ErrChildNotFound, "", "deleting student")
	}
	return nil
}

// teachers

func (repo *profileRepository) CreateTeacher(ctx context.Context, t profile.TeacherProfile, exec ...core.DBExecutor) (profile.TeacherProfile, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO teacher_profiles (user_id, first_name, last_name, email, phone, specialization, created_at, updated_at)
		VALUES (:user_id, :first_name, :last_name, :email, :phone, :specialization, :created_at, :updated_at)
		RETURNING id`,
		t)
	if err != nil {
		return profile.TeacherProfile{}, trapProfileErr(err, profile.ErrTeacherNotFound, "teacher_profiles", "inserting teacher")
	}
	t.ID = id
	return t, nil
}

func (repo *profileRepository) getTeacher(ctx context.Context, exec core.DBExecutor, where string, arg interface{}) (profile.TeacherProfile, error) {
	var row teacherRow
	if err := sqlx.GetContext(ctx, exec, &row, teacherSelect+" WHERE "+where, arg); err != nil {
		return profile.TeacherProfile{}, trapProfileErr(err, profile.ErrTeacherNotFound, "teacher_profiles", "finding teacher")
	}
	return row.teacher(), nil
}

func (repo *profileRepository) GetTeacher(ctx context.Context, id int, exec ...core.DBExecutor) (profile.TeacherProfile, error) {
	return repo.getTeacher(ctx, repo.getExec(exec), "t.id = $1", id)
}

func (repo *profileRepository) GetTeacherByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (profile.TeacherProfile, error) {
	return repo.getTeacher(ctx, repo.getExec(exec), "t.user_id::text = $1", userID)
}

func (repo *profileRepository) QueryTeachers(ctx context.Context, filter profile.QueryFilter, exec ...core.DBExecutor) ([]profile.TeacherProfile, error) {
	var q query
	searchNames(&q, filter.Search)
	if filter.UserID != "" {
		q.where("user_id::text = ?", filter.UserID)
	}
	stmt, args, err := q.build(teacherSelect, "ORDER BY last_name, first_name, id")
	if err != nil {
		return nil, err
	}

	var rows []teacherRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	list := make([]profile.TeacherProfile, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.teacher())
	}
	return list, nil
}

func (repo *profileRepository) UpdateTeacher(ctx context.Context, t profile.TeacherProfile, exec ...core.DBExecutor) (profile.TeacherProfile, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE teacher_profiles SET
			user_id = :user_id, first_name = :first_name, last_name = :last_name, email = :email,
			phone = :phone, specialization = :specialization, updated_at = :updated_at
		WHERE id = :id`,
		t, profile.ErrTeacherNotFound)
	if err != nil {
		return profile.TeacherProfile{}, trapProfileErr(err, profile.ErrTeacherNotFound, "teacher_profiles", "updating teacher")
	}
	return t, nil
}

func (repo *profileRepository) SetTeacherSubjects(ctx context.Context, teacherID int, subjectIDs []int, exec ...core.DBExecutor) error {
	e := repo.getExec(exec)
	if _, err := e.ExecContext(ctx, "DELETE FROM teacher_subjects WHERE teacher_profile_id = $1", teacherID); err != nil {
		return errors.Wrap(err, "clearing teacher subjects")
	}
	if len(subjectIDs) == 0 {
		return nil
	}

	ids := make(pq.Int64Array, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		ids = append(ids, int64(id))
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO teacher_subjects (teacher_profile_id, subject_id)
		SELECT $1, UNNEST($2::bigint[])
		ON CONFLICT DO NOTHING`,
		teacherID, ids)
	if err != nil {
		return trapProfileErr(err, profile.ErrTeacherNotFound, "teacher_subjects", "assigning teacher subjects")
	}
	return nil
}

func (repo *profileRepository) DeleteTeacher(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM teacher_profiles WHERE id = $1", id, profile.ErrTeacherNotFound)
	if err != nil {
		return trapProfileErr(err, profile.ErrTeacherNotFound, "", "deleting teacher")
	}
	return nil
}
