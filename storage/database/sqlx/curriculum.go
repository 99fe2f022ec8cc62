package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/curriculum"
)

type curriculumRepository struct {
	base
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db core.DBExecutor) curriculum.Repository {
	return &curriculumRepository{base{db: db}}
}

// trapCurriculumErr maps postgres errors of the curricula, subjects and academic_years tables to domain errors.
func trapCurriculumErr(err, notFound error, table, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	switch code, constraint := pqError(err); code {
	case codeUniqueViolation:
		if strings.HasSuffix(constraint, "name_key") {
			return curriculum.ErrNameExists
		}
		return curriculum.ErrCodeExists
	case codeForeignKeyViolation:
		if strings.HasPrefix(constraint, table+"_") {
			return foreignKeyError(err, table)
		}
		return core.NewValidationError(curriculum.ErrInUse)
	}
	if err == notFound {
		return err
	}
	return errors.Wrap(err, msg)
}

// curricula

func (repo *curriculumRepository) CreateCurriculum(ctx context.Context, c curriculum.Curriculum, exec ...core.DBExecutor) (curriculum.Curriculum, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO curricula (name, code, description, is_active, created_at, updated_at)
		VALUES (:name, :code, :description, :is_active, :created_at, :updated_at)
		RETURNING id`,
		c)
	if err != nil {
		return curriculum.Curriculum{}, trapCurriculumErr(err, curriculum.ErrCurriculumNotFound, "curricula", "inserting curriculum")
	}
	c.ID = id
	return c, nil
}

func (repo *curriculumRepository) GetCurriculum(ctx context.Context, id int, exec ...core.DBExecutor) (curriculum.Curriculum, error) {
	var c curriculum.Curriculum
	err := sqlx.GetContext(ctx, repo.getExec(exec), &c, "SELECT * FROM curricula WHERE id = $1", id)
	if err != nil {
		return curriculum.Curriculum{}, trapCurriculumErr(err, curriculum.ErrCurriculumNotFound, "curricula", "finding curriculum")
	}
	return c, nil
}

func (repo *curriculumRepository) QueryCurricula(ctx context.Context, filter curriculum.CurriculumFilter, exec ...core.DBExecutor) ([]curriculum.Curriculum, error) {
	var q query
	if filter.Search != "" {
		val := like(filter.Search)
		q.where("name ILIKE ? OR code ILIKE ?", val, val)
	}
	if filter.IsActive != nil {
		q.where("is_active = ?", *filter.IsActive)
	}
	stmt, args, err := q.build("SELECT * FROM curricula", "ORDER BY name")
	if err != nil {
		return nil, err
	}

	list := make([]curriculum.Curriculum, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying curricula")
	}
	return list, nil
}

func (repo *curriculumRepository) UpdateCurriculum(ctx context.Context, c curriculum.Curriculum, exec ...core.DBExecutor) (curriculum.Curriculum, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE curricula SET name = :name, code = :code, description = :description, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`,
		c, curriculum.ErrCurriculumNotFound)
	if err != nil {
		return curriculum.Curriculum{}, trapCurriculumErr(err, curriculum.ErrCurriculumNotFound, "curricula", "updating curriculum")
	}
	return c, nil
}

func (repo *curriculumRepository) DeleteCurriculum(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM curricula WHERE id = $1", id, curriculum.ErrCurriculumNotFound)
	if err != nil {
		return trapCurriculumErr(err, curriculum.ErrCurriculumNotFound, "", "deleting curriculum")
	}
	return nil
}

// subjects

func (repo *curriculumRepository) CreateSubject(ctx context.Context, s curriculum.Subject, exec ...core.DBExecutor) (curriculum.Subject, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO subjects (curriculum_id, name, code, description, credits, created_at, updated_at)
		VALUES (:curriculum_id, :name, :code, :description, :credits, :created_at, :updated_at)
		RETURNING id`,
		s)
	if err != nil {
		return curriculum.Subject{}, trapCurriculumErr(err, curriculum.ErrSubjectNotFound, "subjects", "inserting subject")
	}
	s.ID = id
	return s, nil
}

func (repo *curriculumRepository) GetSubject(ctx context.Context, id int, exec ...core.DBExecutor) (curriculum.Subject, error) {
	var s curriculum.Subject
	err := sqlx.GetContext(ctx, repo.getExec(exec), &s, "SELECT * FROM subjects WHERE id = $1", id)
	if err != nil {
		return curriculum.Subject{}, trapCurriculumErr(err, curriculum.ErrSubjectNotFound, "subjects", "finding subject")
	}
	return s, nil
}

func (repo *curriculumRepository) QuerySubjects(ctx context.Context, filter curriculum.SubjectFilter, exec ...core.DBExecutor) ([]curriculum.Subject, error) {
	var q query
	if filter.Search != "" {
		val := like(filter.Search)
		q.where("name ILIKE ? OR code ILIKE ?", val, val)
	}
	if filter.CurriculumID != 0 {
		q.where("curriculum_id = ?", filter.CurriculumID)
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []curriculum.Subject{}, nil
		}
		q.where("id IN (?)", filter.IDs)
	}
	stmt, args, err := q.build("SELECT * FROM subjects", "ORDER BY name, id")
	if err != nil {
		return nil, err
	}

	list := make([]curriculum.Subject, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return list, nil
}

func (repo *curriculumRepository) UpdateSubject(ctx context.Context, s curriculum.Subject, exec ...core.DBExecutor) (curriculum.Subject, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE subjects SET
			curriculum_id = :curriculum_id, name = :name, code = :code, description = :description,
			credits = :credits, updated_at = :updated_at
		WHERE id = :id`,
		s, curriculum.ErrSubjectNotFound)
	if err != nil {
		return curriculum.Subject{}, trapCurriculumErr(err, curriculum.ErrSubjectNotFound, "subjects", "updating subject")
	}
	return s, nil
}

func (repo *curriculumRepository) DeleteSubject(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM subjects WHERE id = $1", id, curriculum.ErrSubjectNotFound)
	if err != nil {
		return trapCurriculumErr(err, curriculum.ErrSubjectNotFound, "", "deleting subject")
	}
	return nil
}

// academic years

func (repo *curriculumRepository) CreateAcademicYear(ctx context.Context, ay curriculum.AcademicYear, exec ...core.DBExecutor) (curriculum.AcademicYear, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO academic_years (name, start_date, end_date, is_current, created_at, updated_at)
		VALUES (:name, :start_date, :end_date, :is_current, :created_at, :updated_at)
		RETURNING id`,
		ay)
	if err != nil {
		return curriculum.AcademicYear{}, trapCurriculumErr(err, curriculum.ErrAcademicYearNotFound, "academic_years", "inserting academic year")
	}
	ay.ID = id
	return ay, nil
}

func (repo *curriculumRepository) GetAcademicYear(ctx context.Context, id int, exec ...core.DBExecutor) (curriculum.AcademicYear, error) {
	var ay curriculum.AcademicYear
	err := sqlx.GetContext(ctx, repo.getExec(exec), &ay, "SELECT * FROM academic_years WHERE id = $1", id)
	if err != nil {
		return curriculum.AcademicYear{}, trapCurriculumErr(err, curriculum.ErrAcademicYearNotFound, "academic_years", "finding academic year")
	}
	return ay, nil
}

func (repo *curriculumRepository) GetCurrentAcademicYear(ctx context.Context, exec ...core.DBExecutor) (curriculum.AcademicYear, error) {
	var ay curriculum.AcademicYear
	err := sqlx.GetContext(ctx, repo.getExec(exec), &ay,
		"SELECT * FROM academic_years WHERE is_current ORDER BY start_date DESC LIMIT 1")
	if err != nil {
		return curriculum.AcademicYear{}, trapCurriculumErr(err, curriculum.ErrNoCurrentYear, "academic_years", "finding current academic year")
	}
	return ay, nil
}

func (repo *curriculumRepository) QueryAcademicYears(ctx context.Context, exec ...core.DBExecutor) ([]curriculum.AcademicYear, error) {
	list := make([]curriculum.AcademicYear, 0)
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &list, "SELECT * FROM academic_years ORDER BY start_date DESC")
	return list, errors.Wrap(err, "querying academic years")
}

func (repo *curriculumRepository) UpdateAcademicYear(ctx context.Context, ay curriculum.AcademicYear, exec ...core.DBExecutor) (curriculum.AcademicYear, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE academic_years SET
			name = :name, start_date = :start_date, end_date = :end_date, is_current = :is_current, updated_at = :updated_at
		WHERE id = :id`,
		ay, curriculum.ErrAcademicYearNotFound)
	if err != nil {
		return curriculum.AcademicYear{}, trapCurriculumErr(err, curriculum.ErrAcademicYearNotFound, "academic_years", "updating academic year")
	}
	return ay, nil
}

func (repo *curriculumRepository) ClearCurrentAcademicYear(ctx context.Context, exceptID int, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx,
		"UPDATE academic_years SET is_current = FALSE, updated_at = $1 WHERE is_current AND id <> $2",
		time.Now().UTC(), exceptID)
	return errors.Wrap(err, "clearing current academic year")
}

func (repo *curriculumRepository) DeleteAcademicYear(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM academic_years WHERE id = $1", id, curriculum.ErrAcademicYearNotFound)
	if err != nil {
		return trapCurriculumErr(err, curriculum.ErrAcademicYearNotFound, "", "deleting academic year")
	}
	return nil
}
