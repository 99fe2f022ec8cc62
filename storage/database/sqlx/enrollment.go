package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/enrollment"
)

type enrollmentRepository struct {
	base
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db core.DBExecutor) enrollment.Repository {
	return &enrollmentRepository{base{db: db}}
}

// trapEnrollmentErr maps the triple unique index to enrollment.ErrDuplicate
// and the subject unique constraint to enrollment.ErrSubjectEnrolled.
func trapEnrollmentErr(err, notFound error, table, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	switch code, constraint := pqError(err); code {
	case codeUniqueViolation:
		if constraint == "program_enrollments_triple_key" {
			return enrollment.ErrDuplicate
		}
		return enrollment.ErrSubjectEnrolled
	case codeForeignKeyViolation:
		return foreignKeyError(err, table)
	}
	if err == notFound {
		return err
	}
	return errors.Wrap(err, msg)
}

func (repo *enrollmentRepository) ExistsForTriple(ctx context.Context, childID, curriculumID, academicYearID, excludeID int, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, repo.getExec(exec), &exists, `
		SELECT EXISTS (
			SELECT 1 FROM program_enrollments
			WHERE child_profile_id = $1 AND curriculum_id = $2 AND academic_year_id = $3
				AND deleted_at IS NULL AND id <> $4
		)`,
		childID, curriculumID, academicYearID, excludeID)
	return exists, errors.Wrap(err, "checking enrollment uniqueness")
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.ProgramEnrollment, exec ...core.DBExecutor) (enrollment.ProgramEnrollment, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO program_enrollments (
			child_profile_id, curriculum_id, academic_year_id, status, payment_plan_id, enrollment_date, notes, created_at, updated_at
		) VALUES (
			:child_profile_id, :curriculum_id, :academic_year_id, :status, :payment_plan_id, :enrollment_date, :notes, :created_at, :updated_at
		) RETURNING id`,
		e)
	if err != nil {
		return enrollment.ProgramEnrollment{}, trapEnrollmentErr(err, enrollment.ErrNotFound, "program_enrollments", "inserting enrollment")
	}
	e.ID = id
	return e, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, id int, exec ...core.DBExecutor) (enrollment.ProgramEnrollment, error) {
	var e enrollment.ProgramEnrollment
	err := sqlx.GetContext(ctx, repo.getExec(exec), &e,
		"SELECT * FROM program_enrollments WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return enrollment.ProgramEnrollment{}, trapEnrollmentErr(err, enrollment.ErrNotFound, "program_enrollments", "finding enrollment")
	}
	return e, nil
}

func (repo *enrollmentRepository) QueryEnrollments(ctx context.Context, filter enrollment.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]enrollment.ProgramEnrollment, error) {
	var q query
	q.where("deleted_at IS NULL")
	if filter.ChildProfileID != 0 {
		q.where("child_profile_id = ?", filter.ChildProfileID)
	}
	if filter.CurriculumID != 0 {
		q.where("curriculum_id = ?", filter.CurriculumID)
	}
	if filter.AcademicYearID != 0 {
		q.where("academic_year_id = ?", filter.AcademicYearID)
	}
	if filter.Status != "" {
		q.where("status = ?", filter.Status)
	}
	stmt, args, err := q.build("SELECT * FROM program_enrollments", orderBy(ordering, "enrollment_date DESC, id DESC"))
	if err != nil {
		return nil, err
	}

	list := make([]enrollment.ProgramEnrollment, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return list, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.ProgramEnrollment, exec ...core.DBExecutor) (enrollment.ProgramEnrollment, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE program_enrollments SET
			child_profile_id = :child_profile_id, curriculum_id = :curriculum_id, academic_year_id = :academic_year_id,
			status = :status, payment_plan_id = :payment_plan_id, enrollment_date = :enrollment_date, notes = :notes,
			updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL`,
		e, enrollment.ErrNotFound)
	if err != nil {
		return enrollment.ProgramEnrollment{}, trapEnrollmentErr(err, enrollment.ErrNotFound, "program_enrollments", "updating enrollment")
	}
	return e, nil
}

func (repo *enrollmentRepository) SoftDeleteEnrollment(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx,
		"UPDATE program_enrollments SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL", at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	return checkAffected(res.RowsAffected, enrollment.ErrNotFound)
}

func (repo *enrollmentRepository) QuerySubjectEnrollments(ctx context.Context, enrollmentID int, exec ...core.DBExecutor) ([]enrollment.SubjectEnrollment, error) {
	list := make([]enrollment.SubjectEnrollment, 0)
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &list,
		"SELECT * FROM subject_enrollments WHERE program_enrollment_id = $1 ORDER BY id", enrollmentID)
	return list, errors.Wrap(err, "querying subject enrollments")
}

func (repo *enrollmentRepository) CreateSubjectEnrollments(ctx context.Context, enrollmentID int, subjectIDs []int, at time.Time, exec ...core.DBExecutor) ([]enrollment.SubjectEnrollment, error) {
	ids := make(pq.Int64Array, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		ids = append(ids, int64(id))
	}

	list := make([]enrollment.SubjectEnrollment, 0, len(subjectIDs))
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &list, `
		INSERT INTO subject_enrollments (program_enrollment_id, subject_id, enrolled_at)
		SELECT $1, UNNEST($2::bigint[]), $3
		RETURNING *`,
		enrollmentID, ids, at.UTC())
	if err != nil {
		return nil, trapEnrollmentErr(err, enrollment.ErrSubjectEnrollmentNotFound, "subject_enrollments", "enrolling subjects")
	}
	return list, nil
}

func (repo *enrollmentRepository) DeleteSubjectEnrollment(ctx context.Context, enrollmentID, id int, exec ...core.DBExecutor) (enrollment.SubjectEnrollment, error) {
	var se enrollment.SubjectEnrollment
	err := sqlx.GetContext(ctx, repo.getExec(exec), &se,
		"DELETE FROM subject_enrollments WHERE id = $1 AND program_enrollment_id = $2 RETURNING *", id, enrollmentID)
	if err != nil {
		return enrollment.SubjectEnrollment{}, trapEnrollmentErr(err, enrollment.ErrSubjectEnrollmentNotFound, "", "removing subject enrollment")
	}
	return se, nil
}
