package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

// deleteEnrollment drops the enrollment with its subjects; the write lock must be held.
func deleteEnrollment(db *DB, id int) {
	delete(db.enrollments, id)
	for seID, se := range db.subjectEnrollments {
		if se.ProgramEnrollmentID == id {
			delete(db.subjectEnrollments, seID)
		}
	}
	for _, inv := range db.invoices {
		if intPtrEquals(inv.ProgramEnrollmentID, id) {
			inv.ProgramEnrollmentID = nil
		}
	}
}

func (repo *enrollmentRepository) live(id int) (*enrollment.ProgramEnrollment, bool) {
	e, ok := repo.db.enrollments[id]
	if !ok || e.DeletedAt != nil {
		return nil, false
	}
	return e, true
}

func (repo *enrollmentRepository) tripleTaken(childID, curriculumID, academicYearID, excludeID int) bool {
	for _, e := range repo.db.enrollments {
		if e.DeletedAt == nil && e.ID != excludeID &&
			e.ChildProfileID == childID && e.CurriculumID == curriculumID && e.AcademicYearID == academicYearID {
			return true
		}
	}
	return false
}

func (repo *enrollmentRepository) checkEnrollment(e enrollment.ProgramEnrollment) error {
	if _, ok := repo.db.children[e.ChildProfileID]; !ok {
		return core.NewFieldError("child_profile_id", errReferencedMissing)
	}
	if _, ok := repo.db.curricula[e.CurriculumID]; !ok {
		return core.NewFieldError("curriculum_id", errReferencedMissing)
	}
	if _, ok := repo.db.academicYears[e.AcademicYearID]; !ok {
		return core.NewFieldError("academic_year_id", errReferencedMissing)
	}
	if repo.tripleTaken(e.ChildProfileID, e.CurriculumID, e.AcademicYearID, e.ID) {
		return enrollment.ErrDuplicate
	}
	return nil
}

func (repo *enrollmentRepository) ExistsForTriple(_ context.Context, childID, curriculumID, academicYearID, excludeID int, _ ...core.DBExecutor) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.tripleTaken(childID, curriculumID, academicYearID, excludeID), nil
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, e enrollment.ProgramEnrollment, _ ...core.DBExecutor) (enrollment.ProgramEnrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkEnrollment(e); err != nil {
		return enrollment.ProgramEnrollment{}, err
	}
	e.ID = repo.db.nextPK("program_enrollments")
	repo.db.enrollments[e.ID] = &e
	return e, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, id int, _ ...core.DBExecutor) (enrollment.ProgramEnrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.live(id); ok {
		return *e, nil
	}
	return enrollment.ProgramEnrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, filter enrollment.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]enrollment.ProgramEnrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]enrollment.ProgramEnrollment, 0)
	for _, e := range rows(repo.db.enrollments) {
		switch {
		case e.DeletedAt != nil:
			continue
		case filter.ChildProfileID != 0 && e.ChildProfileID != filter.ChildProfileID:
			continue
		case filter.CurriculumID != 0 && e.CurriculumID != filter.CurriculumID:
			continue
		case filter.AcademicYearID != 0 && e.AcademicYearID != filter.AcademicYearID:
			continue
		case filter.Status != "" && e.Status != filter.Status:
			continue
		}
		list = append(list, e)
	}
	sortEnrollments(list, ordering)
	return list, nil
}

func sortEnrollments(list []enrollment.ProgramEnrollment, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "enrollment_date"}, {Field: "id"}}
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case "id":
				cmp = a.ID - b.ID
			case "enrollment_date":
				cmp = a.EnrollmentDate.Compare(b.EnrollmentDate)
			case "status":
				cmp = compareStrings(a.Status, b.Status)
			case "created_at":
				cmp = a.CreatedAt.Compare(b.CreatedAt)
			case "updated_at":
				cmp = a.UpdatedAt.Compare(b.UpdatedAt)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return false
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, e enrollment.ProgramEnrollment, _ ...core.DBExecutor) (enrollment.ProgramEnrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.live(e.ID); !ok {
		return enrollment.ProgramEnrollment{}, enrollment.ErrNotFound
	}
	if err := repo.checkEnrollment(e); err != nil {
		return enrollment.ProgramEnrollment{}, err
	}
	e.DeletedAt = nil
	repo.db.enrollments[e.ID] = &e
	return e, nil
}

func (repo *enrollmentRepository) SoftDeleteEnrollment(_ context.Context, id int, at time.Time, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	e, ok := repo.live(id)
	if !ok {
		return enrollment.ErrNotFound
	}
	at = at.UTC()
	e.DeletedAt = &at
	e.UpdatedAt = at
	return nil
}

func (repo *enrollmentRepository) QuerySubjectEnrollments(_ context.Context, enrollmentID int, _ ...core.DBExecutor) ([]enrollment.SubjectEnrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]enrollment.SubjectEnrollment, 0)
	for _, se := range rows(repo.db.subjectEnrollments) {
		if se.ProgramEnrollmentID == enrollmentID {
			list = append(list, se)
		}
	}
	return list, nil
}

func (repo *enrollmentRepository) CreateSubjectEnrollments(_ context.Context, enrollmentID int, subjectIDs []int, at time.Time, _ ...core.DBExecutor) ([]enrollment.SubjectEnrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.enrollments[enrollmentID]; !ok {
		return nil, core.NewFieldError("program_enrollment_id", errReferencedMissing)
	}
	for i, subjectID := range subjectIDs {
		if _, ok := repo.db.subjects[subjectID]; !ok {
			return nil, core.NewFieldError("subject_id", errReferencedMissing)
		}
		if core.ContainsInt(subjectIDs[:i], subjectID) {
			return nil, enrollment.ErrSubjectEnrolled
		}
		for _, se := range repo.db.subjectEnrollments {
			if se.ProgramEnrollmentID == enrollmentID && se.SubjectID == subjectID {
				return nil, enrollment.ErrSubjectEnrolled
			}
		}
	}

	list := make([]enrollment.SubjectEnrollment, 0, len(subjectIDs))
	for _, subjectID := range subjectIDs {
		se := enrollment.SubjectEnrollment{
			ID:                  repo.db.nextPK("subject_enrollments"),
			ProgramEnrollmentID: enrollmentID,
			SubjectID:           subjectID,
			EnrolledAt:          at.UTC(),
		}
		repo.db.subjectEnrollments[se.ID] = &se
		list = append(list, se)
	}
	return list, nil
}

func (repo *enrollmentRepository) DeleteSubjectEnrollment(_ context.Context, enrollmentID, id int, _ ...core.DBExecutor) (enrollment.SubjectEnrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	se, ok := repo.db.subjectEnrollments[id]
	if !ok || se.ProgramEnrollmentID != enrollmentID {
		return enrollment.SubjectEnrollment{}, enrollment.ErrSubjectEnrollmentNotFound
	}
	delete(repo.db.subjectEnrollments, id)
	return *se, nil
}
