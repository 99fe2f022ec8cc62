package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/curriculum"
)

type curriculumRepository struct {
	db *DB
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db *DB) curriculum.Repository {
	return &curriculumRepository{db: db}
}

var errInUse = core.NewValidationError(curriculum.ErrInUse)

// curricula

func (repo *curriculumRepository) codeTaken(c curriculum.Curriculum) bool {
	for _, other := range repo.db.curricula {
		if other.ID != c.ID && other.Code == c.Code {
			return true
		}
	}
	return false
}

func (repo *curriculumRepository) CreateCurriculum(_ context.Context, c curriculum.Curriculum, _ ...core.DBExecutor) (curriculum.Curriculum, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.codeTaken(c) {
		return curriculum.Curriculum{}, curriculum.ErrCodeExists
	}
	c.ID = repo.db.nextPK("curricula")
	repo.db.curricula[c.ID] = &c
	return c, nil
}

func (repo *curriculumRepository) GetCurriculum(_ context.Context, id int, _ ...core.DBExecutor) (curriculum.Curriculum, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.curricula[id]; ok {
		return *c, nil
	}
	return curriculum.Curriculum{}, curriculum.ErrCurriculumNotFound
}

func (repo *curriculumRepository) QueryCurricula(_ context.Context, filter curriculum.CurriculumFilter, _ ...core.DBExecutor) ([]curriculum.Curriculum, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]curriculum.Curriculum, 0)
	for _, c := range rows(repo.db.curricula) {
		if filter.Search != "" && !containsFold(c.Name, filter.Search) && !containsFold(c.Code, filter.Search) {
			continue
		}
		if filter.IsActive != nil && c.IsActive != *filter.IsActive {
			continue
		}
		list = append(list, c)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (repo *curriculumRepository) UpdateCurriculum(_ context.Context, c curriculum.Curriculum, _ ...core.DBExecutor) (curriculum.Curriculum, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.curricula[c.ID]; !ok {
		return curriculum.Curriculum{}, curriculum.ErrCurriculumNotFound
	}
	if repo.codeTaken(c) {
		return curriculum.Curriculum{}, curriculum.ErrCodeExists
	}
	repo.db.curricula[c.ID] = &c
	return c, nil
}

func (repo *curriculumRepository) DeleteCurriculum(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.curricula[id]; !ok {
		return curriculum.ErrCurriculumNotFound
	}
	for _, e := range repo.db.enrollments {
		if e.CurriculumID == id {
			return errInUse
		}
	}
	delete(repo.db.curricula, id)
	for _, s := range repo.db.subjects {
		if s.CurriculumID == id {
			repo.deleteSubject(s.ID)
		}
	}
	for _, p := range repo.db.plans {
		if intPtrEquals(p.CurriculumID, id) {
			p.CurriculumID = nil
		}
	}
	return nil
}

// subjects

func (repo *curriculumRepository) checkSubject(s curriculum.Subject) error {
	if _, ok := repo.db.curricula[s.CurriculumID]; !ok {
		return core.NewFieldError("curriculum_id", curriculum.ErrCurriculumNotFound)
	}
	for _, other := range repo.db.subjects {
		if other.ID != s.ID && other.CurriculumID == s.CurriculumID && other.Code == s.Code {
			return curriculum.ErrCodeExists
		}
	}
	return nil
}

func (repo *curriculumRepository) CreateSubject(_ context.Context, s curriculum.Subject, _ ...core.DBExecutor) (curriculum.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkSubject(s); err != nil {
		return curriculum.Subject{}, err
	}
	s.ID = repo.db.nextPK("subjects")
	repo.db.subjects[s.ID] = &s
	return s, nil
}

func (repo *curriculumRepository) GetSubject(_ context.Context, id int, _ ...core.DBExecutor) (curriculum.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.subjects[id]; ok {
		return *s, nil
	}
	return curriculum.Subject{}, curriculum.ErrSubjectNotFound
}

func (repo *curriculumRepository) QuerySubjects(_ context.Context, filter curriculum.SubjectFilter, _ ...core.DBExecutor) ([]curriculum.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]curriculum.Subject, 0)
	for _, s := range rows(repo.db.subjects) {
		if filter.Search != "" && !containsFold(s.Name, filter.Search) && !containsFold(s.Code, filter.Search) {
			continue
		}
		if filter.CurriculumID != 0 && s.CurriculumID != filter.CurriculumID {
			continue
		}
		if filter.IDs != nil && !core.ContainsInt(filter.IDs, s.ID) {
			continue
		}
		list = append(list, s)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (repo *curriculumRepository) UpdateSubject(_ context.Context, s curriculum.Subject, _ ...core.DBExecutor) (curriculum.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.subjects[s.ID]; !ok {
		return curriculum.Subject{}, curriculum.ErrSubjectNotFound
	}
	if err := repo.checkSubject(s); err != nil {
		return curriculum.Subject{}, err
	}
	repo.db.subjects[s.ID] = &s
	return s, nil
}

func (repo *curriculumRepository) DeleteSubject(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.subjects[id]; !ok {
		return curriculum.ErrSubjectNotFound
	}
	repo.deleteSubject(id)
	return nil
}

// deleteSubject removes the subject with the rows depending on it; the write lock must be held.
func (repo *curriculumRepository) deleteSubject(id int) {
	delete(repo.db.subjects, id)
	for teacherID, subjectIDs := range repo.db.teacherSubjects {
		repo.db.teacherSubjects[teacherID] = removeInt(subjectIDs, id)
	}
	for seID, se := range repo.db.subjectEnrollments {
		if se.SubjectID == id {
			delete(repo.db.subjectEnrollments, seID)
		}
	}
	for sessionID, s := range repo.db.sessions {
		if s.SubjectID == id {
			deleteSession(repo.db, sessionID)
		}
	}
	for slotID, s := range repo.db.slots {
		if s.SubjectID == id {
			delete(repo.db.slots, slotID)
		}
	}
	for examID, e := range repo.db.exams {
		if e.SubjectID == id {
			deleteExam(repo.db, examID)
		}
	}
}

func removeInt(list []int, v int) []int {
	kept := list[:0]
	for _, i := range list {
		if i != v {
			kept = append(kept, i)
		}
	}
	return kept
}

// academic years

func (repo *curriculumRepository) nameTaken(ay curriculum.AcademicYear) bool {
	for _, other := range repo.db.academicYears {
		if other.ID != ay.ID && strings.EqualFold(other.Name, ay.Name) {
			return true
		}
	}
	return false
}

func (repo *curriculumRepository) CreateAcademicYear(_ context.Context, ay curriculum.AcademicYear, _ ...core.DBExecutor) (curriculum.AcademicYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.nameTaken(ay) {
		return curriculum.AcademicYear{}, curriculum.ErrNameExists
	}
	ay.ID = repo.db.nextPK("academic_years")
	repo.db.academicYears[ay.ID] = &ay
	return ay, nil
}

func (repo *curriculumRepository) GetAcademicYear(_ context.Context, id int, _ ...core.DBExecutor) (curriculum.AcademicYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ay, ok := repo.db.academicYears[id]; ok {
		return *ay, nil
	}
	return curriculum.AcademicYear{}, curriculum.ErrAcademicYearNotFound
}

func (repo *curriculumRepository) GetCurrentAcademicYear(ctx context.Context, exec ...core.DBExecutor) (curriculum.AcademicYear, error) {
	years, _ := repo.QueryAcademicYears(ctx, exec...)
	for _, ay := range years {
		if ay.IsCurrent {
			return ay, nil
		}
	}
	return curriculum.AcademicYear{}, curriculum.ErrNoCurrentYear
}

// QueryAcademicYears lists the most recent years first.
func (repo *curriculumRepository) QueryAcademicYears(_ context.Context, _ ...core.DBExecutor) ([]curriculum.AcademicYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := rows(repo.db.academicYears)
	sort.SliceStable(list, func(i, j int) bool { return list[i].StartDate.After(list[j].StartDate) })
	return list, nil
}

func (repo *curriculumRepository) UpdateAcademicYear(_ context.Context, ay curriculum.AcademicYear, _ ...core.DBExecutor) (curriculum.AcademicYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.academicYears[ay.ID]; !ok {
		return curriculum.AcademicYear{}, curriculum.ErrAcademicYearNotFound
	}
	if repo.nameTaken(ay) {
		return curriculum.AcademicYear{}, curriculum.ErrNameExists
	}
	repo.db.academicYears[ay.ID] = &ay
	return ay, nil
}

func (repo *curriculumRepository) ClearCurrentAcademicYear(_ context.Context, exceptID int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, ay := range repo.db.academicYears {
		if ay.IsCurrent && ay.ID != exceptID {
			ay.IsCurrent = false
			ay.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (repo *curriculumRepository) DeleteAcademicYear(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.academicYears[id]; !ok {
		return curriculum.ErrAcademicYearNotFound
	}
	for _, e := range repo.db.enrollments {
		if e.AcademicYearID == id {
			return errInUse
		}
	}
	delete(repo.db.academicYears, id)
	for slotID, s := range repo.db.slots {
		if s.AcademicYearID == id {
			delete(repo.db.slots, slotID)
		}
	}
	for _, inv := range repo.db.invoices {
		if intPtrEquals(inv.AcademicYearID, id) {
			inv.AcademicYearID = nil
		}
	}
	return nil
}
