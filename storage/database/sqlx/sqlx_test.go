package sqlxrepos_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/report"
	"github.com/trezcool/elimu/core/schedule"
	"github.com/trezcool/elimu/core/user"
	"github.com/trezcool/elimu/storage/database"
	sqlxrepos "github.com/trezcool/elimu/storage/database/sqlx"
	boilrepos "github.com/trezcool/elimu/storage/database/sqlboiler"
	testutil "github.com/trezcool/elimu/tests"
)

// openTestDB connects to TEST_DATABASE_URL, migrates it and empties every table.
// Tests using it are skipped when the variable is not set.
func openTestDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db, "up"))

	var tables []string
	require.NoError(t, db.SelectContext(ctx, &tables, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' AND tablename <> 'goose_db_version'`))
	if len(tables) > 0 {
		_, err = db.ExecContext(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE")
		require.NoError(t, err)
	}
	return db
}

func TestUserRepository(t *testing.T) {
	db := openTestDB(t)
	repo := sqlxrepos.NewUserRepository(db)
	ctx := context.Background()

	usr := testutil.CreateUser(t, repo, "Bob", "bob", "bob@test.test", "pwd", []string{user.RoleTeacher}, true)
	got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"", "bob@test.test"}})
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)
	assert.Equal(t, []string{user.RoleTeacher}, got.Roles)

	now := time.Now().UTC()
	_, err = repo.CreateUser(ctx, user.User{Name: "Bob 2", Username: "bob", Roles: []string{}, IsActive: true, CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, user.ErrUsernameExists)

	err = repo.CheckUsernameUniqueness(ctx, "other", "bob@test.test", nil)
	assert.ErrorIs(t, err, user.ErrEmailExists)
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "bob", "bob@test.test", []user.User{usr}))
}

func TestEnrollmentRepository_Triple(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	profiles := sqlxrepos.NewProfileRepository(db)
	curricula := sqlxrepos.NewCurriculumRepository(db)
	repo := sqlxrepos.NewEnrollmentRepository(db)

	parent := testutil.CreateParent(t, profiles, "Jane", "Doe", "")
	child := testutil.CreateChild(t, profiles, parent.ID, "Tom", "Doe")
	c := testutil.CreateCurriculum(t, curricula, "Primary", "PRIM")
	year := testutil.CreateAcademicYear(t, curricula, "2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), true)

	now := time.Now().UTC()
	e := enrollment.ProgramEnrollment{
		ChildProfileID: child.ID, CurriculumID: c.ID, AcademicYearID: year.ID, Status: enrollment.StatusActive,
		EnrollmentDate: now, CreatedAt: now, UpdatedAt: now,
	}
	first, err := repo.CreateEnrollment(ctx, e)
	require.NoError(t, err)

	exists, err := repo.ExistsForTriple(ctx, child.ID, c.ID, year.ID, 0)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.ExistsForTriple(ctx, child.ID, c.ID, year.ID, first.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.CreateEnrollment(ctx, e)
	assert.ErrorIs(t, err, enrollment.ErrDuplicate)

	require.NoError(t, repo.SoftDeleteEnrollment(ctx, first.ID, now))
	_, err = repo.CreateEnrollment(ctx, e)
	assert.NoError(t, err)
}

func TestScheduleRepository_RoomOverlap(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	profiles := sqlxrepos.NewProfileRepository(db)
	curricula := sqlxrepos.NewCurriculumRepository(db)
	repo := sqlxrepos.NewScheduleRepository(db)

	c := testutil.CreateCurriculum(t, curricula, "Primary", "PRIM")
	maths := testutil.CreateSubject(t, curricula, c.ID, "Mathematics", "MATH")
	teacher := testutil.CreateTeacher(t, profiles, "Ada", "Lovelace", nil, maths.ID)
	room := testutil.CreateRoom(t, repo, "Room 5", true)

	start := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	session := func(from time.Time) (schedule.Session, error) {
		return repo.CreateSession(ctx, schedule.Session{
			SubjectID: maths.ID, TeacherProfileID: teacher.ID, RoomID: &room.ID, Type: schedule.TypeLecture,
			StartTime: from, EndTime: from.Add(time.Hour), CreatedAt: start, UpdatedAt: start,
		})
	}
	first, err := session(start)
	require.NoError(t, err)

	_, err = session(start.Add(30 * time.Minute))
	assert.ErrorIs(t, err, schedule.ErrRoomConflict)

	_, err = session(start.Add(time.Hour))
	assert.NoError(t, err, "back to back sessions share the room")

	conflicts, err := repo.FindRoomConflicts(ctx, room.ID, start.Add(-30*time.Minute), start.Add(30*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, first.ID, conflicts[0].ID)

	conflicts, err = repo.FindRoomConflicts(ctx, room.ID, start, start.Add(time.Hour), first.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestBillingRepository_Numbering(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	profiles := sqlxrepos.NewProfileRepository(db)
	repo := sqlxrepos.NewBillingRepository(db)

	parent := testutil.CreateParent(t, profiles, "Jane", "Doe", "")
	child := testutil.CreateChild(t, profiles, parent.ID, "Tom", "Doe")
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	prefix := billing.InvoicePrefix(now)

	last, err := repo.LastInvoiceNumber(ctx, prefix)
	require.NoError(t, err)
	assert.Empty(t, last)

	create := func(number string) error {
		_, err := repo.CreateInvoice(ctx, billing.Invoice{
			Number: number, ChildProfileID: child.ID, IssueDate: now, DueDate: now, Status: billing.InvoiceIssued,
			Total: 100, CreatedAt: now, UpdatedAt: now,
			Items: []billing.InvoiceItem{{Description: "Tuition", Quantity: 1, UnitPrice: 100, Amount: 100}},
		})
		return err
	}
	require.NoError(t, create("INV-202403-0009"))
	require.NoError(t, create("INV-202403-0010"))
	require.NoError(t, create("INV-202402-0042"))
	assert.ErrorIs(t, create("INV-202403-0010"), billing.ErrDuplicateNumber)

	last, err = repo.LastInvoiceNumber(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, "INV-202403-0010", last)

	// LockInvoiceNumbering needs a transaction
	err = core.InTx(ctx, db, func(tx core.DBExecutor) error {
		return repo.LockInvoiceNumbering(ctx, prefix, tx)
	})
	assert.NoError(t, err)
}

func TestReportRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	profiles := sqlxrepos.NewProfileRepository(db)
	parent := testutil.CreateParent(t, profiles, "Jane", "Doe", "")
	testutil.CreateChild(t, profiles, parent.ID, "Tom", "Doe")

	dash, err := boilrepos.NewReportRepository(db).Dashboard(ctx, report.PeriodAt(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, dash.Students)
	assert.Equal(t, 1, dash.Parents)
	assert.Empty(t, dash.EnrollmentsByStatus)
}
