package profile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/profile"
	testutil "github.com/trezcool/elimu/tests"
)

func TestService_ParentsAndChildren(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()

	parent, err := app.ProfileSvc.CreateParent(ctx, profile.ParentData{FirstName: " Jane ", LastName: "Doe", Email: "JANE@test.test"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", parent.FullName())
	assert.Equal(t, "jane@test.test", parent.Email)

	t.Run("unknown parent", func(t *testing.T) {
		_, err := app.ProfileSvc.CreateChild(ctx, profile.ChildData{ParentID: 999, FirstName: "Tom", LastName: "Doe"})
		testutil.AssertFieldError(t, err, "parent_id", profile.ErrParentNotFound)
	})

	t.Run("invalid gender", func(t *testing.T) {
		_, err := app.ProfileSvc.CreateChild(ctx, profile.ChildData{ParentID: parent.ID, FirstName: "Tom", LastName: "Doe", Gender: "robot"})
		assert.Error(t, err)
	})

	child, err := app.ProfileSvc.CreateChild(ctx, profile.ChildData{
		ParentID: parent.ID, FirstName: "Tom", LastName: "Doe", BirthDate: "2016-04-01", Gender: "Male",
	})
	require.NoError(t, err)
	require.NotNil(t, child.BirthDate)
	assert.Equal(t, "2016-04-01", child.BirthDate.Format(core.DateLayout))
	assert.Equal(t, profile.GenderMale, child.Gender)

	children, err := app.ProfileSvc.ChildrenOf(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	err = app.ProfileSvc.DeleteParent(ctx, parent.ID)
	assert.ErrorIs(t, err, profile.ErrHasChildren)

	require.NoError(t, app.ProfileSvc.DeleteChild(ctx, child.ID))
	require.NoError(t, app.ProfileSvc.DeleteParent(ctx, parent.ID))
	_, err = app.ProfileSvc.GetParent(ctx, parent.ID)
	assert.ErrorIs(t, err, profile.ErrParentNotFound)
}

func TestService_ChildClient(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	parent := testutil.CreateParent(t, app.ProfileRepo, "Jane", "Doe", "")

	client, err := app.ProfileSvc.CreateClient(ctx, profile.ClientData{Name: "ACME Sponsors"})
	require.NoError(t, err)

	child, err := app.ProfileSvc.CreateChild(ctx, profile.ChildData{ParentID: parent.ID, ClientID: &client.ID, FirstName: "Ann", LastName: "Doe"})
	require.NoError(t, err)

	_, err = app.ProfileSvc.CreateChild(ctx, profile.ChildData{ParentID: parent.ID, ClientID: testutil.Ptr(999), FirstName: "Bo", LastName: "Doe"})
	testutil.AssertFieldError(t, err, "client_id", profile.ErrClientNotFound)

	// the student stays, unsponsored
	require.NoError(t, app.ProfileSvc.DeleteClient(ctx, client.ID))
	got, err := app.ProfileSvc.GetChild(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ClientID)
}

func TestService_Teachers(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	c := testutil.CreateCurriculum(t, app.CurriculumRepo, "Primary", "PRIM")
	maths := testutil.CreateSubject(t, app.CurriculumRepo, c.ID, "Maths", "MATH")
	art := testutil.CreateSubject(t, app.CurriculumRepo, c.ID, "Art", "ART")
	usr := testutil.CreateUser(t, app.UserRepo, "Teach", "teach", "teach@test.test", "", nil, true)

	teacher, err := app.ProfileSvc.CreateTeacher(ctx, profile.TeacherData{
		UserID: &usr.ID, FirstName: "Ada", LastName: "Lovelace", SubjectIDs: []int{maths.ID, maths.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{maths.ID}, teacher.SubjectIDs)
	assert.True(t, teacher.Teaches(maths.ID))
	assert.False(t, teacher.Teaches(art.ID))

	t.Run("unknown subject", func(t *testing.T) {
		_, err := app.ProfileSvc.CreateTeacher(ctx, profile.TeacherData{FirstName: "A", LastName: "B", SubjectIDs: []int{999}})
		testutil.AssertFieldError(t, err, "subject_ids", nil)
	})

	t.Run("user already linked", func(t *testing.T) {
		_, err := app.ProfileSvc.CreateTeacher(ctx, profile.TeacherData{UserID: &usr.ID, FirstName: "A", LastName: "B"})
		testutil.AssertFieldError(t, err, "user_id", profile.ErrUserLinked)
	})

	updated, err := app.ProfileSvc.UpdateTeacher(ctx, teacher.ID, profile.TeacherData{
		UserID: &usr.ID, FirstName: "Ada", LastName: "King", SubjectIDs: []int{art.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada King", updated.FullName())

	got, err := app.ProfileSvc.GetTeacherByUserID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, got.ID)
	assert.Equal(t, []int{art.ID}, got.SubjectIDs)

	require.NoError(t, app.ProfileSvc.DeleteTeacher(ctx, teacher.ID))
	_, err = app.ProfileSvc.GetTeacher(ctx, teacher.ID)
	assert.ErrorIs(t, err, profile.ErrTeacherNotFound)
}
