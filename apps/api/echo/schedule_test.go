package echoapi_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/schedule"
	"github.com/trezcool/elimu/core/user"
	testutil "github.com/trezcool/elimu/tests"
)

func Test_scheduleApi_sessions(t *testing.T) {
	e := setup(t)

	maths := testutil.CreateCurriculum(t, e.CurriculumRepo, "Maths", "MATH")
	algebra := testutil.CreateSubject(t, e.CurriculumRepo, maths.ID, "Algebra", "ALG")
	room := testutil.CreateRoom(t, e.ScheduleRepo, "Room 5", true)

	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.test", "", []string{user.RoleAdmin}, true)
	aliceUsr := testutil.CreateUser(t, e.UserRepo, "Alice", "alice", "alice@test.test", "", []string{user.RoleTeacher}, true)
	bobUsr := testutil.CreateUser(t, e.UserRepo, "Bob", "bob", "bob@test.test", "", []string{user.RoleTeacher}, true)
	parentUsr := testutil.CreateUser(t, e.UserRepo, "Pat", "pat", "pat@test.test", "", []string{user.RoleParent}, true)
	alice := testutil.CreateTeacher(t, e.ProfileRepo, "Alice", "Kamau", &aliceUsr.ID, algebra.ID)
	testutil.CreateTeacher(t, e.ProfileRepo, "Bob", "Otieno", &bobUsr.ID, algebra.ID)
	parent := testutil.CreateParent(t, e.ProfileRepo, "Pat", "Wanjiru", "pat@test.test")
	child := testutil.CreateChild(t, e.ProfileRepo, parent.ID, "Amani", "Wanjiru")

	adminToken, aliceToken, bobToken := e.token(t, admin), e.token(t, aliceUsr), e.token(t, bobUsr)
	day := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	session := func(start, end string, teacherID *int) []byte {
		return marshallObj(t, schedule.SessionData{
			SubjectID: algebra.ID, RoomID: &room.ID, Type: schedule.TypeLecture,
			Date: day, StartTime: start, EndTime: end, TeacherProfileID: teacherID,
		})
	}

	rec := e.do(http.MethodPost, "/v1/sessions", aliceToken, session("10:00", "11:00", nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first schedule.Session
	decode(t, rec, &first)
	assert.Equal(t, alice.ID, first.TeacherProfileID)
	sessionPath := fmt.Sprintf("/v1/sessions/%d", first.ID)

	conflict := []byte(fmt.Sprintf(`{"room_id":%q}`, schedule.ErrRoomConflict.Error()))
	notFound := marshallObj(t, httpErr{Error: schedule.ErrSessionNotFound.Error()})

	runHTTPTests(t, e, []httpTest{
		{
			name: "parents cannot schedule", method: http.MethodPost, path: "/v1/sessions", token: e.token(t, parentUsr),
			body: session("12:00", "13:00", nil), wantCode: http.StatusForbidden,
		},
		{
			name: "overlapping room booking", method: http.MethodPost, path: "/v1/sessions", token: bobToken,
			body: session("10:30", "11:30", nil), wantCode: http.StatusBadRequest, wantData: conflict,
		},
		{
			name: "back to back is fine", method: http.MethodPost, path: "/v1/sessions", token: bobToken,
			body: session("11:00", "12:00", nil), wantCode: http.StatusCreated,
		},
		{
			name: "admin must pick a teacher", method: http.MethodPost, path: "/v1/sessions", token: adminToken,
			body: session("14:00", "15:00", nil), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"teacher_profile_id":"a teacher is required"}`),
		},
		{
			name: "admin schedules for a teacher", method: http.MethodPost, path: "/v1/sessions", token: adminToken,
			body: session("14:00", "15:00", &alice.ID), wantCode: http.StatusCreated,
		},
		{
			name: "other teacher cannot edit", method: http.MethodPut, path: sessionPath, token: bobToken,
			body: session("08:00", "09:00", nil), wantCode: http.StatusNotFound, wantData: notFound,
		},
		{
			name: "other teacher cannot see attendance", path: sessionPath + "/attendance", token: bobToken,
			wantCode: http.StatusNotFound, wantData: notFound,
		},
		{
			name: "owner records attendance", method: http.MethodPost, path: sessionPath + "/attendance", token: aliceToken,
			body:     marshallObj(t, schedule.AttendanceData{Records: []schedule.AttendanceRecord{{ChildProfileID: child.ID, Status: "PRESENT"}}}),
			wantCode: http.StatusOK,
		},
		{
			name: "admin edits on behalf of the owner", method: http.MethodPut, path: sessionPath, token: adminToken,
			body: session("08:00", "09:00", nil), wantCode: http.StatusOK,
		},
		{name: "unknown session", path: "/v1/sessions/9999", token: aliceToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "malformed id", path: "/v1/sessions/abc", token: aliceToken, wantCode: http.StatusNotFound},
	})

	rec = e.do(http.MethodGet, sessionPath+"/attendance", aliceToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var att []schedule.Attendance
	decode(t, rec, &att)
	require.Len(t, att, 1)
	assert.Equal(t, schedule.AttendancePresent, att[0].Status)

	rec = e.do(http.MethodGet, fmt.Sprintf("/v1/sessions?room_id=%d&from=%s", room.ID, day), bobToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []schedule.Session
	decode(t, rec, &sessions)
	assert.Len(t, sessions, 3)

	runHTTPTests(t, e, []httpTest{
		{name: "owner deletes", method: http.MethodDelete, path: sessionPath, token: aliceToken, wantCode: http.StatusNoContent},
		{name: "gone", path: sessionPath, token: aliceToken, wantCode: http.StatusNotFound, wantData: notFound},
	})
}

func Test_scheduleApi_rooms(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.test", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, e.UserRepo, "Alice", "alice", "alice@test.test", "", []string{user.RoleTeacher}, true)
	open := testutil.CreateRoom(t, e.ScheduleRepo, "Lab", true)
	closed := testutil.CreateRoom(t, e.ScheduleRepo, "Attic", false)

	runHTTPTests(t, e, []httpTest{
		{name: "teachers read rooms", path: "/v1/rooms?active=true", token: e.token(t, teacher), wantCode: http.StatusOK, wantData: marshallList(t, open)},
		{name: "all rooms", path: "/v1/rooms", token: e.token(t, admin), wantCode: http.StatusOK, wantData: marshallList(t, closed, open)},
		{
			name: "teachers cannot create rooms", method: http.MethodPost, path: "/v1/rooms", token: e.token(t, teacher),
			body: []byte(`{"name":"Hall","capacity":100}`), wantCode: http.StatusForbidden,
		},
		{
			name: "duplicate name", method: http.MethodPost, path: "/v1/rooms", token: e.token(t, admin),
			body:     []byte(`{"name":"Lab","capacity":10}`),
			wantCode: http.StatusBadRequest, wantData: []byte(fmt.Sprintf(`{"name":%q}`, schedule.ErrRoomNameExists.Error())),
		},
	})
}
