package echoapi_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/elimu/apps/api/echo"
	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/system"
	"github.com/trezcool/elimu/core/user"
	testutil "github.com/trezcool/elimu/tests"
)

func Test_curriculumApi_notFound(t *testing.T) {
	e := setup(t)
	usr := testutil.CreateUser(t, e.UserRepo, "Hero", "hero", "hero@test.test", "", []string{user.RoleStudent}, true)
	token := e.token(t, usr)

	runHTTPTests(t, e, []httpTest{
		{
			name: "unknown curriculum", path: "/v1/curricula/999", token: token,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: curriculum.ErrCurriculumNotFound.Error()}),
		},
		{
			name: "malformed id", path: "/v1/curricula/abc", token: token,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "no current year", path: "/v1/academic-years/current", token: token,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: curriculum.ErrNoCurrentYear.Error()}),
		},
		{name: "students cannot write", method: http.MethodPost, path: "/v1/curricula", token: token, body: []byte(`{}`), wantCode: http.StatusForbidden},
	})
}

func Test_enrollmentApi(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.test", "", []string{user.RoleAdmin}, true)
	maths := testutil.CreateCurriculum(t, e.CurriculumRepo, "Maths", "MATH")
	algebra := testutil.CreateSubject(t, e.CurriculumRepo, maths.ID, "Algebra", "ALG")
	start := time.Date(time.Now().Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	year := testutil.CreateAcademicYear(t, e.CurriculumRepo, "This year", start, start.AddDate(1, 0, -1), true)
	parent := testutil.CreateParent(t, e.ProfileRepo, "Pat", "Wanjiru", "pat@test.test")
	child := testutil.CreateChild(t, e.ProfileRepo, parent.ID, "Amani", "Wanjiru")
	token := e.token(t, admin)

	body := marshallObj(t, enrollment.EnrollmentData{ChildProfileID: child.ID, CurriculumID: maths.ID, AcademicYearID: year.ID})
	rec := e.do(http.MethodPost, "/v1/enrollments", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var enr enrollment.ProgramEnrollment
	decode(t, rec, &enr)
	assert.Equal(t, enrollment.StatusPending, enr.Status)
	path := fmt.Sprintf("/v1/enrollments/%d", enr.ID)

	runHTTPTests(t, e, []httpTest{
		{
			name: "same triple twice", method: http.MethodPost, path: "/v1/enrollments", token: token, body: body,
			wantCode: http.StatusBadRequest, wantData: []byte(fmt.Sprintf(`{"child_profile_id":%q}`, enrollment.ErrDuplicate.Error())),
		},
		{
			name: "add subject", method: http.MethodPost, path: path + "/subjects", token: token,
			body: marshallObj(t, enrollment.SubjectsData{SubjectIDs: []int{algebra.ID}}), wantCode: http.StatusCreated,
		},
		{name: "nothing left to take", path: path + "/available-subjects", token: token, wantCode: http.StatusOK, wantData: marshallList(t)},
	})

	rec = e.do(http.MethodGet, "/v1/enrollments?child_profile_id="+fmt.Sprint(child.ID), token)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []enrollment.ProgramEnrollment
	decode(t, rec, &list)
	assert.Len(t, list, 1)
}

func Test_billingApi(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.test", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, e.UserRepo, "Alice", "alice", "alice@test.test", "", []string{user.RoleTeacher}, true)
	parent := testutil.CreateParent(t, e.ProfileRepo, "Pat", "Wanjiru", "pat@test.test")
	child := testutil.CreateChild(t, e.ProfileRepo, parent.ID, "Amani", "Wanjiru")
	token := e.token(t, admin)

	today := time.Now().UTC()
	rec := e.do(http.MethodPost, "/v1/invoices", token, marshallObj(t, billing.NewInvoice{
		ChildProfileID: child.ID,
		DueDate:        today.AddDate(0, 0, 30).Format("2006-01-02"),
		Items:          []billing.InvoiceItemData{{Description: "Tuition", Quantity: 2, UnitPrice: 50000}},
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv billing.Invoice
	decode(t, rec, &inv)
	assert.True(t, strings.HasPrefix(inv.Number, billing.InvoicePrefix(billing.NowFunc())), inv.Number)
	assert.Equal(t, int64(100000), inv.Total)
	assert.Equal(t, billing.InvoiceIssued, inv.Status)

	payment := func(due time.Time, status string) {
		t.Helper()
		rec := e.do(http.MethodPost, "/v1/payments", token, marshallObj(t, billing.NewPayment{
			ChildProfileID: child.ID, InvoiceID: &inv.ID, Amount: 25000,
			Status: status, DueDate: due.Format("2006-01-02"),
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	payment(today.AddDate(0, 0, -10), billing.PaymentPending)
	payment(today.AddDate(0, 0, -10), billing.PaymentCompleted)
	payment(today.AddDate(0, 0, 10), billing.PaymentPending)

	rec = e.do(http.MethodGet, "/v1/payments?overdue=true", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var overdue []map[string]interface{}
	decode(t, rec, &overdue)
	require.Len(t, overdue, 1)
	assert.Equal(t, billing.PaymentPending, overdue[0]["status"])
	assert.Equal(t, true, overdue[0]["is_overdue"])

	runHTTPTests(t, e, []httpTest{
		{name: "admins only", path: "/v1/invoices", token: e.token(t, teacher), wantCode: http.StatusForbidden},
		{
			name: "bad overdue flag", path: "/v1/payments?overdue=soon", token: token,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"overdue":"must be true or false"}`),
		},
		{
			name: "search by number", path: "/v1/invoices?search=" + inv.Number, token: token,
			wantCode: http.StatusOK,
		},
		{
			name: "cancel invoice", method: http.MethodPut, path: fmt.Sprintf("/v1/invoices/%d/status", inv.ID), token: token,
			body: marshallObj(t, billing.InvoiceStatusData{Status: billing.InvoiceCancelled}), wantCode: http.StatusOK,
		},
		{
			name: "unknown invoice", path: "/v1/invoices/9999", token: token,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: billing.ErrInvoiceNotFound.Error()}),
		},
	})
}

func Test_systemApi(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.test", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, e.UserRepo, "Alice", "alice", "alice@test.test", "s3cret-pwd", []string{user.RoleTeacher}, true)
	token := e.token(t, admin)

	rec := e.do(http.MethodPost, "/v1/system/backups", token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var b system.Backup
	decode(t, rec, &b)
	assert.NotEmpty(t, b.Name)

	rec = e.do(http.MethodGet, "/v1/system/backups", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var backups []system.Backup
	decode(t, rec, &backups)
	require.Len(t, backups, 1)
	assert.Equal(t, b.Name, backups[0].Name)

	rec = e.do(http.MethodGet, "/v1/system/updates", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var info system.UpdateInfo
	decode(t, rec, &info)
	assert.Equal(t, system.ChannelStable, info.Channel)
	assert.Equal(t, "1.2.0", info.LatestVersion)

	runHTTPTests(t, e, []httpTest{
		{name: "admins only", path: "/v1/system/backups", token: e.token(t, teacher), wantCode: http.StatusForbidden},
		{name: "download", path: "/v1/system/backups/" + b.Name, token: token, wantCode: http.StatusOK},
		{
			name: "unknown channel", method: http.MethodPut, path: "/v1/system/updates/channel", token: token,
			body:     marshallObj(t, echoapi.ChannelRequest{Channel: "nightly"}),
			wantCode: http.StatusBadRequest, wantData: []byte(fmt.Sprintf(`{"channel":%q}`, system.ErrUnknownChannel.Error())),
		},
		{name: "delete backup", method: http.MethodDelete, path: "/v1/system/backups/" + b.Name, token: token, wantCode: http.StatusNoContent},
	})
}

func Test_maintenanceMode(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.test", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, e.UserRepo, "Alice", "alice", "alice@test.test", "s3cret-pwd", []string{user.RoleTeacher}, true)
	adminToken, teacherToken := e.token(t, admin), e.token(t, teacher)

	rec := e.do(http.MethodPost, "/v1/system/maintenance", adminToken,
		marshallObj(t, echoapi.MaintenanceRequest{Message: "Back soon", RetryAfter: 120}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodGet, "/v1/users/me", teacherToken)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "120", rec.Header().Get("Retry-After"))
	ok, err := jsonBytesEqual(rec.Body.Bytes(), marshallObj(t, httpErr{Error: "Back soon"}))
	require.NoError(t, err)
	assert.True(t, ok, rec.Body.String())

	runHTTPTests(t, e, []httpTest{
		{name: "admins pass", path: "/v1/users/me", token: adminToken, wantCode: http.StatusOK},
		{
			name: "login stays open", method: http.MethodPost, path: "/v1/users/login",
			body: marshallObj(t, echoapi.LoginRequest{Username: "alice", Password: "s3cret-pwd"}), wantCode: http.StatusOK,
		},
		{name: "switch off", method: http.MethodDelete, path: "/v1/system/maintenance", token: adminToken, wantCode: http.StatusOK},
		{name: "teachers are back", path: "/v1/users/me", token: teacherToken, wantCode: http.StatusOK},
	})

	state, err := e.maintenance.Status()
	require.NoError(t, err)
	assert.False(t, state.Enabled)
}
