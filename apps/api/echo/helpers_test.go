package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/elimu/apps/api/echo"
	"github.com/trezcool/elimu/core/system"
	"github.com/trezcool/elimu/core/user"
	testutil "github.com/trezcool/elimu/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type env struct {
	*testutil.App
	srv         echoapi.Server
	maintenance *system.Maintenance
}

// dumpRunner stands in for pg_dump.
type dumpRunner struct{}

func (dumpRunner) Run(_ context.Context, stdout io.Writer, _ []string, _ string, _ ...string) error {
	_, err := io.WriteString(stdout, "-- PostgreSQL database dump\n")
	return err
}

func setup(t *testing.T) *env {
	t.Helper()
	app := testutil.NewApp(t)

	backups, err := system.NewBackupManager(app.Conf, dumpRunner{}, app.Logger)
	require.NoError(t, err)
	logs, err := system.NewLogViewer(app.Conf.System.LogFile)
	require.NoError(t, err)
	mnt, err := system.NewMaintenance(app.Conf.System.MaintenanceFile)
	require.NoError(t, err)
	updater, err := system.NewUpdater(app.Conf, app.Logger)
	require.NoError(t, err)

	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           app.Conf,
		Logger:         app.Logger,
		Validate:       app.Validate,
		Translator:     app.Translator,
		UserSvc:        app.UserSvc,
		ProfileSvc:     app.ProfileSvc,
		CurriculumSvc:  app.CurriculumSvc,
		EnrollmentSvc:  app.EnrollmentSvc,
		ScheduleSvc:    app.ScheduleSvc,
		BillingSvc:     app.BillingSvc,
		ActivitySvc:    app.ActivitySvc,
		ReportSvc:      app.ReportSvc,
		Backups:        backups,
		Logs:           logs,
		Maintenance:    mnt,
		Updater:        updater,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = srv.Close() })
	return &env{App: app, srv: srv, maintenance: mnt}
}

// do serves one request and returns the recorder.
func (e *env) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *env) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(e.Conf, echoapi.GetUserClaims(e.Conf, usr))
	require.NoError(t, err, "getToken()")
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err, "marshallObj()")
	return data
}

func marshallList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	require.NoError(t, err, "marshallList()")
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if assert.NoError(t, err, "jsonBytesEqual()") {
		assert.True(t, ok, "data = %s; wantData %s", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, e *env, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, e.do(method, tt.path, tt.token, tt.body))
		})
	}
}

// decode unmarshals the response body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}
