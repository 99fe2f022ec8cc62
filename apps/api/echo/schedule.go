package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/profile"
	"github.com/trezcool/elimu/core/schedule"
	"github.com/trezcool/elimu/core/user"
)

var errTeacherRequired = errors.New("a teacher is required")

type scheduleApi struct {
	conf     *core.Config
	svc      schedule.Service
	profiles profile.Service
	users    user.Service
}

func registerScheduleAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := scheduleApi{
		conf:     deps.Conf,
		svc:      deps.ScheduleSvc,
		profiles: deps.ProfileSvc,
		users:    deps.UserSvc,
	}
	admin := adminMiddleware()

	rg := g.Group("/rooms", auth)
	rg.GET("", api.queryRooms)
	crud[schedule.Room, schedule.RoomData]{
		name:    "room",
		create:  api.svc.CreateRoom,
		get:     api.svc.GetRoom,
		update:  api.svc.UpdateRoom,
		destroy: api.svc.DeleteRoom,
	}.register(rg, admin)

	// teachers manage their own sessions; admins act on behalf of the session's teacher
	sg := g.Group("/sessions", auth)
	sg.GET("", api.querySessions)
	sg.GET("/:id", api.retrieveSession)
	sg.POST("", api.createSession, staffMiddleware)
	sg.PUT("/:id", api.updateSession, staffMiddleware)
	sg.DELETE("/:id", api.destroySession, staffMiddleware)
	sg.GET("/:id/attendance", api.attendance, staffMiddleware)
	sg.POST("/:id/attendance", api.recordAttendance, staffMiddleware)

	tg := g.Group("/timetable", auth)
	tg.GET("", api.timetable)
	crud[schedule.TimetableSlot, schedule.TimetableSlotData]{
		name:    "timetable slot",
		create:  api.svc.CreateSlot,
		get:     api.svc.GetSlot,
		update:  api.svc.UpdateSlot,
		destroy: api.svc.DeleteSlot,
	}.register(tg, admin)

	xg := g.Group("/exams", auth)
	xg.GET("", api.queryExams)
	crud[schedule.Exam, schedule.ExamData]{
		name:    "exam",
		create:  api.svc.CreateExam,
		get:     api.svc.GetExam,
		update:  api.svc.UpdateExam,
		destroy: api.svc.DeleteExam,
	}.register(xg, admin)
	xg.GET("/:id/results", api.examResults, staffMiddleware)
	xg.POST("/:id/results", api.recordExamResults, staffMiddleware)

	evg := g.Group("/events", auth)
	evg.GET("", api.queryEvents)
	crud[schedule.Event, schedule.EventData]{
		name:    "event",
		create:  api.svc.CreateEvent,
		get:     api.svc.GetEvent,
		update:  api.svc.UpdateEvent,
		destroy: api.svc.DeleteEvent,
	}.register(evg, admin)
}

// ctxTeacher returns the teacher profile the request acts as.
// Teachers always act as themselves; admins pick the teacher through requested.
func (api *scheduleApi) ctxTeacher(ctx echo.Context, requested *int) (profile.TeacherProfile, error) {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return profile.TeacherProfile{}, errors.Wrap(err, "getting context user")
	}
	reqCtx := ctx.Request().Context()

	if usr.IsAdmin() && requested != nil {
		tp, err := api.profiles.GetTeacher(reqCtx, *requested)
		if errors.Is(err, profile.ErrTeacherNotFound) {
			return profile.TeacherProfile{}, core.NewFieldError("teacher_profile_id", profile.ErrTeacherNotFound)
		}
		return tp, errors.Wrap(err, "finding teacher")
	}
	if usr.IsTeacher() {
		tp, err := api.profiles.GetTeacherByUserID(reqCtx, usr.ID)
		if errors.Is(err, profile.ErrTeacherNotFound) {
			return profile.TeacherProfile{}, errHttpForbidden
		}
		return tp, errors.Wrap(err, "finding teacher profile of user")
	}
	return profile.TeacherProfile{}, core.NewFieldError("teacher_profile_id", errTeacherRequired)
}

// sessionTeacher returns the teacher acting on session id: the session's own teacher for admins.
func (api *scheduleApi) sessionTeacher(ctx echo.Context, id int) (profile.TeacherProfile, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return profile.TeacherProfile{}, errors.Wrap(err, "getting context claims")
	}
	if !claims.IsAdmin {
		return api.ctxTeacher(ctx, nil)
	}
	s, err := api.svc.GetSession(ctx.Request().Context(), id)
	if err != nil {
		return profile.TeacherProfile{}, errors.Wrap(err, "retrieving session")
	}
	return api.ctxTeacher(ctx, &s.TeacherProfileID)
}

func (api *scheduleApi) queryRooms(ctx echo.Context) error {
	activeOnly := newQueryParams(ctx, nil).Bool("active")
	list, err := api.svc.QueryRooms(ctx.Request().Context(), activeOnly != nil && *activeOnly)
	return listResponse(ctx, list, err, "rooms")
}

func (api *scheduleApi) querySessions(ctx echo.Context) error {
	q := newQueryParams(ctx, api.conf.Timezone)
	filter := schedule.SessionFilter{
		SubjectID:        q.Int("subject_id"),
		TeacherProfileID: q.Int("teacher_profile_id"),
		RoomID:           q.Int("room_id"),
		Type:             q.String("type"),
		From:             q.Time("from"),
		To:               q.Time("to"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.svc.QuerySessions(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "sessions")
}

func (api *scheduleApi) retrieveSession(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.GetSession(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "retrieving session")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *scheduleApi) createSession(ctx echo.Context) error {
	var data schedule.SessionData
	if err := bindBody(ctx, &data, "SessionData"); err != nil {
		return err
	}
	teacher, err := api.ctxTeacher(ctx, data.TeacherProfileID)
	if err != nil {
		return err
	}
	s, err := api.svc.CreateSession(ctx.Request().Context(), teacher, data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *scheduleApi) updateSession(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data schedule.SessionData
	if err = bindBody(ctx, &data, "SessionData"); err != nil {
		return err
	}
	teacher, err := api.sessionTeacher(ctx, id)
	if err != nil {
		return err
	}
	s, err := api.svc.UpdateSession(ctx.Request().Context(), teacher, id, data)
	if err != nil {
		return errors.Wrap(err, "updating session")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *scheduleApi) destroySession(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	teacher, err := api.sessionTeacher(ctx, id)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSession(ctx.Request().Context(), teacher, id); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ownSession loads session id, hiding the sessions of other teachers from teachers.
func (api *scheduleApi) ownSession(ctx echo.Context, id int) (schedule.Session, error) {
	teacher, err := api.sessionTeacher(ctx, id)
	if err != nil {
		return schedule.Session{}, err
	}
	s, err := api.svc.GetSession(ctx.Request().Context(), id)
	if err != nil {
		return schedule.Session{}, errors.Wrap(err, "retrieving session")
	}
	if s.TeacherProfileID != teacher.ID {
		return schedule.Session{}, schedule.ErrSessionNotFound
	}
	return s, nil
}

func (api *scheduleApi) attendance(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if _, err = api.ownSession(ctx, id); err != nil {
		return err
	}
	list, err := api.svc.Attendance(ctx.Request().Context(), id)
	return listResponse(ctx, list, err, "attendance")
}

func (api *scheduleApi) recordAttendance(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data schedule.AttendanceData
	if err = bindBody(ctx, &data, "AttendanceData"); err != nil {
		return err
	}
	if _, err = api.ownSession(ctx, id); err != nil {
		return err
	}
	list, err := api.svc.RecordAttendance(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *scheduleApi) timetable(ctx echo.Context) error {
	q := newQueryParams(ctx, nil)
	filter := schedule.SlotFilter{
		AcademicYearID:   q.Int("academic_year_id"),
		TeacherProfileID: q.Int("teacher_profile_id"),
		SubjectID:        q.Int("subject_id"),
		RoomID:           q.Int("room_id"),
		Weekday:          q.IntPtr("weekday"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.svc.Timetable(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "timetable")
}

func (api *scheduleApi) queryExams(ctx echo.Context) error {
	q := newQueryParams(ctx, api.conf.Timezone)
	filter := schedule.ExamFilter{
		SubjectID: q.Int("subject_id"),
		From:      q.Time("from"),
		To:        q.Time("to"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.svc.QueryExams(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "exams")
}

// gradableExam loads exam id; teachers may only grade the exams of subjects they teach.
func (api *scheduleApi) gradableExam(ctx echo.Context, id int) (schedule.Exam, error) {
	exam, err := api.svc.GetExam(ctx.Request().Context(), id)
	if err != nil {
		return schedule.Exam{}, errors.Wrap(err, "retrieving exam")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return schedule.Exam{}, errors.Wrap(err, "getting context claims")
	}
	if claims.IsAdmin {
		return exam, nil
	}
	teacher, err := api.ctxTeacher(ctx, nil)
	if err != nil {
		return schedule.Exam{}, err
	}
	if !teacher.Teaches(exam.SubjectID) {
		return schedule.Exam{}, errHttpForbidden
	}
	return exam, nil
}

func (api *scheduleApi) examResults(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if _, err = api.gradableExam(ctx, id); err != nil {
		return err
	}
	list, err := api.svc.ExamResults(ctx.Request().Context(), id)
	return listResponse(ctx, list, err, "exam results")
}

func (api *scheduleApi) recordExamResults(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data schedule.ExamResultsData
	if err = bindBody(ctx, &data, "ExamResultsData"); err != nil {
		return err
	}
	if _, err = api.gradableExam(ctx, id); err != nil {
		return err
	}
	list, err := api.svc.RecordExamResults(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "recording exam results")
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *scheduleApi) queryEvents(ctx echo.Context) error {
	q := newQueryParams(ctx, api.conf.Timezone)
	filter := schedule.EventFilter{
		Audience: q.String("audience"),
		From:     q.Time("from"),
		To:       q.Time("to"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.svc.QueryEvents(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "events")
}
