package echoapi

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

var (
	orderingParam = "ordering"

	errInvalidNumber = errors.New("must be a number")
	errInvalidBool   = errors.New("must be true or false")
	errInvalidTime   = errors.New("must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// queryParams reads typed filter values from the query string; the first malformed one is kept as a field error.
type queryParams struct {
	values url.Values
	loc    *time.Location
	errs   []core.FieldError
}

func newQueryParams(ctx echo.Context, loc *time.Location) *queryParams {
	if loc == nil {
		loc = time.UTC
	}
	return &queryParams{values: ctx.QueryParams(), loc: loc}
}

func (q *queryParams) fail(name string, err error) {
	q.errs = append(q.errs, core.FieldError{Field: name, Error: err.Error()})
}

func (q *queryParams) String(name string) string {
	return strings.TrimSpace(q.values.Get(name))
}

func (q *queryParams) Strings(name string) []string {
	var list []string
	for _, v := range q.values[name] {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func (q *queryParams) Int(name string) int {
	val := q.String(name)
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		q.fail(name, errInvalidNumber)
	}
	return n
}

func (q *queryParams) IntPtr(name string) *int {
	if q.String(name) == "" {
		return nil
	}
	n := q.Int(name)
	return &n
}

func (q *queryParams) Bool(name string) *bool {
	val := q.String(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		q.fail(name, errInvalidBool)
		return nil
	}
	return &b
}

// Time accepts RFC 3339 timestamps or plain dates, read in the school's timezone.
func (q *queryParams) Time(name string) time.Time {
	val := q.String(name)
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	t, err := core.ParseDate(val, q.loc)
	if err != nil {
		q.fail(name, errInvalidTime)
	}
	return t
}

func (q *queryParams) Err() error {
	if len(q.errs) == 0 {
		return nil
	}
	return core.NewValidationError(nil, q.errs...)
}

// pathID reads the integer ":id" (or another named) path parameter; malformed IDs are reported as not found.
func pathID(ctx echo.Context, name ...string) (int, error) {
	param := "id"
	if len(name) > 0 {
		param = name[0]
	}
	id, err := strconv.Atoi(ctx.Param(param))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

func bindBody(ctx echo.Context, data interface{}, name string) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrap(err, "binding to "+name)
	}
	return nil
}
