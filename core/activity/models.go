package activity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Actions
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Log is an append-only audit entry.
type Log struct {
	ID          int        `json:"id" db:"id"`
	LogName     string     `json:"log_name" db:"log_name"`
	Action      string     `json:"action" db:"action"`
	Description string     `json:"description" db:"description"`
	SubjectType string     `json:"subject_type" db:"subject_type"`
	SubjectID   string     `json:"subject_id" db:"subject_id"`
	CauserID    *string    `json:"causer_id" db:"causer_id"`
	CauserName  string     `json:"causer_name" db:"causer_name"`
	Properties  Properties `json:"properties" db:"properties"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Properties holds the attribute snapshot of a change. Old only carries the previous value of changed attributes.
type Properties struct {
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Old        map[string]interface{} `json:"old,omitempty"`
	Diff       string                 `json:"diff,omitempty"`
}

func (p Properties) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling activity properties")
	}
	return data, nil
}

func (p *Properties) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = Properties{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("activity.Properties: cannot scan %T", src)
	}
	return errors.Wrap(json.Unmarshal(data, p), "unmarshalling activity properties")
}

// Entry describes an audit entry to record; the causer is taken from the context.
type Entry struct {
	LogName     string
	Action      string
	Description string
	SubjectType string
	SubjectID   string
	Properties  Properties
}

type QueryFilter struct {
	SubjectType string `query:"subject_type"`
	SubjectID   string `query:"subject_id"`
	CauserID    string `query:"causer_id"`
	Action      string `query:"action"`
	Limit       int    `query:"limit"`
}
