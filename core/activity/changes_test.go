package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type subject struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Tags      []string `json:"tags"`
	UpdatedAt string   `json:"updated_at"`
}

func TestChanges(t *testing.T) {
	old := Snapshot(subject{ID: 1, Name: "Maths", Tags: []string{"a"}, UpdatedAt: "yesterday"})
	new := Snapshot(subject{ID: 1, Name: "Mathematics", Tags: []string{"a"}, UpdatedAt: "today"})

	attrs, prev := Changes(old, new, "updated_at")
	assert.Equal(t, map[string]interface{}{"name": "Mathematics"}, attrs)
	assert.Equal(t, map[string]interface{}{"name": "Maths"}, prev)

	attrs, prev = Changes(map[string]interface{}{"gone": 1.0}, map[string]interface{}{})
	assert.Equal(t, map[string]interface{}{"gone": nil}, attrs)
	assert.Equal(t, map[string]interface{}{"gone": 1.0}, prev)
}

func TestUpdated(t *testing.T) {
	old := subject{ID: 7, Name: "Maths", Tags: []string{"a"}}
	new := subject{ID: 7, Name: "Physics", Tags: []string{"a", "b"}, UpdatedAt: "now"}

	entry := Updated("program_enrollment", 7, "", old, new)
	assert.Equal(t, ActionUpdated, entry.Action)
	assert.Equal(t, "7", entry.SubjectID)
	assert.Equal(t, "Program Enrollment #7 updated: name, tags", entry.Description)
	assert.NotContains(t, entry.Properties.Attributes, "updated_at")
	assert.Equal(t, "Maths", entry.Properties.Old["name"])

	entry = Updated("room", 3, "", old, old)
	assert.Equal(t, "Room #3 saved without changes", entry.Description)
	assert.Empty(t, entry.Properties.Attributes)
}

func TestCreatedDeleted(t *testing.T) {
	s := subject{ID: 2, Name: "Art"}

	entry := Created("subject", s.ID, "Subject Art created", s)
	assert.Equal(t, ActionCreated, entry.Action)
	assert.Equal(t, "Art", entry.Properties.Attributes["name"])
	assert.Nil(t, entry.Properties.Old)

	entry = Deleted("subject", s.ID, s)
	assert.Equal(t, ActionDeleted, entry.Action)
	assert.Equal(t, "Subject #2 deleted", entry.Description)
	assert.Equal(t, "Art", entry.Properties.Old["name"])
}

func TestTextDiff(t *testing.T) {
	assert.Empty(t, TextDiff("same\n", "same\n"))

	diff := TextDiff("line one\nline two\n", "line one\nline 2\n")
	assert.Contains(t, diff, "-line two")
	assert.Contains(t, diff, "+line 2")
}

func TestPropertiesScan(t *testing.T) {
	var p Properties
	assert.NoError(t, p.Scan([]byte(`{"attributes":{"name":"x"}}`)))
	assert.Equal(t, "x", p.Attributes["name"])

	assert.NoError(t, p.Scan(nil))
	assert.Nil(t, p.Attributes)

	assert.Error(t, p.Scan(42))
}
