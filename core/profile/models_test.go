package profile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildProfile_Initials(t *testing.T) {
	tests := []struct {
		first, last string
		want        string
	}{
		{"Amani", "Otieno", "AO"},
		{"  émile", "zola", "ÉZ"},
		{"Solo", "", "S"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ChildProfile{FirstName: tt.first, LastName: tt.last}.Initials())
		})
	}
}

func TestChildProfile_Age(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	bd := date(2015, time.March, 10)
	c := ChildProfile{BirthDate: &bd}

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{name: "day before birthday", now: date(2024, time.March, 9), want: 8},
		{name: "on birthday", now: date(2024, time.March, 10), want: 9},
		{name: "later in the year", now: date(2024, time.December, 1), want: 9},
		{name: "before birth", now: date(2014, time.January, 1), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			age, ok := c.Age(tt.now)
			assert.True(t, ok)
			assert.Equal(t, tt.want, age)
		})
	}

	_, ok := ChildProfile{}.Age(time.Now())
	assert.False(t, ok)
}

func TestChildProfile_MarshalJSON(t *testing.T) {
	NowFunc = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	defer func() { NowFunc = time.Now }()

	bd := time.Date(2018, 1, 15, 0, 0, 0, 0, time.UTC)
	data, err := json.Marshal(ChildProfile{ID: 4, FirstName: "Amani", LastName: "Otieno", BirthDate: &bd})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Amani Otieno", got["full_name"])
	assert.Equal(t, "AO", got["initials"])
	assert.Equal(t, 6.0, got["age"])
	assert.Equal(t, 4.0, got["id"])

	data, err = json.Marshal(ChildProfile{FirstName: "No", LastName: "Birthday"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Nil(t, got["age"])
}
