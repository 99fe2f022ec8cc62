package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_isNewer(t *testing.T) {
	tests := []struct {
		current, latest string
		want            bool
	}{
		{"0.0.0", "1.0.0", true},
		{"1.0.0", "1.0.0", false},
		{"1.2.0", "1.1.0", false},
		{"1.2.0-beta.1", "1.2.0", true},
		{"1.2.0", "1.2.0-beta.1", false},
		{"1.2.0-beta.1", "1.2.0-beta.2", true},
		{"1.2.0-beta.2", "1.2.0-beta.10", true},
		{"v1.1.0", "1.2.0", true},
		{"1.9.0", "1.10.0", true},
		{"", "1.0.0", false},
		{"1.0.0", "latest", false},
	}
	for _, tt := range tests {
		t.Run(tt.current+" -> "+tt.latest, func(t *testing.T) {
			assert.Equal(t, tt.want, isNewer(tt.current, tt.latest))
		})
	}
}

func Test_isVersion(t *testing.T) {
	assert.True(t, isVersion("1.2.0"))
	assert.True(t, isVersion("v1.3.0-beta.1"))
	assert.False(t, isVersion("test"))
	assert.False(t, isVersion(""))
}
