package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"default", nil, "production"},
		{"node env", map[string]string{"NODE_ENV": "development"}, "development"},
		{"mode wins", map[string]string{"MODE": "staging", "NODE_ENV": "development"}, "staging"},
		{"blank ignored", map[string]string{"MODE": "  ", "NODE_ENV": "test"}, "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectMode(func(k string) string { return tt.env[k] })
			assert.Equal(t, tt.want, got)
		})
	}
}
