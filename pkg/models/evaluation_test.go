package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampScore(t *testing.T) {
	tests := []struct {
		name  string
		score int
		want  int
	}{
		{"below range", -10, 0},
		{"lower bound", 0, 0},
		{"in range", 75, 75},
		{"upper bound", 100, 100},
		{"above range", 150, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampScore(tt.score))
		})
	}
}
