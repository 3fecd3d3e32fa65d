package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferFormat(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"tasks_export.json", "json"},
		{"exports/tasks_export.csv", "csv"},
		{"tasks.MMD", "mermaid"},
		{"tasks.mermaid", "mermaid"},
		{"tasks.txt", "json"},
		{"tasks", "json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferFormat(tt.name))
		})
	}
}
