package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single operator", input: "keeper", expected: []string{"keeper"}},
		{name: "varied spacing", input: "keeper,  curator , guardian", expected: []string{"keeper", "curator", "guardian"}},
		{name: "empty entries dropped", input: "keeper,,curator,", expected: []string{"keeper", "curator"}},
		{name: "only separators", input: " , ,", expected: nil},
		{name: "repeats keep first position", input: "curator,keeper, curator", expected: []string{"curator", "keeper"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input))
		})
	}
}
