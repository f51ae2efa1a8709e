package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitIntoWords(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"hello", []string{"hello"}},
		{"  two   words ", []string{"two", "words"}},
		{"line one\nline two", []string{"line", "one", "\n", "line", "two"}},
		{"नमस्ते दुनिया", []string{"नमस्ते", "दुनिया"}},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, splitIntoWords(tc.in), tc.in)
	}
}
