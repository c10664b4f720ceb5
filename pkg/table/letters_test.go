package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnIndex(t *testing.T) {
	tests := []struct {
		letters string
		want    int
	}{
		{"A", 0},
		{"B", 1},
		{"Z", 25},
		{"AA", 26},
		{"AB", 27},
		{"AZ", 51},
		{"BA", 52},
		{"b", 1},
		{"", -1},
		{"A1", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ColumnIndex(tt.letters), "letters %q", tt.letters)
	}
}

func TestColumnLetters(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{-1, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ColumnLetters(tt.index), "index %d", tt.index)
	}
}

func TestColumnRoundTrip(t *testing.T) {
	for i := 0; i < 200; i++ {
		assert.Equal(t, i, ColumnIndex(ColumnLetters(i)), "index %d", i)
	}
}
