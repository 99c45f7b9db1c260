package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListParamsNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   ListParams
		want ListParams
	}{
		{"defaults", ListParams{}, ListParams{Page: 1, Limit: 20, SortBy: "created_at", Order: "desc"}},
		{"limit capped", ListParams{Page: 3, Limit: 500}, ListParams{Page: 3, Limit: 100, SortBy: "created_at", Order: "desc"}},
		{"unknown sort", ListParams{SortBy: "password_hash", Order: "sideways"}, ListParams{Page: 1, Limit: 20, SortBy: "created_at", Order: "desc"}},
		{"kept", ListParams{Page: 2, Limit: 5, SortBy: "name", Order: "asc", Search: "  ada "}, ListParams{Page: 2, Limit: 5, SortBy: "name", Order: "asc", Search: "ada"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	tests := []struct {
		term string
		want string
	}{
		{"ada", `%ada%`},
		{"a_b", `%a\_b%`},
		{"100%", `%100\%%`},
		{`c:\x`, `%c:\\x%`},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			assert.Equal(t, tt.want, containsPattern(tt.term))
		})
	}
}
