package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendWhereNumbersPlaceholdersFromExistingArgs(t *testing.T) {
	where := []string{"publish_status = 'PUBLISHED'", "NOT (id = ANY($1))"}
	args := []any{[]string{"vid-1"}}

	where, args = appendWhere(where, args, "tags && $%d", []string{"tech"})
	where, args = appendWhere(where, args, "(upload_date, id) < ($%d, $%d)", "2025-01-01", "vid-2")

	require.Len(t, args, 4)
	assert.Equal(t, []string{
		"publish_status = 'PUBLISHED'",
		"NOT (id = ANY($1))",
		"tags && $2",
		"(upload_date, id) < ($3, $4)",
	}, where)
}

func TestTitleKeywordCondition(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		patterns []string
	}{
		{
			name:     "drops short words and lowercases",
			title:    "Go In My Big Production Stack",
			patterns: []string{"%big%", "%production%", "%stack%"},
		},
		{
			name:     "caps at eight keywords",
			title:    "one two three four five six seven eight nine ten",
			patterns: []string{"%one%", "%two%", "%three%", "%four%", "%five%", "%six%", "%seven%", "%eight%"},
		},
		{
			name:  "only noise yields no condition",
			title: "a an of",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cond, arg := titleKeywordCondition(tc.title)
			if tc.patterns == nil {
				assert.Empty(t, cond)
				assert.Nil(t, arg)
				return
			}
			assert.Equal(t, "title ILIKE ANY($%d)", cond)
			assert.Equal(t, tc.patterns, arg)
		})
	}
}
