package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPattern(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		key     string
		match   bool
	}{
		{"meetings:1", "meetings:1", true},
		{"meetings:1", "meetings:12", false},
		{"meetings:*", "meetings:", true},
		{"meetings:*", "meetings:123", true},
		{"meetings:*", "other:meetings:123", false},
		{"*", "", true},
		{"*", "anything", true},
		{"*:1", "meetings:1", true},
		{"*:1", "meetings:12", false},
		{"a*b*c", "abc", true},
		{"a*b*c", "axbxc", true},
		{"a*b*c", "axcxb", false},
		{"*bb*b", "bbb", true},
		{"*bb*b", "bb", false},
		{"a*a", "a", false},
		{"a*a", "aa", true},
	} {
		tc := tc

		t.Run(tc.pattern+"/"+tc.key, func(t *testing.T) {
			assert.Equal(t, tc.match, matchPattern(tc.pattern, tc.key))
		})
	}
}
