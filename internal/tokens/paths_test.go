package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergePathVariants(t *testing.T) {
	base := PathVariants{AccessToken: {"A", "B"}}

	tests := []struct {
		name      string
		overrides PathVariants
		want      []string
	}{
		{"appends new path", PathVariants{AccessToken: {"C"}}, []string{"A", "B", "C"}},
		{"collapses duplicates", PathVariants{AccessToken: {"A"}}, []string{"A", "B"}},
		{"keeps first occurrence order", PathVariants{AccessToken: {"C", "B", "C", "D"}}, []string{"A", "B", "C", "D"}},
		{"no override keeps base", PathVariants{}, []string{"A", "B"}},
		{"nil override keeps base", nil, []string{"A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := MergePathVariants(base, tt.overrides)
			assert.Equal(t, tt.want, merged[AccessToken])
		})
	}
}

func TestMergePathVariants_UnknownKindsDropped(t *testing.T) {
	base := PathVariants{AccessToken: {"A"}}
	merged := MergePathVariants(base, PathVariants{RefreshToken: {"R"}, Kind("idToken"): {"I"}})

	assert.Equal(t, PathVariants{AccessToken: {"A"}}, merged)
}

func TestMergePathVariants_DoesNotMutateBase(t *testing.T) {
	base := DefaultPathVariants()
	_ = MergePathVariants(base, PathVariants{AccessToken: {"data.token"}})

	assert.Equal(t, DefaultPathVariants(), base)
}

func TestDefaultPathVariants(t *testing.T) {
	defaults := DefaultPathVariants()

	assert.Contains(t, defaults[AccessToken], "headers.x-access-token")
	assert.Contains(t, defaults[AccessToken], "data.access_token")
	assert.Equal(t, []string{"headers.x-refresh-token", "data.refresh_token"}, defaults[RefreshToken])
	assert.Equal(t, []string{"headers.x-csrf-token", "headers.x-xsrf-token"}, defaults[CSRFToken])

	// Fresh copy each call
	defaults[AccessToken][0] = "mutated"
	assert.Equal(t, "headers.x-access-token", DefaultPathVariants()[AccessToken][0])
}
