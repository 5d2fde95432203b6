package tokens

import "slices"

// PathVariants maps each token kind to its candidate paths in priority order.
type PathVariants map[Kind][]string

// DefaultPathVariants returns a fresh copy of the built-in search paths.
func DefaultPathVariants() PathVariants {
	return PathVariants{
		AccessToken: {
			"headers.x-access-token",
			"headers.x-auth-token",
			"data.auth_token",
			"data.access_token",
		},
		RefreshToken: {
			"headers.x-refresh-token",
			"data.refresh_token",
		},
		CSRFToken: {
			"headers.x-csrf-token",
			"headers.x-xsrf-token",
		},
	}
}

// MergePathVariants appends the override paths to the base paths of every kind
// known to base, dropping duplicates and keeping the first occurrence.
// Kinds that base does not know are ignored: overrides can add fallback
// locations but never remove built-in ones.
func MergePathVariants(base, overrides PathVariants) PathVariants {
	merged := make(PathVariants, len(base))
	for kind, basePaths := range base {
		seen := make(map[string]struct{}, len(basePaths)+len(overrides[kind]))
		paths := make([]string, 0, len(basePaths)+len(overrides[kind]))
		for _, path := range slices.Concat(basePaths, overrides[kind]) {
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			paths = append(paths, path)
		}
		merged[kind] = paths
	}
	return merged
}
