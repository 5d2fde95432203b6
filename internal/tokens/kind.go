package tokens

import (
	"fmt"
	"strings"
)

// Kind identifies a category of credential. The set is closed.
type Kind string

const (
	AccessToken  Kind = "accessToken"
	RefreshToken Kind = "refreshToken"
	CSRFToken    Kind = "csrfToken"
)

// Kinds lists every recognized Kind in a stable order.
var Kinds = []Kind{AccessToken, RefreshToken, CSRFToken}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// ParseKind accepts the canonical name ("accessToken"), the snake_case name
// ("access_token") or the short name ("access"), case-insensitively.
func ParseKind(s string) (Kind, error) {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(s)))
	switch normalized {
	case "accesstoken", "access":
		return AccessToken, nil
	case "refreshtoken", "refresh":
		return RefreshToken, nil
	case "csrftoken", "csrf", "xsrftoken", "xsrf":
		return CSRFToken, nil
	default:
		return "", fmt.Errorf("unknown token kind %q", s)
	}
}
