package endpoint

import (
	"net/url"
	"strings"
)

const (
	// DefaultBase is the loopback fallback used when no candidate is set.
	DefaultBase = "http://localhost:5001"
	// GeneratePath is the fixed path of the generation endpoint.
	GeneratePath = "/generate_ebook"
)

// Environment supplies the three base-URL candidates, in priority
// order: an explicit override, a declared (configured) value, and the
// ambient origin of the deployment. Injecting it keeps the resolution
// free of direct environment reads.
type Environment interface {
	Override() string
	Declared() string
	Origin() string
}

// Static is a fixed Environment, useful for wiring flags and tests.
type Static struct {
	OverrideURL string
	DeclaredURL string
	OriginURL   string
}

func (s Static) Override() string { return s.OverrideURL }
func (s Static) Declared() string { return s.DeclaredURL }
func (s Static) Origin() string   { return s.OriginURL }

// Resolve picks the first non-empty candidate (override > declared >
// meaningful origin > DefaultBase), strips trailing slashes and appends
// GeneratePath.
func Resolve(env Environment) string {
	base := ""
	if v := strings.TrimSpace(env.Override()); v != "" {
		base = v
	} else if v := strings.TrimSpace(env.Declared()); v != "" {
		base = v
	} else if v := strings.TrimSpace(env.Origin()); v != "" && meaningfulOrigin(v) {
		base = v
	}
	if base == "" {
		base = DefaultBase
	}
	return strings.TrimRight(base, "/") + GeneratePath
}

// meaningfulOrigin rejects placeholder and local-file origins, which
// cannot serve as a request target.
func meaningfulOrigin(origin string) bool {
	if strings.EqualFold(origin, "null") {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme == "file" {
		return false
	}
	return u.Host != ""
}
