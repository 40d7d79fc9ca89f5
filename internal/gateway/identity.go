package gateway

import (
	"net/http"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/collabd/internal/coordination"
	"github.com/Iron-Ham/collabd/internal/errors"
)

// IdentityHeaders names the request headers the authenticating proxy sets.
type IdentityHeaders struct {
	UserID   string
	UserName string
	Email    string
	Avatar   string
}

// DefaultIdentityHeaders returns the header names used when none are configured.
func DefaultIdentityHeaders() IdentityHeaders {
	return IdentityHeaders{
		UserID:   "X-User-ID",
		UserName: "X-User-Name",
		Email:    "X-User-Email",
		Avatar:   "X-User-Avatar",
	}
}

// caller reads the trusted identity from r. The connection id is assigned
// by the caller of this function.
func (h IdentityHeaders) caller(r *http.Request) (coordination.Caller, error) {
	c := coordination.Caller{
		UserID:   strings.TrimSpace(r.Header.Get(h.UserID)),
		UserName: strings.TrimSpace(r.Header.Get(h.UserName)),
		Email:    strings.TrimSpace(r.Header.Get(h.Email)),
		Avatar:   strings.TrimSpace(r.Header.Get(h.Avatar)),
	}
	if c.UserID == "" {
		return coordination.Caller{}, errors.NewIdentityError("connect")
	}
	return c, nil
}

// originMatcher checks the Origin header of websocket upgrades against
// glob patterns such as "https://*.example.com".
type originMatcher struct {
	patterns []glob.Glob
}

func newOriginMatcher(patterns []string) (*originMatcher, error) {
	m := &originMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, errors.NewValidationError("invalid origin pattern").
				WithField("gateway.allowed_origins").
				WithValue(p)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// allow reports whether origin may open a websocket. Requests without an
// Origin header come from non-browser clients and are allowed.
func (m *originMatcher) allow(origin string) bool {
	if origin == "" {
		return true
	}
	for _, g := range m.patterns {
		if g.Match(origin) {
			return true
		}
	}
	return false
}

// empty reports whether no patterns are configured.
func (m *originMatcher) empty() bool { return len(m.patterns) == 0 }
