package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"relay-proxy-go/internal/metrics"
	"relay-proxy-go/internal/model"
)

// TargetFunc returns the base target URL for a request.
type TargetFunc func(r *http.Request) (string, error)

// StaticTarget always targets raw.
func StaticTarget(raw string) TargetFunc {
	return func(*http.Request) (string, error) { return raw, nil }
}

func resolveURL(m *metrics.Metrics) StepFunc {
	return func(_ context.Context, s *State) Result {
		base, source := s.Options.MemoizedURL(), "memoized"
		if base == nil || !s.Options.ShouldMemoizeURL() {
			u, err := computeTargetURL(s)
			if err != nil {
				return Fail(newError(KindResolution, "resolve target", err))
			}
			s.Options.StoreMemoizedURL(u)
			base, source = u, "computed"
		}
		if m != nil {
			m.URLResolutions.WithLabelValues(source).Inc()
		}

		s.Outbound = &model.OutboundRequest{
			URL: joinURL(base, s.Request().URL, s.Options.StripPrefix),
		}
		return Continue()
	}
}

// computeTargetURL runs the target func and the URL decorator. Its result is
// what gets memoized, so it must not depend on anything but the target
// configuration when memoization is on.
func computeTargetURL(s *State) (*url.URL, error) {
	req := s.Request()

	raw, err := s.Target(req)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("target %q is not an absolute URL", raw)
	}

	u, err = s.Options.RequestURLDecorator(u, req)
	if err != nil {
		return nil, fmt.Errorf("url decorator: %w", err)
	}
	if u == nil {
		return nil, errors.New("url decorator returned nil")
	}

	if s.Options.Secure {
		u.Scheme = "https"
	}
	return u, nil
}

// joinURL appends the inbound path (minus strip) and query to base. Paths
// are joined in their escaped form so reserved characters such as %2F keep
// their encoding on the way out.
func joinURL(base, in *url.URL, strip string) *url.URL {
	out := *base
	out.Fragment = ""
	out.RawFragment = ""

	escStrip := (&url.URL{Path: strip}).EscapedPath()
	escaped := joinPath(base.EscapedPath(), stripMount(in.EscapedPath(), escStrip))
	path, err := url.PathUnescape(escaped)
	if err != nil {
		// Unreachable for URLs built by url.Parse.
		path, escaped = joinPath(base.Path, stripMount(in.Path, strip)), ""
	}
	out.Path = path
	out.RawPath = ""
	if escaped != "" && escaped != (&url.URL{Path: path}).EscapedPath() {
		out.RawPath = escaped
	}

	switch {
	case in.RawQuery == "":
	case base.RawQuery == "":
		out.RawQuery = in.RawQuery
	default:
		out.RawQuery = base.RawQuery + "&" + in.RawQuery
	}
	return &out
}

// stripMount removes prefix from p when it ends on a segment boundary.
func stripMount(p, prefix string) string {
	if prefix != "" && (p == prefix || strings.HasPrefix(p, prefix+"/")) {
		return strings.TrimPrefix(p, prefix)
	}
	return p
}

func joinPath(a, b string) string {
	if b == "" {
		if a == "" {
			return "/"
		}
		return a
	}
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
