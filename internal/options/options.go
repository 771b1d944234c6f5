// Package options resolves user-supplied proxy configuration into a fully
// defaulted record consumed by the proxy pipeline.
package options

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/model"
)

// BodyEncoding selects how an inbound request body is represented before it
// is forwarded.
type BodyEncoding string

const (
	// EncodingUTF8 treats bodies as text and re-serializes recognized
	// content types.
	EncodingUTF8 BodyEncoding = "utf-8"
	// EncodingNone forwards the raw bytes untouched.
	EncodingNone BodyEncoding = "none"
)

// ParseBodyEncoding converts a config value into a BodyEncoding.
// An empty string yields the default (utf-8).
func ParseBodyEncoding(s string) (BodyEncoding, error) {
	switch strings.ToLower(s) {
	case "", "utf-8", "utf8":
		return EncodingUTF8, nil
	case "none":
		return EncodingNone, nil
	default:
		return "", fmt.Errorf("unsupported request body encoding %q", s)
	}
}

// Hook signatures. A hook may block; it runs on the request goroutine.
type (
	RequestFilter           func(c echo.Context) (bool, error)
	ResponseFilter          func(resp *model.OutboundResponse, data any) (bool, error)
	ErrorHandler            func(err error, c echo.Context, next echo.HandlerFunc) error
	RequestURLDecorator     func(u *url.URL, r *http.Request) (*url.URL, error)
	RequestInitDecorator    func(out *model.OutboundRequest, r *http.Request) (*model.OutboundRequest, error)
	ResponseHeaderDecorator func(h http.Header, c echo.Context, out *model.OutboundRequest, resp *model.OutboundResponse) (http.Header, error)
	ResponseBodyDecorator   func(c echo.Context, resp *model.OutboundResponse, data any) (any, error)
)

// Options configures one proxy. Zero values mean "unset"; Resolve turns an
// Options value into one where every field has a defined value.
type Options struct {
	FilterRequest           RequestFilter
	FilterResponse          ResponseFilter
	ErrorHandler            ErrorHandler
	RequestURLDecorator     RequestURLDecorator
	RequestInitDecorator    RequestInitDecorator
	ResponseHeaderDecorator ResponseHeaderDecorator
	ResponseBodyDecorator   ResponseBodyDecorator

	PreserveHostHeader  bool
	ParseRequestBody    *bool // nil means true
	RequestBodyEncoding BodyEncoding
	RequestAsBuffer     bool
	MemoizeURL          *bool // nil means true
	Secure              bool
	Timeout             time.Duration
	Method              string

	// Header is merged into every outbound request.
	Header http.Header
	// StripPrefix is removed from the inbound path before it is joined to
	// the target path.
	StripPrefix string

	memo *urlMemo
}

// urlMemo is the one cell shared across requests using the same resolved
// options. Concurrent first requests may both compute the target URL and
// both store it. The computation is assumed deterministic for a given
// configuration, so whichever write lands last is equivalent to the other
// and no lock is taken.
type urlMemo struct {
	u atomic.Pointer[url.URL]
}

// Bool returns a pointer to v, for the tri-state fields.
func Bool(v bool) *bool { return &v }

// Resolve returns a new Options with every default filled in. The input is
// never modified and may be nil. Resolving an already resolved value yields
// an equivalent record that shares its memoized URL.
func Resolve(o *Options) *Options {
	var r Options
	if o != nil {
		r = *o
		r.Header = o.Header.Clone()
	}

	if r.FilterRequest == nil {
		r.FilterRequest = func(echo.Context) (bool, error) { return false, nil }
	}
	if r.FilterResponse == nil {
		r.FilterResponse = func(*model.OutboundResponse, any) (bool, error) { return false, nil }
	}
	if r.ErrorHandler == nil {
		r.ErrorHandler = func(err error, _ echo.Context, _ echo.HandlerFunc) error { return err }
	}
	if r.RequestURLDecorator == nil {
		r.RequestURLDecorator = func(u *url.URL, _ *http.Request) (*url.URL, error) { return u, nil }
	}
	if r.RequestInitDecorator == nil {
		r.RequestInitDecorator = func(out *model.OutboundRequest, _ *http.Request) (*model.OutboundRequest, error) {
			return out, nil
		}
	}
	if r.ResponseHeaderDecorator == nil {
		r.ResponseHeaderDecorator = func(h http.Header, _ echo.Context, _ *model.OutboundRequest, _ *model.OutboundResponse) (http.Header, error) {
			return h, nil
		}
	}
	if r.ResponseBodyDecorator == nil {
		r.ResponseBodyDecorator = func(_ echo.Context, resp *model.OutboundResponse, _ any) (any, error) {
			if resp == nil {
				return nil, nil
			}
			return resp.Body, nil
		}
	}

	if r.ParseRequestBody == nil {
		r.ParseRequestBody = Bool(true)
	} else {
		r.ParseRequestBody = Bool(*r.ParseRequestBody)
	}
	if r.MemoizeURL == nil {
		r.MemoizeURL = Bool(true)
	} else {
		r.MemoizeURL = Bool(*r.MemoizeURL)
	}
	if r.RequestBodyEncoding == "" {
		r.RequestBodyEncoding = EncodingUTF8
	}
	if r.Timeout < 0 {
		r.Timeout = 0
	}
	r.Method = strings.ToUpper(r.Method)

	if r.memo == nil {
		r.memo = &urlMemo{}
	}
	return &r
}

// ShouldParseBody reports whether request bodies are forwarded.
func (o *Options) ShouldParseBody() bool {
	return o.ParseRequestBody == nil || *o.ParseRequestBody
}

// ShouldMemoizeURL reports whether the resolved target URL is reused.
func (o *Options) ShouldMemoizeURL() bool {
	return o.MemoizeURL == nil || *o.MemoizeURL
}

// MemoizedURL returns a copy of the memoized target URL, or nil.
func (o *Options) MemoizedURL() *url.URL {
	if o.memo == nil {
		return nil
	}
	u := o.memo.u.Load()
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// StoreMemoizedURL records u for later requests. It is a no-op on options
// that were not produced by Resolve or when memoization is off.
func (o *Options) StoreMemoizedURL(u *url.URL) {
	if o.memo == nil || !o.ShouldMemoizeURL() || u == nil {
		return
	}
	c := *u
	o.memo.u.Store(&c)
}
