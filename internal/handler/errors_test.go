package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/proxy"
)

func TestErrorHandler_Mapping(t *testing.T) {
	dispatch := func(err error) error {
		return &proxy.Error{Kind: proxy.KindDispatch, Op: "send", Err: err}
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "echo not found",
			err:        echo.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantMsg:    "Not Found",
		},
		{
			name:       "echo error with message",
			err:        echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too big"),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantMsg:    "too big",
		},
		{
			name:       "timeout",
			err:        dispatch(fmt.Errorf("%w after 1s: %w", proxy.ErrTimeout, context.DeadlineExceeded)),
			wantStatus: http.StatusGatewayTimeout,
			wantMsg:    "upstream request timed out",
		},
		{
			name:       "client canceled",
			err:        dispatch(context.Canceled),
			wantStatus: http.StatusBadGateway,
			wantMsg:    "client disconnected",
		},
		{
			name:       "dns failure",
			err:        dispatch(&url.Error{Op: "Get", URL: "http://nope.invalid", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid"}}),
			wantStatus: http.StatusBadGateway,
			wantMsg:    "upstream host unreachable",
		},
		{
			name:       "connection failure",
			err:        dispatch(&url.Error{Op: "Get", URL: "http://127.0.0.1:1", Err: errors.New("connection refused")}),
			wantStatus: http.StatusBadGateway,
			wantMsg:    "upstream connection failed",
		},
		{
			name:       "other dispatch failure",
			err:        dispatch(errors.New("read upstream body: unexpected EOF")),
			wantStatus: http.StatusBadGateway,
			wantMsg:    "upstream request failed",
		},
		{
			name:       "bad request body",
			err:        &proxy.Error{Kind: proxy.KindAssembly, Op: "build body", Err: errors.New("parse json body")},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request body",
		},
		{
			name:       "bad target",
			err:        &proxy.Error{Kind: proxy.KindResolution, Op: "resolve target", Err: errors.New("not absolute")},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "upstream target unavailable",
		},
		{
			name:       "decorator failure",
			err:        &proxy.Error{Kind: proxy.KindDecoration, Op: "response body decorator", Err: errors.New("boom")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal proxy error",
		},
		{
			name:       "foreign error",
			err:        errors.New("something else"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal proxy error",
		},
	}

	handle := ErrorHandler(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/x", http.NoBody), rec)

			handle(tt.err, c)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body["error"] != tt.wantMsg {
				t.Errorf("error = %q, want %q", body["error"], tt.wantMsg)
			}
		})
	}
}

func TestErrorHandler_HeadHasNoBody(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodHead, "/api/x", http.NoBody), rec)

	ErrorHandler(testLogger())(echo.ErrNotFound, c)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestErrorHandler_CommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/x", http.NoBody), rec)

	if err := c.String(http.StatusOK, "partial"); err != nil {
		t.Fatal(err)
	}
	ErrorHandler(testLogger())(&proxy.Error{Kind: proxy.KindDelivery, Op: "write body", Err: errors.New("broken pipe")}, c)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "partial" {
		t.Errorf("body = %q, want the original response only", rec.Body.String())
	}
}
