package options

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/model"
)

func TestResolve_Defaults(t *testing.T) {
	o := Resolve(nil)

	if o.PreserveHostHeader {
		t.Error("PreserveHostHeader = true, want false")
	}
	if !o.ShouldParseBody() {
		t.Error("ShouldParseBody() = false, want true")
	}
	if o.RequestBodyEncoding != EncodingUTF8 {
		t.Errorf("RequestBodyEncoding = %q, want %q", o.RequestBodyEncoding, EncodingUTF8)
	}
	if o.RequestAsBuffer {
		t.Error("RequestAsBuffer = true, want false")
	}
	if !o.ShouldMemoizeURL() {
		t.Error("ShouldMemoizeURL() = false, want true")
	}
	if o.Secure {
		t.Error("Secure = true, want false")
	}
	if o.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", o.Timeout)
	}
	if o.Method != "" {
		t.Errorf("Method = %q, want empty", o.Method)
	}
	if o.MemoizedURL() != nil {
		t.Error("MemoizedURL() should be nil before first resolution")
	}
}

func TestResolve_HooksDefaultToNoop(t *testing.T) {
	o := Resolve(&Options{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	c := e.NewContext(req, httptest.NewRecorder())

	if skip, err := o.FilterRequest(c); skip || err != nil {
		t.Errorf("FilterRequest() = %v, %v; want false, nil", skip, err)
	}
	if skip, err := o.FilterResponse(&model.OutboundResponse{}, nil); skip || err != nil {
		t.Errorf("FilterResponse() = %v, %v; want false, nil", skip, err)
	}

	u, _ := url.Parse("http://example.com/a")
	got, err := o.RequestURLDecorator(u, req)
	if err != nil || got != u {
		t.Errorf("RequestURLDecorator() = %v, %v; want identity", got, err)
	}

	out := &model.OutboundRequest{Method: http.MethodGet}
	gotOut, err := o.RequestInitDecorator(out, req)
	if err != nil || gotOut != out {
		t.Errorf("RequestInitDecorator() = %v, %v; want identity", gotOut, err)
	}

	h := http.Header{"X-A": {"1"}}
	gotH, err := o.ResponseHeaderDecorator(h, c, out, &model.OutboundResponse{})
	if err != nil || gotH.Get("X-A") != "1" {
		t.Errorf("ResponseHeaderDecorator() = %v, %v; want identity", gotH, err)
	}

	data, err := o.ResponseBodyDecorator(c, &model.OutboundResponse{Body: []byte("raw")}, map[string]any{"decoded": true})
	if b, ok := data.([]byte); err != nil || !ok || string(b) != "raw" {
		t.Errorf("ResponseBodyDecorator() = %v, %v; want the upstream bytes", data, err)
	}

	sentinel := errors.New("boom")
	if err := o.ErrorHandler(sentinel, c, nil); !errors.Is(err, sentinel) {
		t.Errorf("ErrorHandler() = %v, want the original error", err)
	}
}

func TestResolve_KeepsExplicitValues(t *testing.T) {
	in := &Options{
		PreserveHostHeader:  true,
		ParseRequestBody:    Bool(false),
		RequestBodyEncoding: EncodingNone,
		RequestAsBuffer:     true,
		MemoizeURL:          Bool(false),
		Secure:              true,
		Timeout:             250 * time.Millisecond,
		Method:              "post",
	}
	o := Resolve(in)

	if !o.PreserveHostHeader || !o.RequestAsBuffer || !o.Secure {
		t.Error("explicit booleans were not kept")
	}
	if o.ShouldParseBody() {
		t.Error("ShouldParseBody() = true, want false")
	}
	if o.ShouldMemoizeURL() {
		t.Error("ShouldMemoizeURL() = true, want false")
	}
	if o.RequestBodyEncoding != EncodingNone {
		t.Errorf("RequestBodyEncoding = %q, want %q", o.RequestBodyEncoding, EncodingNone)
	}
	if o.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", o.Timeout)
	}
	if o.Method != http.MethodPost {
		t.Errorf("Method = %q, want %q", o.Method, http.MethodPost)
	}
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	in := &Options{Header: http.Header{"X-Extra": {"1"}}}
	o := Resolve(in)

	if in.FilterRequest != nil || in.ParseRequestBody != nil || in.MemoizeURL != nil {
		t.Error("Resolve() filled defaults on its input")
	}
	if in.RequestBodyEncoding != "" {
		t.Errorf("input RequestBodyEncoding = %q, want empty", in.RequestBodyEncoding)
	}

	o.Header.Set("X-Extra", "2")
	if in.Header.Get("X-Extra") != "1" {
		t.Error("resolved Header aliases the input header map")
	}

	*o.ParseRequestBody = false
	if in.ParseRequestBody != nil {
		t.Error("input ParseRequestBody changed")
	}
}

func TestResolve_Idempotent(t *testing.T) {
	once := Resolve(&Options{MemoizeURL: Bool(true), Timeout: time.Second})
	twice := Resolve(once)

	if once.ShouldParseBody() != twice.ShouldParseBody() ||
		once.ShouldMemoizeURL() != twice.ShouldMemoizeURL() ||
		once.RequestBodyEncoding != twice.RequestBodyEncoding ||
		once.Timeout != twice.Timeout {
		t.Error("Resolve(Resolve(x)) differs from Resolve(x)")
	}

	u, _ := url.Parse("http://example.com")
	once.StoreMemoizedURL(u)
	if got := twice.MemoizedURL(); got == nil || got.String() != u.String() {
		t.Errorf("memoized URL not shared across resolutions: got %v", got)
	}
}

func TestStoreMemoizedURL_DisabledIsNoop(t *testing.T) {
	o := Resolve(&Options{MemoizeURL: Bool(false)})
	u, _ := url.Parse("http://example.com")
	o.StoreMemoizedURL(u)
	if o.MemoizedURL() != nil {
		t.Error("MemoizedURL() should stay nil when memoization is off")
	}
}

func TestMemoizedURL_ReturnsCopy(t *testing.T) {
	o := Resolve(nil)
	u, _ := url.Parse("http://example.com/base")
	o.StoreMemoizedURL(u)

	got := o.MemoizedURL()
	got.Path = "/changed"
	if o.MemoizedURL().Path != "/base" {
		t.Error("MemoizedURL() exposes the shared value")
	}
}

func TestParseBodyEncoding(t *testing.T) {
	tests := []struct {
		in      string
		want    BodyEncoding
		wantErr bool
	}{
		{"", EncodingUTF8, false},
		{"utf-8", EncodingUTF8, false},
		{"UTF8", EncodingUTF8, false},
		{"none", EncodingNone, false},
		{"latin1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBodyEncoding(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBodyEncoding(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBodyEncoding(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
