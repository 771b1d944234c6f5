package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"relay-proxy-go/internal/options"
)

func assembleRequest(_ context.Context, s *State) Result {
	req := s.Request()
	out := s.Outbound
	opts := s.Options

	out.Method = opts.Method
	if out.Method == "" {
		out.Method = req.Method
	}

	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	for k, vs := range opts.Header {
		out.Header[k] = append([]string(nil), vs...)
	}
	StripHopByHop(out.Header)
	out.Header.Del("Content-Length")
	out.Header.Del("Host")

	// An empty Host lets the transport use the target's host.
	if opts.PreserveHostHeader {
		out.Host = req.Host
	}

	if opts.ShouldParseBody() && carriesBody(req.Method) {
		body, parsed, err := buildBody(req, opts)
		if err != nil {
			return Fail(newError(KindAssembly, "build body", err))
		}
		out.Body, out.ParsedBody = body, parsed
	}

	decorated, err := opts.RequestInitDecorator(out, req)
	if err != nil {
		return Fail(newError(KindAssembly, "request init decorator", err))
	}
	if decorated == nil {
		return Fail(newError(KindAssembly, "request init decorator", errors.New("returned nil request")))
	}
	s.Outbound = decorated
	return Continue()
}

// carriesBody reports whether method conventionally carries a request body.
func carriesBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

// buildBody reads the inbound body and converts it per the encoding options.
// The inbound body is replaced by a re-readable copy so host handlers that
// run after a short-circuit still see it.
func buildBody(req *http.Request, opts *options.Options) ([]byte, any, error) {
	var raw []byte
	if req.Body != nil {
		var err error
		raw, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("read body: %w", err)
		}
		_ = req.Body.Close()
	}
	if raw == nil {
		raw = []byte{}
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))

	if opts.RequestBodyEncoding == options.EncodingNone || opts.RequestAsBuffer {
		return raw, nil, nil
	}

	mt := mediaType(req.Header.Get("Content-Type"))
	switch {
	case isJSON(mt):
		if len(bytes.TrimSpace(raw)) == 0 {
			return raw, nil, nil
		}
		v, err := decodeJSON(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("parse json body: %w", err)
		}
		b, err := encodeJSON(v)
		if err != nil {
			return nil, nil, fmt.Errorf("encode json body: %w", err)
		}
		return b, v, nil
	case mt == formMediaType:
		// Legacy encoders separate pairs with ';' as well as '&'.
		vals, err := url.ParseQuery(strings.ReplaceAll(string(raw), ";", "&"))
		if err != nil {
			return nil, nil, fmt.Errorf("parse form body: %w", err)
		}
		return []byte(vals.Encode()), vals, nil
	default:
		if utf8.Valid(raw) {
			return raw, nil, nil
		}
		return []byte(strings.ToValidUTF8(string(raw), "\uFFFD")), nil, nil
	}
}

// decodeJSON decodes exactly one JSON value, keeping numbers intact.
func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

// encodeJSON marshals v without HTML escaping and without a trailing newline.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
