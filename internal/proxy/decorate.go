package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

func decorateResponse(_ context.Context, s *State) Result {
	h, err := s.Options.ResponseHeaderDecorator(s.Response.Header.Clone(), s.C, s.Outbound, s.Response)
	if err != nil {
		return Fail(newError(KindDecoration, "response header decorator", err))
	}
	if h == nil {
		h = make(http.Header)
	}

	data, err := s.Options.ResponseBodyDecorator(s.C, s.Response, s.Data)
	if err != nil {
		return Fail(newError(KindDecoration, "response body decorator", err))
	}
	body, marshaled, err := encodeBody(data)
	if err != nil {
		return Fail(newError(KindDecoration, "encode body", err))
	}
	if marshaled && h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}

	s.ResponseHeader = h
	s.ResponseBody = body
	return Continue()
}

// encodeBody turns a decorated body into bytes. marshaled is true when the
// value had to be JSON encoded.
func encodeBody(v any) (body []byte, marshaled bool, err error) {
	switch b := v.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return b, false, nil
	case json.RawMessage:
		return b, false, nil
	case string:
		return []byte(b), false, nil
	}
	body, err = encodeJSON(v)
	if err != nil {
		return nil, false, fmt.Errorf("marshal %T: %w", v, err)
	}
	return body, true, nil
}

// deliverResponse is terminal on the success path.
func deliverResponse(_ context.Context, s *State) Result {
	res := s.C.Response()
	h := res.Header()
	for k, vs := range s.ResponseHeader {
		h[k] = append([]string(nil), vs...)
	}
	StripHopByHop(h)

	status := s.Response.StatusCode
	if s.Request().Method != http.MethodHead {
		h.Del("Content-Length")
		if bodyAllowed(status) {
			h.Set("Content-Length", strconv.Itoa(len(s.ResponseBody)))
		}
	}

	res.WriteHeader(status)
	if len(s.ResponseBody) > 0 && bodyAllowed(status) {
		if _, err := res.Write(s.ResponseBody); err != nil {
			return Fail(newError(KindDelivery, "write body", err))
		}
	}
	return Continue()
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
