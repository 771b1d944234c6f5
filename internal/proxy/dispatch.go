package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"relay-proxy-go/internal/model"
)

// Sender issues one outbound request and buffers the whole response.
type Sender interface {
	Send(ctx context.Context, out *model.OutboundRequest) (*model.OutboundResponse, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, out *model.OutboundRequest) (*model.OutboundResponse, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, out *model.OutboundRequest) (*model.OutboundResponse, error) {
	return f(ctx, out)
}

// dispatch makes exactly one attempt; failures are never retried.
func dispatch(sender Sender) StepFunc {
	return func(ctx context.Context, s *State) Result {
		if t := s.Options.Timeout; t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}

		resp, err := sender.Send(ctx, s.Outbound)
		if err != nil {
			if timedOut(ctx, err) {
				err = fmt.Errorf("%w after %s: %w", ErrTimeout, s.Options.Timeout, err)
			}
			return Fail(newError(KindDispatch, "send", err))
		}
		if resp.Header == nil {
			resp.Header = make(http.Header)
		}

		s.Response = resp
		s.Data = decodeBody(resp)
		return Continue()
	}
}

func timedOut(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// decodeBody interprets the buffered body by its declared content type:
// JSON becomes a decoded value, textual types a string, everything else
// (including encoded or malformed bodies) stays []byte.
func decodeBody(resp *model.OutboundResponse) any {
	if ce := resp.Header.Get("Content-Encoding"); ce != "" && ce != "identity" {
		return resp.Body
	}

	mt := mediaType(resp.Header.Get("Content-Type"))
	switch {
	case isJSON(mt):
		if v, err := decodeJSON(resp.Body); err == nil {
			return v
		}
	case isTextual(mt):
		return string(resp.Body)
	}
	return resp.Body
}
