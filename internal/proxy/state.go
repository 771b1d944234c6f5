package proxy

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/model"
	"relay-proxy-go/internal/options"
)

// State is the per-request context threaded through every step. It is
// created when the pipeline starts and dropped when it terminates; nothing
// in it outlives the request except through Options' memoized URL.
type State struct {
	// C is the host context: inbound request and response handle. Borrowed.
	C       echo.Context
	Options *options.Options
	Target  TargetFunc

	Outbound *model.OutboundRequest
	Response *model.OutboundResponse
	// Data is Response.Body decoded by content type.
	Data any

	// ResponseHeader and ResponseBody are what delivery writes.
	ResponseHeader http.Header
	ResponseBody   []byte

	Phase Phase
}

// NewState creates the state for one inbound request.
func NewState(c echo.Context, target TargetFunc, opts *options.Options) *State {
	return &State{
		C:       c,
		Options: opts,
		Target:  target,
		Phase:   PhaseStart,
	}
}

// Request returns the inbound request.
func (s *State) Request() *http.Request {
	return s.C.Request()
}
