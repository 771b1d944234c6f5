package proxy

import "context"

// filterRequest runs before anything touches the network so that skipped
// requests never cost an outbound call.
func filterRequest(_ context.Context, s *State) Result {
	skip, err := s.Options.FilterRequest(s.C)
	if err != nil {
		return Fail(newError(KindFilter, "filter request", err))
	}
	if skip {
		return ShortCircuit()
	}
	return Continue()
}

func filterResponse(_ context.Context, s *State) Result {
	skip, err := s.Options.FilterResponse(s.Response, s.Data)
	if err != nil {
		return Fail(newError(KindFilter, "filter response", err))
	}
	if skip {
		return ShortCircuit()
	}
	return Continue()
}
