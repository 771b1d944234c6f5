package proxy

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relay-proxy-go/internal/metrics"
)

// Phase is a pipeline state. Done, ShortCircuited and Failed are terminal.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseFiltering
	PhaseResolving
	PhaseAssembling
	PhaseDispatching
	PhaseResponseFiltering
	PhaseDecorating
	PhaseDelivering
	PhaseDone
	PhaseShortCircuited
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseStart:             "start",
	PhaseFiltering:         "filtering",
	PhaseResolving:         "resolving",
	PhaseAssembling:        "assembling",
	PhaseDispatching:       "dispatching",
	PhaseResponseFiltering: "response_filtering",
	PhaseDecorating:        "decorating",
	PhaseDelivering:        "delivering",
	PhaseDone:              "done",
	PhaseShortCircuited:    "short_circuited",
	PhaseFailed:            "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Terminal reports whether no step follows p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseShortCircuited || p == PhaseFailed
}

type outcome int

const (
	outcomeContinue outcome = iota
	outcomeShortCircuit
	outcomeFailure
)

// Result is what a step hands back to the orchestrator.
type Result struct {
	outcome outcome
	err     error
}

// Continue moves on to the next step.
func Continue() Result { return Result{outcome: outcomeContinue} }

// ShortCircuit stops the pipeline without error and without a response.
func ShortCircuit() Result { return Result{outcome: outcomeShortCircuit} }

// Fail stops the pipeline and routes err to the error handler.
func Fail(err error) Result { return Result{outcome: outcomeFailure, err: err} }

// Err returns the failure carried by r, if any.
func (r Result) Err() error { return r.err }

// StepFunc transforms the state in place.
type StepFunc func(ctx context.Context, s *State) Result

// Step binds a StepFunc to the phase it runs in.
type Step struct {
	Phase Phase
	Run   StepFunc
}

// DefaultSteps returns the fixed step order dispatching through sender.
func DefaultSteps(sender Sender, m *metrics.Metrics) []Step {
	return []Step{
		{PhaseFiltering, filterRequest},
		{PhaseResolving, resolveURL(m)},
		{PhaseAssembling, assembleRequest},
		{PhaseDispatching, dispatch(sender)},
		{PhaseResponseFiltering, filterResponse},
		{PhaseDecorating, decorateResponse},
		{PhaseDelivering, deliverResponse},
	}
}

// Pipeline runs steps strictly in sequence.
type Pipeline struct {
	steps   []Step
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewPipeline creates a Pipeline. The metrics parameter is optional.
func NewPipeline(steps []Step, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		steps:   steps,
		logger:  logger.With("component", "proxy_pipeline"),
		metrics: m,
		tracer:  otel.Tracer("relay-proxy-go/internal/proxy"),
	}
}

// Run folds s through the steps and returns the terminal phase. The error is
// non-nil only for PhaseFailed.
func (p *Pipeline) Run(ctx context.Context, s *State) (Phase, error) {
	ctx, span := p.tracer.Start(ctx, "proxy.pipeline")
	defer span.End()

	for _, step := range p.steps {
		s.Phase = step.Phase
		res := p.runStep(ctx, step, s)

		switch res.outcome {
		case outcomeShortCircuit:
			return p.finish(span, s, PhaseShortCircuited, nil)
		case outcomeFailure:
			return p.finish(span, s, PhaseFailed, res.err)
		}
	}
	return p.finish(span, s, PhaseDone, nil)
}

func (p *Pipeline) runStep(ctx context.Context, step Step, s *State) Result {
	ctx, span := p.tracer.Start(ctx, "proxy."+step.Phase.String())
	defer span.End()

	res := step.Run(ctx, s)
	if res.outcome == outcomeFailure {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}
	return res
}

func (p *Pipeline) finish(span trace.Span, s *State, phase Phase, err error) (Phase, error) {
	from := s.Phase
	s.Phase = phase
	span.SetAttributes(attribute.String("proxy.outcome", phase.String()))

	if p.metrics != nil {
		p.metrics.PipelineOutcomes.WithLabelValues(phase.String()).Inc()
	}
	if phase != PhaseFailed {
		return phase, nil
	}

	kind := KindOf(err)
	span.SetStatus(codes.Error, string(kind))
	if p.metrics != nil {
		p.metrics.PipelineErrors.WithLabelValues(string(kind)).Inc()
	}
	p.logger.Error("proxy pipeline failed",
		"err", SanitizeError(err),
		"kind", kind,
		"phase", from.String(),
		"path", s.Request().URL.Path,
	)
	return phase, err
}
