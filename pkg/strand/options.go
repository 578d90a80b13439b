package strand

import (
	"log/slog"

	"github.com/strandworks/strand/pkg/strand/checkpoint"
	"github.com/strandworks/strand/pkg/strand/event"
	"github.com/strandworks/strand/pkg/strand/observability"
	"github.com/strandworks/strand/pkg/strand/provider"
)

// options holds the collaborators and overrides a Runtime is built with.
type options struct {
	generator provider.Generator
	prompts   provider.PromptResolver
	invoker   provider.ToolInvoker
	store     checkpoint.Store

	logger  *slog.Logger
	bus     *event.Bus
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	mapWorkers     int
	recursionLimit int
}

func defaultOptions() options {
	return options{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures a Runtime at compile time.
type Option func(*options)

// WithGenerator supplies the model collaborator used by llm, router, and
// agent nodes.
func WithGenerator(g provider.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithPromptResolver supplies the prompt name resolver. Without one,
// a node's prompt field is rendered as an inline template.
func WithPromptResolver(p provider.PromptResolver) Option {
	return func(o *options) { o.prompts = p }
}

// WithToolInvoker supplies the tool execution collaborator.
func WithToolInvoker(t provider.ToolInvoker) Option {
	return func(o *options) { o.invoker = t }
}

// WithCheckpointer supplies the store used to suspend and resume runs.
// Interrupt nodes fail at runtime without one.
func WithCheckpointer(s checkpoint.Store) Option {
	return func(o *options) { o.store = s }
}

// WithLogger enables structured logging of run and node lifecycle.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEvents publishes execution events to the given bus.
func WithEvents(b *event.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithMetrics records execution metrics through the given recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer emits a span per run and per node through the given manager.
func WithTracer(s observability.SpanManager) Option {
	return func(o *options) {
		if s != nil {
			o.spans = s
		}
	}
}

// WithMapWorkers overrides the fan-out worker pool size.
func WithMapWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.mapWorkers = n
		}
	}
}

// WithRecursionLimit overrides the graph's transition ceiling.
func WithRecursionLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.recursionLimit = n
		}
	}
}
