package runtime

import (
	"sync"

	"go.uber.org/zap"
)

// DiagnosticSink receives failures that must not abort a render, such as a
// broken autoescape callback. Implementations must be safe for concurrent
// use.
type DiagnosticSink interface {
	ReportDiagnostic(template string, err error)
}

// ZapSink logs out-of-band diagnostics through a zap logger.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps a logger into a sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) ReportDiagnostic(template string, err error) {
	s.logger.Warn("template callback failure",
		zap.String("template", template),
		zap.Error(err),
	)
}

// NopSink drops all diagnostics.
type NopSink struct{}

func (NopSink) ReportDiagnostic(string, error) {}

// CaptureSink records diagnostics for inspection in tests.
type CaptureSink struct {
	mu      sync.Mutex
	entries []CapturedDiagnostic
}

type CapturedDiagnostic struct {
	Template string
	Err      error
}

func (s *CaptureSink) ReportDiagnostic(template string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, CapturedDiagnostic{Template: template, Err: err})
}

// Entries returns a copy of everything reported so far.
func (s *CaptureSink) Entries() []CapturedDiagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CapturedDiagnostic, len(s.entries))
	copy(out, s.entries)
	return out
}

func defaultSink() DiagnosticSink {
	logger, err := zap.NewProduction()
	if err != nil {
		return NopSink{}
	}
	return NewZapSink(logger.Named("kiln"))
}
