package output

import (
	"fmt"
	"io"
	"sync"

	"branchwarden/internal/decision"
)

// EmitSink writes an additional structured stream.
//
// Formats:
//   - json: aggregates results and writes a single JSON array on Close
//   - ndjson: streams Event values (one JSON object per line)
type EmitSink struct {
	writer  io.Writer
	format  string
	mu      sync.Mutex
	results []decision.Result
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, fmt.Errorf("emit sink writer must not be nil")
	}
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported emit format: %s", format)
	}
	return &EmitSink{writer: w, format: format}, nil
}

func (s *EmitSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "ndjson" {
		return encodeStream(s.writer, v)
	}
	if r, ok := v.(decision.Result); ok {
		s.results = append(s.results, r)
	}
	return nil
}

func (s *EmitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		return encodeAggregate(s.writer, s.results)
	}
	return nil
}
