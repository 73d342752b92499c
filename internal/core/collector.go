package core

import "sync"

// DiagnosticKind names the outcome a diagnostic was recorded for.
type DiagnosticKind string

const (
	KindInvalidLine     DiagnosticKind = "invalid_line"
	KindRejected        DiagnosticKind = "rejected"
	KindConversionError DiagnosticKind = "conversion_error"
)

// Diagnostic is one line that did not become a record.
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind"`
	Text   string         `json:"text"` // raw line or record text
	Reason string         `json:"reason,omitempty"`
}

// Collector records diagnostics through ready-made Callbacks.
// It keeps at most Limit diagnostics when Limit > 0 and counts the rest.
type Collector struct {
	Limit int

	mu      sync.Mutex
	diags   []Diagnostic
	dropped int
	summary Summary
}

// NewCollector returns a collector keeping at most limit diagnostics.
// A limit of zero keeps everything.
func NewCollector(limit int) *Collector {
	return &Collector{Limit: limit}
}

// Callbacks returns callbacks that feed c.
func (c *Collector) Callbacks() Callbacks {
	return Callbacks{
		OnInvalidLine: func(line, reason string) {
			c.record(Diagnostic{Kind: KindInvalidLine, Text: line, Reason: reason})
		},
		OnRejectedRecord: func(record string) {
			c.record(Diagnostic{Kind: KindRejected, Text: record})
		},
		OnConversionError: func(record, reason string) {
			c.record(Diagnostic{Kind: KindConversionError, Text: record, Reason: reason})
		},
		OnSummary: func(invalid, rejected, conversionErrors, created int) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.summary = Summary{
				Invalid:          invalid,
				Rejected:         rejected,
				ConversionErrors: conversionErrors,
				Created:          created,
			}
		},
	}
}

func (c *Collector) record(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Limit > 0 && len(c.diags) >= c.Limit {
		c.dropped++
		return
	}
	c.diags = append(c.diags, d)
}

// Diagnostics returns a copy of the recorded diagnostics in line order.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.diags))
	copy(out, c.diags)
	return out
}

// Dropped returns how many diagnostics exceeded the limit.
func (c *Collector) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Summary returns the counters reported at the end of the run.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// Failures returns the diagnostics for lines that were invalid or failed
// conversion, leaving out rejected records.
func (c *Collector) Failures() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Diagnostic
	for _, d := range c.diags {
		if d.Kind != KindRejected {
			out = append(out, d)
		}
	}
	return out
}
