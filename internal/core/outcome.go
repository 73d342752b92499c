package core

// Outcome is the classification of one non-blank input line. The variants are
// InvalidLine, RejectedRecord, ConversionFailure and Success; no other type
// implements it.
type Outcome interface {
	isOutcome()
}

// InvalidLine is a line whose field count does not match the header.
type InvalidLine struct {
	Line   string
	Reason string
}

// RejectedRecord is a well-formed record the keep predicate discarded.
type RejectedRecord struct {
	Record string
}

// ConversionFailure is a record with at least one field that could not be converted.
type ConversionFailure struct {
	Record string
	Reason string
}

// Success carries a fully converted item.
type Success[T any] struct {
	Item T
}

func (InvalidLine) isOutcome()       {}
func (RejectedRecord) isOutcome()    {}
func (ConversionFailure) isOutcome() {}
func (Success[T]) isOutcome()        {}

// Summary counts the outcomes of one parse call.
type Summary struct {
	Invalid          int `json:"invalid"`
	Rejected         int `json:"rejected"`
	ConversionErrors int `json:"conversion_errors"`
	Created          int `json:"created"`
}

// Lines returns the number of classified (non-blank) data lines.
func (s Summary) Lines() int {
	return s.Invalid + s.Rejected + s.ConversionErrors + s.Created
}

// Callbacks receive diagnostics while a source is parsed. All are optional
// and are invoked synchronously, in line order.
type Callbacks struct {
	OnInvalidLine     func(line, reason string)
	OnRejectedRecord  func(record string)
	OnConversionError func(record, reason string)
	OnSummary         func(invalid, rejected, conversionErrors, created int)
}

// collector folds outcomes into items and counters, firing callbacks as it goes.
type collector[T any] struct {
	cb      Callbacks
	items   []T
	summary Summary
}

func (c *collector[T]) add(o Outcome) {
	switch v := o.(type) {
	case InvalidLine:
		c.summary.Invalid++
		if c.cb.OnInvalidLine != nil {
			c.cb.OnInvalidLine(v.Line, v.Reason)
		}
	case RejectedRecord:
		c.summary.Rejected++
		if c.cb.OnRejectedRecord != nil {
			c.cb.OnRejectedRecord(v.Record)
		}
	case ConversionFailure:
		c.summary.ConversionErrors++
		if c.cb.OnConversionError != nil {
			c.cb.OnConversionError(v.Record, v.Reason)
		}
	case Success[T]:
		c.items = append(c.items, v.Item)
	}
}

func (c *collector[T]) finish() ([]T, Summary) {
	c.summary.Created = len(c.items)
	if c.cb.OnSummary != nil {
		c.cb.OnSummary(c.summary.Invalid, c.summary.Rejected, c.summary.ConversionErrors, c.summary.Created)
	}
	return c.items, c.summary
}
