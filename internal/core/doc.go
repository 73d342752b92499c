// Package core converts comma-delimited text into typed records.
//
// It is independent of any transport: the web server, the CLI and the inbox
// watcher all call it the same way, with a byte source and a [Shape].
//
// # Shapes
//
// A shape is the ordered list of fields that make up a target type. Each
// field pairs a [FieldDescriptor] (column, conversion kind, declared type)
// with a setter:
//
//	type city struct {
//	    Town string
//	    Nr   *int
//	}
//
//	shape := core.NewShape(
//	    core.Bind(core.Describe("town", core.NamedValue{Column: "town"}),
//	        func(c *city, v string) { c.Town = v }),
//	    core.BindOptional(core.Describe("nr", nil),
//	        func(c *city, v *int) { c.Nr = v }),
//	)
//
// # Parsing
//
// [Parse] reads the first line as the header and classifies every following
// non-blank line into exactly one [Outcome]:
//
//   - [InvalidLine] when the field count differs from the header
//   - [RejectedRecord] when the keep predicate refuses the record
//   - [ConversionFailure] when a field cannot be converted
//   - [Success] otherwise
//
// Only successes are returned. Everything else is reported through optional
// [Callbacks]; [Collector] provides a ready-made set. Setup problems such as
// an unknown converter or a missing required column are returned as errors
// before any data line is classified.
//
// # Conversion
//
// Plain fields convert by declared type (string, int, int64, float64, bool).
// [Timestamp] fields accept a pipe-separated list of patterns like
// "dd/MM/yyyy|yyyy-MM-dd" and produce a pgtype.Date or a time.Time.
// [NamedConverter] fields use a function from a [Registry].
package core
