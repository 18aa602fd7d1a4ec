package diag

// Span marks a byte range in template source together with its
// one-based line and column coordinates.
type Span struct {
	StartLine   int
	StartCol    int
	StartOffset int
	EndLine     int
	EndCol      int
	EndOffset   int
}

// IsZero reports whether the span carries no position information.
func (s Span) IsZero() bool {
	return s == Span{}
}
