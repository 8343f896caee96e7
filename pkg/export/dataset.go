package export

// Field is one labelled value printed above the table.
type Field struct {
	Label string
	Value string
}

// Dataset defines tabular export content. Rows are positional and must match Headers.
type Dataset struct {
	Title   string
	Summary []Field
	Headers []string
	// Widths are relative column weights for PDF rendering; nil means equal widths.
	Widths []float64
	Rows   [][]string
}
