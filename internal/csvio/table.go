package csvio

// Table is one decoded CSV: ordered rows under a fixed header. Name is
// the source filename on input tables and the suggested filename on
// output tables. Every row has exactly len(Headers) cells.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Index returns the position of a column, -1 when absent. Header text
// matches exactly; callers resolve indexes once, outside row loops.
func (t *Table) Index(col string) int {
	for i, h := range t.Headers {
		if h == col {
			return i
		}
	}
	return -1
}

func (t *Table) Require(cols ...string) error {
	missing := make([]string, 0)
	for _, col := range cols {
		if t.Index(col) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{File: t.Name, Missing: missing}
	}
	return nil
}

// Concat stacks tables in order under the union of their headers, taken
// in first-appearance order. Cells for columns a table lacks stay empty.
func Concat(name string, tables []*Table) *Table {
	headers := make([]string, 0)
	seen := map[string]int{}
	for _, t := range tables {
		for _, h := range t.Headers {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = len(headers)
			headers = append(headers, h)
		}
	}

	out := &Table{Name: name, Headers: headers}
	for _, t := range tables {
		idx := make([]int, len(t.Headers))
		for i, h := range t.Headers {
			idx[i] = seen[h]
		}
		for _, row := range t.Rows {
			cells := make([]string, len(headers))
			for i, v := range row {
				cells[idx[i]] = v
			}
			out.Rows = append(out.Rows, cells)
		}
	}
	return out
}
