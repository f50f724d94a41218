package matrix

import "sort"

// CSR is a complex compressed sparse row matrix with 0-based indices.
type CSR struct {
	Rows, Cols int
	Indptr     []int
	Indices    []int
	Data       []complex128
}

// NewCSR compiles coordinate triplets, summing duplicates.
func NewCSR(rows, cols int, ri, ci []int, vals []complex128) *CSR {
	type entry struct {
		col int
		val complex128
	}
	perRow := make([][]entry, rows)
	for k := range vals {
		perRow[ri[k]] = append(perRow[ri[k]], entry{ci[k], vals[k]})
	}

	m := &CSR{Rows: rows, Cols: cols, Indptr: make([]int, rows+1)}
	for i, es := range perRow {
		sort.SliceStable(es, func(a, b int) bool { return es[a].col < es[b].col })
		for k := 0; k < len(es); k++ {
			if k > 0 && es[k].col == es[k-1].col {
				m.Data[len(m.Data)-1] += es[k].val
				continue
			}
			m.Indices = append(m.Indices, es[k].col)
			m.Data = append(m.Data, es[k].val)
		}
		m.Indptr[i+1] = len(m.Indices)
	}
	return m
}

// Row returns the column indices and values stored in row i.
func (m *CSR) Row(i int) ([]int, []complex128) {
	lo, hi := m.Indptr[i], m.Indptr[i+1]
	return m.Indices[lo:hi], m.Data[lo:hi]
}

func (m *CSR) At(i, j int) complex128 {
	cols, vals := m.Row(i)
	k := sort.SearchInts(cols, j)
	if k < len(cols) && cols[k] == j {
		return vals[k]
	}
	return 0
}

func (m *CSR) MulVec(x []complex128) []complex128 {
	y := make([]complex128, m.Rows)
	for i := 0; i < m.Rows; i++ {
		var acc complex128
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			acc += m.Data[k] * x[m.Indices[k]]
		}
		y[i] = acc
	}
	return y
}

// Slice extracts the submatrix with the given rows and columns.
func (m *CSR) Slice(rows, cols []int) *CSR {
	colPos := make(map[int]int, len(cols))
	for p, c := range cols {
		colPos[c] = p
	}

	var ri, ci []int
	var vals []complex128
	for p, r := range rows {
		rc, rv := m.Row(r)
		for k, c := range rc {
			if q, ok := colPos[c]; ok {
				ri = append(ri, p)
				ci = append(ci, q)
				vals = append(vals, rv[k])
			}
		}
	}
	return NewCSR(len(rows), len(cols), ri, ci, vals)
}

// Sub returns m - other. Both must have the same shape.
func (m *CSR) Sub(other *CSR) *CSR {
	var ri, ci []int
	var vals []complex128
	for i := 0; i < m.Rows; i++ {
		cols, data := m.Row(i)
		for k, c := range cols {
			ri, ci, vals = append(ri, i), append(ci, c), append(vals, data[k])
		}
		cols, data = other.Row(i)
		for k, c := range cols {
			ri, ci, vals = append(ri, i), append(ci, c), append(vals, -data[k])
		}
	}
	return NewCSR(m.Rows, m.Cols, ri, ci, vals)
}

func (m *CSR) Diagonal() []complex128 {
	d := make([]complex128, min(m.Rows, m.Cols))
	for i := range d {
		d[i] = m.At(i, i)
	}
	return d
}

// Map returns a copy with f applied to every stored value.
func (m *CSR) Map(f func(complex128) complex128) *CSR {
	out := &CSR{
		Rows:    m.Rows,
		Cols:    m.Cols,
		Indptr:  append([]int(nil), m.Indptr...),
		Indices: append([]int(nil), m.Indices...),
		Data:    make([]complex128, len(m.Data)),
	}
	for k, v := range m.Data {
		out.Data[k] = f(v)
	}
	return out
}

func (m *CSR) NNZ() int {
	return len(m.Data)
}

// Factorize stamps m into a new complex system and factors it.
// The caller owns the system and must Destroy it.
func (m *CSR) Factorize() (*System, error) {
	sys, err := NewSystem(m.Rows, true)
	if err != nil {
		return nil, err
	}
	for i := 0; i < m.Rows; i++ {
		cols, vals := m.Row(i)
		for k, c := range cols {
			sys.AddComplexElement(i+1, c+1, real(vals[k]), imag(vals[k]))
		}
	}
	if err := sys.Factor(); err != nil {
		sys.Destroy()
		return nil, err
	}
	return sys, nil
}

// Real returns the real part of m as a real matrix.
func (m *CSR) Real() *RealCSR {
	return m.part(func(v complex128) float64 { return real(v) })
}

// Imag returns the imaginary part of m as a real matrix.
func (m *CSR) Imag() *RealCSR {
	return m.part(func(v complex128) float64 { return imag(v) })
}

func (m *CSR) part(f func(complex128) float64) *RealCSR {
	t := NewTriplets(m.Rows, m.Cols)
	for i := 0; i < m.Rows; i++ {
		cols, vals := m.Row(i)
		for k, c := range cols {
			t.Add(i, c, f(vals[k]))
		}
	}
	return t.CSR()
}
