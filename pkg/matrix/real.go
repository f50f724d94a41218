package matrix

import "sort"

// Triplets accumulates real coordinate entries with 0-based indices.
type Triplets struct {
	Rows, Cols int
	ri, ci     []int
	vals       []float64
}

func NewTriplets(rows, cols int) *Triplets {
	return &Triplets{Rows: rows, Cols: cols}
}

func (t *Triplets) Add(i, j int, v float64) {
	if v == 0 {
		return
	}
	t.ri = append(t.ri, i)
	t.ci = append(t.ci, j)
	t.vals = append(t.vals, v)
}

// RealCSR is a real compressed sparse row matrix with 0-based indices.
type RealCSR struct {
	Rows, Cols int
	Indptr     []int
	Indices    []int
	Data       []float64
}

func (t *Triplets) CSR() *RealCSR {
	type entry struct {
		col int
		val float64
	}
	perRow := make([][]entry, t.Rows)
	for k := range t.vals {
		perRow[t.ri[k]] = append(perRow[t.ri[k]], entry{t.ci[k], t.vals[k]})
	}

	m := &RealCSR{Rows: t.Rows, Cols: t.Cols, Indptr: make([]int, t.Rows+1)}
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

func (m *RealCSR) MulVec(x []float64) []float64 {
	y := make([]float64, m.Rows)
	for i := 0; i < m.Rows; i++ {
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			y[i] += m.Data[k] * x[m.Indices[k]]
		}
	}
	return y
}

// TMulVec returns mᵀ·x.
func (m *RealCSR) TMulVec(x []float64) []float64 {
	y := make([]float64, m.Cols)
	for i := 0; i < m.Rows; i++ {
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			y[m.Indices[k]] += m.Data[k] * x[i]
		}
	}
	return y
}

// Normal returns mᵀ·m.
func (m *RealCSR) Normal() *RealCSR {
	t := NewTriplets(m.Cols, m.Cols)
	for i := 0; i < m.Rows; i++ {
		lo, hi := m.Indptr[i], m.Indptr[i+1]
		for a := lo; a < hi; a++ {
			for b := lo; b < hi; b++ {
				t.Add(m.Indices[a], m.Indices[b], m.Data[a]*m.Data[b])
			}
		}
	}
	return t.CSR()
}

func (m *RealCSR) Diagonal() []float64 {
	d := make([]float64, min(m.Rows, m.Cols))
	for i := 0; i < len(d); i++ {
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			if m.Indices[k] == i {
				d[i] = m.Data[k]
			}
		}
	}
	return d
}

// Stamp loads m into a square system, shifting to 1-based indices.
func (m *RealCSR) Stamp(dst *System) {
	for i := 0; i < m.Rows; i++ {
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			dst.AddElement(i+1, m.Indices[k]+1, m.Data[k])
		}
	}
}

// Factorize stamps m into a new real system and factors it.
// The caller owns the system and must Destroy it.
func (m *RealCSR) Factorize() (*System, error) {
	sys, err := NewSystem(m.Rows, false)
	if err != nil {
		return nil, err
	}
	m.Stamp(sys)
	if err := sys.Factor(); err != nil {
		sys.Destroy()
		return nil, err
	}
	return sys, nil
}

// Solve solves m·x = b with a one-shot factorization.
func (m *RealCSR) Solve(b []float64) ([]float64, error) {
	sys, err := m.Factorize()
	if err != nil {
		return nil, err
	}
	defer sys.Destroy()
	return sys.SolveVector(b)
}
