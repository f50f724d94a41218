package matrix

type DeviceMatrix interface {
	AddElement(i, j int, value float64) // 1-based indexing
	AddRHS(i int, value float64)
	AddComplexElement(i, j int, real, imag float64)
	AddComplexRHS(i int, real, imag float64)
}

// Builder collects complex stamps as coordinates and compiles them to CSR.
// Index 0 is ground and is dropped.
type Builder struct {
	Size int
	rows []int
	cols []int
	vals []complex128
	rhs  []complex128
}

func NewBuilder(size int) *Builder {
	return &Builder{Size: size, rhs: make([]complex128, size)}
}

func (b *Builder) AddElement(i, j int, value float64) {
	b.AddComplexElement(i, j, value, 0)
}

func (b *Builder) AddComplexElement(i, j int, real, imag float64) {
	if i <= 0 || j <= 0 || i > b.Size || j > b.Size {
		return
	}
	b.rows = append(b.rows, i-1)
	b.cols = append(b.cols, j-1)
	b.vals = append(b.vals, complex(real, imag))
}

func (b *Builder) AddRHS(i int, value float64) {
	b.AddComplexRHS(i, value, 0)
}

func (b *Builder) AddComplexRHS(i int, real, imag float64) {
	if i <= 0 || i > b.Size {
		return
	}
	b.rhs[i-1] += complex(real, imag)
}

// RHS returns the accumulated 0-based right-hand side.
func (b *Builder) RHS() []complex128 {
	return b.rhs
}

func (b *Builder) CSR() *CSR {
	return NewCSR(b.Size, b.Size, b.rows, b.cols, b.vals)
}
