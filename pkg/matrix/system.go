package matrix

import (
	"github.com/edp1096/sparse"
	"gopkg.in/errgo.v1"
)

var ErrIndex = errgo.New("matrix index out of bounds")

// System is a square sparse matrix factored by LU. Elements are stamped
// with 1-based indices; SolveVector and SolveComplexVector take and return
// 0-based vectors.
type System struct {
	Size      int
	matrix    *sparse.Matrix
	isComplex bool
	factored  bool
}

func NewSystem(size int, isComplex bool) (*System, error) {
	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 isComplex,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           false,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, errgo.Notef(err, "cannot create %dx%d sparse matrix", size, size)
	}

	return &System{
		Size:      size,
		matrix:    mat,
		isComplex: isComplex,
	}, nil
}

func (s *System) inBounds(i, j int) bool {
	return i > 0 && j > 0 && i <= s.Size && j <= s.Size
}

func (s *System) AddElement(i, j int, value float64) {
	if !s.inBounds(i, j) {
		return
	}
	s.matrix.GetElement(int64(i), int64(j)).Real += value
	s.factored = false
}

func (s *System) AddComplexElement(i, j int, real, imag float64) {
	if !s.inBounds(i, j) {
		return
	}

	element := s.matrix.GetElement(int64(i), int64(j))
	element.Real += real
	element.Imag += imag
	s.factored = false
}

// LoadDiagonal adds value to every diagonal element.
func (s *System) LoadDiagonal(value float64) {
	for i := 1; i <= s.Size; i++ {
		s.matrix.GetElement(int64(i), int64(i)).Real += value
	}
	s.factored = false
}

func (s *System) Factor() error {
	if err := s.matrix.Factor(); err != nil {
		return errgo.Notef(err, "matrix factorization failed")
	}
	s.factored = true
	return nil
}

// SolveVector solves A·x = b for a 0-based real b with the current factors.
func (s *System) SolveVector(b []float64) ([]float64, error) {
	if s.isComplex {
		return nil, errgo.Newf("real solve on complex system")
	}
	if len(b) != s.Size {
		return nil, errgo.WithCausef(nil, ErrIndex, "rhs length %d, system size %d", len(b), s.Size)
	}
	if !s.factored {
		if err := s.Factor(); err != nil {
			return nil, err
		}
	}

	rhs := make([]float64, s.Size+1)
	copy(rhs[1:], b)
	sol, err := s.matrix.Solve(rhs)
	if err != nil {
		return nil, errgo.Notef(err, "matrix solve failed")
	}

	x := make([]float64, s.Size)
	copy(x, sol[1:s.Size+1])
	return x, nil
}

// SolveComplexVector solves A·x = b for a 0-based complex b with the current factors.
func (s *System) SolveComplexVector(b []complex128) ([]complex128, error) {
	if !s.isComplex {
		return nil, errgo.Newf("complex solve on real system")
	}
	if len(b) != s.Size {
		return nil, errgo.WithCausef(nil, ErrIndex, "rhs length %d, system size %d", len(b), s.Size)
	}
	if !s.factored {
		if err := s.Factor(); err != nil {
			return nil, err
		}
	}

	rhs := make([]float64, 2*(s.Size+1))
	for i, v := range b {
		rhs[2*(i+1)] = real(v)
		rhs[2*(i+1)+1] = imag(v)
	}
	sol, _, err := s.matrix.SolveComplex(rhs, nil)
	if err != nil {
		return nil, errgo.Notef(err, "matrix solve failed")
	}

	x := make([]complex128, s.Size)
	for i := range x {
		x[i] = complex(sol[2*(i+1)], sol[2*(i+1)+1])
	}
	return x, nil
}

func (s *System) Destroy() {
	if s.matrix != nil {
		s.matrix.Destroy()
		s.matrix = nil
	}
}
