package consts

const (
	PRECISION     = 4     // Decimal places for control voltage comparisons
	HUGE_RESIDUAL = 1e20  // Residual reported by a failed kernel
	LOADING_EPS   = 1e-9  // Guards loading against zero-rated branches
	BASE_MVA      = 100.0 // Default system base (MVA)
)

// IncrementPrecision is the decimal precision used for iterative Q increments.
func IncrementPrecision() int {
	return int(1.5 * PRECISION)
}
