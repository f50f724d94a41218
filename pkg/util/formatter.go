package util

import (
	"fmt"
	"math"
	"math/cmplx"
)

// FormatValueFactor prints a value with a metric prefix, "k" and "M"
// included for powers.
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1e6:
		return fmt.Sprintf("%.3f M%s", value/1e6, unit)
	case absValue >= 1e3:
		return fmt.Sprintf("%.3f k%s", value/1e3, unit)
	case absValue >= 1 || absValue == 0:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

func FormatPU(value float64) string {
	return fmt.Sprintf("%.4f", value)
}

// FormatAngle prints the phase of v in degrees.
func FormatAngle(v complex128) string {
	return fmt.Sprintf("%.3f", cmplx.Phase(v)*180/math.Pi)
}

// FormatPower prints MW or MVAr values, with the magnitude
// switching to exponent form when very large.
func FormatPower(value float64) string {
	if math.Abs(value) >= 1e6 {
		return fmt.Sprintf("%.3e", value)
	}
	return fmt.Sprintf("%.3f", value)
}

func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatPhasor prints name=|v|<angle in p.u. and degrees.
func FormatPhasor(name string, v complex128) string {
	magnitude := cmplx.Abs(v)
	var magStr string
	if magnitude >= 1000 || (magnitude < 0.001 && magnitude != 0) {
		magStr = fmt.Sprintf("%8.2e", magnitude) // "1.00e+03" or "5.43e-05"
	} else {
		magStr = fmt.Sprintf("%8.4f", magnitude) // "  1.0213"
	}
	phaseStr := fmt.Sprintf("%7.2f", cmplx.Phase(v)*180/math.Pi) // "  -2.41"
	return fmt.Sprintf("%s=%s<%sdeg", name, magStr, phaseStr)
}

// FormatComplexPower prints P + jQ.
func FormatComplexPower(s complex128, unit string) string {
	sign := "+"
	q := imag(s)
	if q < 0 {
		sign = "-"
		q = -q
	}
	return fmt.Sprintf("%.3f %sj%.3f %s", real(s), sign, q, unit)
}
