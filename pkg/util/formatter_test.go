package util

import (
	"math/cmplx"
	"testing"

	qt "github.com/frankban/quicktest"
)

var formatValueFactorTests = []struct {
	testName string
	value    float64
	unit     string
	expect   string
}{{
	testName: "mega",
	value:    2.5e6,
	unit:     "W",
	expect:   "2.500 MW",
}, {
	testName: "kilo",
	value:    -1500,
	unit:     "VAr",
	expect:   "-1.500 kVAr",
}, {
	testName: "unit",
	value:    12,
	unit:     "W",
	expect:   "12.000 W",
}, {
	testName: "zero",
	value:    0,
	unit:     "W",
	expect:   "0.000 W",
}, {
	testName: "milli",
	value:    0.0042,
	unit:     "W",
	expect:   "4.200 mW",
}, {
	testName: "tiny",
	value:    2e-9,
	unit:     "W",
	expect:   "2.000e-09 W",
}}

func TestFormatValueFactor(t *testing.T) {
	c := qt.New(t)
	for _, test := range formatValueFactorTests {
		c.Run(test.testName, func(c *qt.C) {
			c.Assert(FormatValueFactor(test.value, test.unit), qt.Equals, test.expect)
		})
	}
}

func TestPhasorFormats(t *testing.T) {
	c := qt.New(t)

	c.Assert(FormatPhasor("V(1)", cmplx.Rect(1.0213, -0.0420621)), qt.Equals, "V(1)=  1.0213<  -2.41deg")
	c.Assert(FormatPhasor("V(2)", 0), qt.Equals, "V(2)=  0.0000<   0.00deg")
	c.Assert(FormatComplexPower(complex(100, -50), "MVA"), qt.Equals, "100.000 -j50.000 MVA")
	c.Assert(FormatComplexPower(complex(1.5, 2), "MVA"), qt.Equals, "1.500 +j2.000 MVA")
	c.Assert(FormatAngle(1i), qt.Equals, "90.000")
	c.Assert(FormatPU(0.98766), qt.Equals, "0.9877")
	c.Assert(FormatPower(1234.5678), qt.Equals, "1234.568")
	c.Assert(FormatPower(2e7), qt.Equals, "2.000e+07")
	c.Assert(FormatPercent(0.5), qt.Equals, "50.0%")
}
