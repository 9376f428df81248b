package math

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFixedPoint(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"TestPow10", testPow10},
		{"TestParseUnits", testParseUnits},
		{"TestParseUnitsRejects", testParseUnitsRejects},
		{"TestToDecimal", testToDecimal},
		{"TestRescale", testRescale},
		{"TestSpreadBps", testSpreadBps},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testPow10(t *testing.T) {
	if got := Pow10(6); got.Cmp(big.NewInt(1000000)) != 0 {
		t.Errorf("Pow10(6) = %v; want 1000000", got)
	}
	if got := Pow10(0); got.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("Pow10(0) = %v; want 1", got)
	}
}

func testParseUnits(t *testing.T) {
	raw, err := ParseUnits("0.01", 18)
	if err != nil {
		t.Fatalf("ParseUnits returned error: %v", err)
	}
	want, _ := new(big.Int).SetString("10000000000000000", 10)
	if raw.Cmp(want) != 0 {
		t.Errorf("ParseUnits(0.01, 18) = %v; want %v", raw, want)
	}

	raw, err = ParseUnits(" 25 ", 6)
	if err != nil {
		t.Fatalf("ParseUnits returned error: %v", err)
	}
	if raw.Cmp(big.NewInt(25000000)) != 0 {
		t.Errorf("ParseUnits(25, 6) = %v; want 25000000", raw)
	}
}

func testParseUnitsRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "0", "-1", "0.0000001"} {
		if _, err := ParseUnits(in, 6); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseUnits(%q) error = %v; want ErrInvalidAmount", in, err)
		}
	}
}

func testToDecimal(t *testing.T) {
	d := ToDecimal(big.NewInt(25000000), 6)
	if !d.Equal(decimal.NewFromInt(25)) {
		t.Errorf("ToDecimal = %s; want 25", d)
	}
	if !ToDecimal(nil, 18).IsZero() {
		t.Errorf("ToDecimal(nil) should be zero")
	}
	if got := FormatUnits(big.NewInt(1050000), 6); got != "1.05" {
		t.Errorf("FormatUnits = %s; want 1.05", got)
	}
}

func testRescale(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := Rescale(wei, 18, 6); got.Cmp(big.NewInt(1500000)) != 0 {
		t.Errorf("Rescale(18->6) = %v; want 1500000", got)
	}
	if got := Rescale(big.NewInt(15), 6, 8); got.Cmp(big.NewInt(1500)) != 0 {
		t.Errorf("Rescale(6->8) = %v; want 1500", got)
	}
	if got := Rescale(wei, 18, 18); got.Cmp(wei) != 0 || got == wei {
		t.Errorf("Rescale with equal bases must return an equal copy")
	}
}

func testSpreadBps(t *testing.T) {
	profit, _ := new(big.Int).SetString("500000000000000", 10)
	notional, _ := new(big.Int).SetString("10000000000000000", 10)
	if got := SpreadBps(profit, notional); got != 500 {
		t.Errorf("SpreadBps = %v; want 500", got)
	}
	if got := SpreadBps(new(big.Int).Neg(profit), notional); got != -500 {
		t.Errorf("SpreadBps = %v; want -500", got)
	}
	if got := SpreadBps(profit, new(big.Int)); got != 0 {
		t.Errorf("SpreadBps with zero notional = %v; want 0", got)
	}
}
