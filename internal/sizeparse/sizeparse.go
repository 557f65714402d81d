// Package sizeparse parses human-friendly byte-size strings ("650MB",
// "4.7GiB", "512") that the acquire CLI accepts for its --segment-size
// flag.
package sizeparse

import (
	"strconv"
	"strings"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
)

var decimalUnits = map[string]uint64{
	"":   1,
	"b":  1,
	"kb": 1000,
	"mb": 1000 * 1000,
	"gb": 1000 * 1000 * 1000,
	"tb": 1000 * 1000 * 1000 * 1000,
}

var binaryUnits = map[string]uint64{
	"kib": 1024,
	"mib": 1024 * 1024,
	"gib": 1024 * 1024 * 1024,
	"tib": 1024 * 1024 * 1024 * 1024,
}

// Parse converts s into a byte count. It accepts a plain integer, or an
// integer/decimal mantissa followed by a decimal (kB/MB/GB/TB, base
// 1000) or binary (KiB/MiB/GiB/TiB, base 1024) unit suffix.
func Parse(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ewferr.New(ewferr.ArgumentInvalid, "sizeparse.Parse: empty input")
	}

	i := len(s)
	for i > 0 && !isDigitOrDot(s[i-1]) {
		i--
	}
	mantissa, suffix := s[:i], strings.ToLower(strings.TrimSpace(s[i:]))

	unit, ok := binaryUnits[suffix]
	if !ok {
		unit, ok = decimalUnits[suffix]
	}
	if !ok {
		return 0, ewferr.New(ewferr.ArgumentInvalid, "sizeparse.Parse: unrecognized unit "+suffix)
	}

	f, err := strconv.ParseFloat(mantissa, 64)
	if err != nil {
		return 0, ewferr.Wrap(ewferr.Conversion, "sizeparse.Parse", err)
	}
	if f < 0 {
		return 0, ewferr.New(ewferr.ArgumentInvalid, "sizeparse.Parse: negative size")
	}
	return uint64(f * float64(unit)), nil
}

func isDigitOrDot(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.'
}
