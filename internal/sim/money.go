package sim

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

const (
	MicrosPerDollar = int64(1_000_000)

	UnitScale = int64(10_000) // 1 coin = 10_000 units.
)

var ErrNotionalOverflow = errors.New("notional overflow")

func DollarsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerDollar)))
}

func MicrosToDollars(v int64) float64 {
	return float64(v) / float64(MicrosPerDollar)
}

func CoinsToUnits(v float64) int64 {
	return int64(math.Round(v * float64(UnitScale)))
}

func UnitsToCoins(v int64) float64 {
	return float64(v) / float64(UnitScale)
}

// NotionalMicros returns price * quantity, with quantity expressed in units.
func NotionalMicros(priceMicros, units int64) (int64, error) {
	p := big.NewInt(priceMicros)
	q := big.NewInt(units)
	v := new(big.Int).Mul(p, q)
	v = v.Div(v, big.NewInt(UnitScale))
	if !v.IsInt64() {
		return 0, ErrNotionalOverflow
	}
	return v.Int64(), nil
}

// addMicros returns a+b, or ErrNotionalOverflow when the sum leaves int64.
func addMicros(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrNotionalOverflow
	}
	return a + b, nil
}

// saturatingAdd is addMicros pinned to the int64 range instead of failing.
func saturatingAdd(a, b int64) int64 {
	v, err := addMicros(a, b)
	if err == nil {
		return v
	}
	if b > 0 {
		return math.MaxInt64
	}
	return math.MinInt64
}

// PlainDollars renders micros without grouping separators and without
// trailing zero cents: 50000, 3000.5, 12.34.
func PlainDollars(micros int64) string {
	sign := ""
	if micros < 0 {
		sign = "-"
		micros = -micros
	}
	whole := micros / MicrosPerDollar
	cents := (micros % MicrosPerDollar) / 10_000
	if cents == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	frac := strings.TrimRight(fmt.Sprintf("%02d", cents), "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, frac)
}

// PlainCoins renders a unit quantity as a coin amount with at most four decimals.
func PlainCoins(units int64) string {
	return strconv.FormatFloat(UnitsToCoins(units), 'f', -1, 64)
}
