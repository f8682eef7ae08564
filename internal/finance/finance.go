// Package finance holds the money arithmetic shared by trips, payments and
// driver settlements. Amounts are stored as float64 in MongoDB and computed
// here in decimal, rounded to two places.
package finance

import "github.com/shopspring/decimal"

const places = 2

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func out(d decimal.Decimal) float64 {
	f, _ := d.Round(places).Float64()
	return f
}

// Round rounds an amount to two places.
func Round(v float64) float64 {
	return out(dec(v))
}

// Sum adds amounts without float drift.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(dec(v))
	}
	return out(total)
}

// Sub returns a - b.
func Sub(a, b float64) float64 {
	return out(dec(a).Sub(dec(b)))
}

// Split divides gross client revenue between the brokerage and the vehicle
// owner. Self-owned vehicles carry no commission regardless of rate.
func Split(gross, commissionRate float64, selfOwned bool) (commission, ownerAmount float64) {
	g := dec(gross)
	if selfOwned || commissionRate <= 0 {
		return 0, out(g)
	}
	c := g.Mul(dec(commissionRate)).Div(decimal.NewFromInt(100)).Round(places)
	return out(c), out(g.Sub(c))
}

// Exceeds reports whether current+add would be greater than limit, compared
// at cent precision.
func Exceeds(current, add, limit float64) bool {
	return dec(current).Add(dec(add)).Round(places).GreaterThan(dec(limit).Round(places))
}

// IsZero reports whether v rounds to zero cents.
func IsZero(v float64) bool {
	return dec(v).Round(places).IsZero()
}

// Format renders v with two decimals.
func Format(v float64) string {
	return dec(v).StringFixed(places)
}
