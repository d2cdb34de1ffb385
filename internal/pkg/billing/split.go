package billing

import "math"

// CalculateSplitAmounts divides total across count shares. Every share but
// the last is floor(total/count); the last absorbs the remainder so the
// shares always sum to total.
func CalculateSplitAmounts(total int64, count int) ([]int64, error) {
	if count <= 0 {
		return nil, invalid("count", "count must be positive")
	}
	if total < 0 {
		return nil, invalid("total_amount", "total amount must not be negative")
	}
	shares := make([]int64, count)
	if count == 1 {
		shares[0] = total
		return shares, nil
	}
	base := total / int64(count)
	for i := 0; i < count-1; i++ {
		shares[i] = base
	}
	shares[count-1] = total - base*int64(count-1)
	return shares, nil
}

// SplitPercentage is the nominal per-profile percentage stored on an
// assignment: nil for a single profile, otherwise round(100/count).
func SplitPercentage(count int) *int {
	if count <= 1 {
		return nil
	}
	p := int(math.Round(100 / float64(count)))
	return &p
}
