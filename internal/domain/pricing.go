package domain

// LinePrice captures the frozen price of an order line at reservation time.
type LinePrice struct {
	UnitPrice int64
	Subtotal  int64
}

// PriceLine snapshots the item's current catalog price for the given
// quantity. The returned values are copied into the order line and must never
// be recomputed from the live catalog afterwards; reprints and refunds read
// the snapshot.
func PriceLine(item MenuItem, quantity int) LinePrice {
	unit := item.Price
	return LinePrice{
		UnitPrice: unit,
		Subtotal:  unit * int64(quantity),
	}
}

// SumSubtotals returns the order total as the exact sum of line subtotals.
func SumSubtotals(lines []OrderLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.Subtotal
	}
	return total
}
