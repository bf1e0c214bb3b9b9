package market

import "github.com/shopspring/decimal"

// FormatVolume truncates a volume to the given number of decimals.
// Truncation never rounds up past the balance the volume was sized from.
func FormatVolume(volume float64, decimals int32) string {
	return decimal.NewFromFloat(volume).Truncate(decimals).String()
}

// FormatPrice rounds a price to the exchange's price precision.
func FormatPrice(price float64, decimals int32) string {
	return decimal.NewFromFloat(price).Round(decimals).String()
}
