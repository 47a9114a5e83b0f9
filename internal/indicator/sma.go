package indicator

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// SMAAligned returns an SMA series aligned to prices: out[i] is the average
// of the window ending at i, and ok[i] is false for the first period-1 bars
// where the average is undefined.
func SMAAligned(prices []float64, period int) (out []float64, ok []bool) {
	out = make([]float64, len(prices))
	ok = make([]bool, len(prices))
	sma := SMA(prices, period)
	offset := period - 1
	for i, v := range sma {
		out[i+offset] = v
		ok[i+offset] = true
	}
	return out, ok
}
