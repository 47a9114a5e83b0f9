package indicator

// Neutral is the oscillator value reported for a window with no price movement.
const Neutral = 50.0

// RSI calculates the relative strength index over a trailing window of
// period price changes, using simple averages of gains and losses.
// Returns slice of length: len(prices) - period; element k belongs to prices[k+period].
//
// A window with gains but no losses is 100. A window with neither is Neutral.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) <= period {
		return []float64{}
	}

	changes := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		changes[i-1] = prices[i] - prices[i-1]
	}

	result := make([]float64, 0, len(prices)-period)
	for end := period; end <= len(changes); end++ {
		var gains, losses float64
		for _, c := range changes[end-period : end] {
			if c > 0 {
				gains += c
			} else {
				losses -= c
			}
		}
		result = append(result, rsiValue(gains, losses))
	}

	return result
}

func rsiValue(gains, losses float64) float64 {
	switch {
	case losses == 0 && gains == 0:
		return Neutral
	case losses == 0:
		return 100
	case gains == 0:
		return 0
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}
