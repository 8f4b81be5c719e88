package execution

import (
	"fmt"
	"math"
)

// SlippageGuard flags fills that deviate from the quoted market price by
// more than a percentage threshold.
type SlippageGuard struct {
	thresholdPercent float64
}

func NewSlippageGuard(thresholdPercent float64) *SlippageGuard {
	return &SlippageGuard{
		thresholdPercent: thresholdPercent,
	}
}

// CheckSlippage returns ErrSlippageTooHigh when actual is too far from expected
func (sg *SlippageGuard) CheckSlippage(actualPrice, expectedPrice float64) error {
	if expectedPrice <= 0 {
		return fmt.Errorf("invalid expected price: %.2f", expectedPrice)
	}

	slippage := CalculateSlippage(actualPrice, expectedPrice)
	threshold := sg.thresholdPercent

	if slippage > threshold {
		return fmt.Errorf("%w: %.2f%% (threshold: %.2f%%)", ErrSlippageTooHigh, slippage, threshold)
	}

	return nil
}

// CalculateSlippage returns |actual - expected| / expected in percent
func CalculateSlippage(actualPrice, expectedPrice float64) float64 {
	if expectedPrice <= 0 {
		return 0.0
	}

	return math.Abs((actualPrice - expectedPrice) / expectedPrice * 100.0)
}

// Threshold is the tolerated deviation in percent
func (sg *SlippageGuard) Threshold() float64 {
	return sg.thresholdPercent
}
