package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/pkg/apperr"
)

var sixty = decimal.NewFromInt(60)

// EstimateCost 根据已用秒数与每分钟价格计算预估费用，保留完整精度。
// 负数输入返回 InvalidArgument。
func EstimateCost(elapsedSeconds int64, pricePerMinute decimal.Decimal) (decimal.Decimal, error) {
	if elapsedSeconds < 0 {
		return decimal.Zero, apperr.New(apperr.InvalidArgument, "pricing.EstimateCost", "elapsed seconds must not be negative")
	}
	if pricePerMinute.IsNegative() {
		return decimal.Zero, apperr.New(apperr.InvalidArgument, "pricing.EstimateCost", "price per minute must not be negative")
	}
	return pricePerMinute.Mul(decimal.NewFromInt(elapsedSeconds)).Div(sixty), nil
}

// ReserveCeiling is the amount earmarked at start: the whole listing watched.
func ReserveCeiling(durationMinutes float64, pricePerMinute decimal.Decimal) (decimal.Decimal, error) {
	if durationMinutes < 0 {
		return decimal.Zero, apperr.New(apperr.InvalidArgument, "pricing.ReserveCeiling", "duration must not be negative")
	}
	if pricePerMinute.IsNegative() {
		return decimal.Zero, apperr.New(apperr.InvalidArgument, "pricing.ReserveCeiling", "price per minute must not be negative")
	}
	return pricePerMinute.Mul(decimal.NewFromFloat(durationMinutes)).Round(2), nil
}

// Display formats an amount for the UI, two decimal places.
func Display(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// FormatElapsed renders seconds as mm:ss, minutes are not capped at 60.
func FormatElapsed(elapsedSeconds int64) string {
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	return fmt.Sprintf("%02d:%02d", elapsedSeconds/60, elapsedSeconds%60)
}
