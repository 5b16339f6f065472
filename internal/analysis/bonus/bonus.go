package bonus

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/pkg/apperr"
)

const (
	MinBonus = 10
	MaxBonus = 50
)

// Label 是评价质量的定性描述。
type Label string

const (
	Excellent        Label = "Excellent"
	Great            Label = "Great"
	Good             Label = "Good"
	NeedsImprovement Label = "Needs improvement"
)

var (
	minBonus = decimal.NewFromInt(MinBonus)
	spread   = decimal.NewFromInt(MaxBonus - MinBonus)
)

// Calculate 将 [0,1] 的质量分映射为奖励积分：floor(10 + 40*score)。
// 乘法在十进制下进行，避免 0.95*40 这类浮点截断。
func Calculate(score float64) (int, error) {
	if err := validate(score); err != nil {
		return 0, err
	}
	credits := minBonus.Add(spread.Mul(decimal.NewFromFloat(score))).Floor()
	return int(credits.IntPart()), nil
}

// Classify maps a score to its feedback label. Each threshold is exclusive.
func Classify(score float64) Label {
	switch {
	case score > 0.9:
		return Excellent
	case score > 0.8:
		return Great
	case score > 0.7:
		return Good
	default:
		return NeedsImprovement
	}
}

// Feedback is the sentence shown next to the bonus.
func Feedback(label Label) string {
	switch label {
	case Excellent:
		return "Excellent review!"
	case Great:
		return "Great feedback!"
	case Good:
		return "Good review"
	default:
		return "Review needs improvement"
	}
}

func validate(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return apperr.New(apperr.InvalidArgument, "bonus.Calculate", "quality score must be within [0,1]")
	}
	return nil
}
