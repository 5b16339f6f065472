package quality

import (
	"math"
	"strings"
	"unicode"
)

// Signal 表示评价文本中可识别的一类质量特征。
type Signal string

const (
	Specific     Signal = "specific"
	Constructive Signal = "constructive"
	Outcome      Signal = "outcome"
	Vague        Signal = "vague"
)

// Assessment is the heuristic grade of a review draft.
type Assessment struct {
	Score   float64
	Signals map[Signal]int
	Words   int
}

var keywordBuckets = map[Signal][]string{
	Specific: {
		"example", "explained", "chapter", "section", "minute", "demo", "exercise", "slides",
		"code", "project", "step by step", "walkthrough", "diagram", "pace", "audio", "video",
	},
	Constructive: {
		"could", "would be better", "suggest", "improve", "however", "but", "wish", "missing",
		"unclear", "too fast", "too slow", "recommend", "consider",
	},
	Outcome: {
		"learned", "understand", "now i can", "helped me", "applied", "built", "finally",
		"clearer", "confident", "solved",
	},
	Vague: {
		"good", "nice", "ok", "okay", "bad", "great", "cool", "whatever", "meh", "awesome",
	},
}

var signalWeight = map[Signal]float64{
	Specific:     0.06,
	Constructive: 0.05,
	Outcome:      0.05,
	Vague:        -0.04,
}

// Analyze grades a review text and its star rating without any network call.
// Rating outside [1,5] is treated as missing.
func Analyze(text string, rating int) Assessment {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Assessment{Score: 0, Signals: map[Signal]int{}}
	}

	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	signals := make(map[Signal]int)
	for signal, keywords := range keywordBuckets {
		for _, word := range keywords {
			if containsPhrase(normalized, words, word) {
				signals[signal]++
			}
		}
	}

	score := 0.35
	// 长度奖励在 80 词左右饱和。
	score += 0.3 * math.Min(1, float64(len(words))/80)
	score += 0.1 * lexicalVariety(words)
	for signal, hits := range signals {
		score += signalWeight[signal] * float64(min(hits, 3))
	}

	// 一星或五星但几乎没写理由的评价可信度较低。
	if (rating == 1 || rating == 5) && len(words) < 8 {
		score -= 0.1
	}

	return Assessment{Score: clamp(score), Signals: signals, Words: len(words)}
}

func containsPhrase(normalized string, words []string, phrase string) bool {
	if strings.Contains(phrase, " ") {
		return strings.Contains(normalized, phrase)
	}
	for _, w := range words {
		if w == phrase {
			return true
		}
	}
	return false
}

func lexicalVariety(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	return float64(len(unique)) / float64(len(words))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return math.Round(v*1000) / 1000
}
