package text

import "strings"

// Strategy selects how raw text is cut into synthesis segments.
type Strategy string

const (
	StrategyNone          Strategy = "none"
	StrategyEvery4        Strategy = "every-4-sentences"
	StrategyEveryN        Strategy = "every-50-chars"
	StrategyChinesePeriod Strategy = "chinese-period"
	StrategyEnglishPeriod Strategy = "english-period"
	StrategyPunctuation   Strategy = "punctuation"
	StrategyUnknown       Strategy = "unknown"
)

// CharBudget is N for the every-N-chars strategy.
const CharBudget = 50

// strategyAliases maps every accepted spelling to its canonical strategy.
// The Chinese labels are the names used by the original web UI and CLI.
var strategyAliases = map[string]Strategy{
	"none":              StrategyNone,
	"cut0":              StrategyNone,
	"不切":                StrategyNone,
	"every-4-sentences": StrategyEvery4,
	"every4":            StrategyEvery4,
	"cut1":              StrategyEvery4,
	"凑四句一切":             StrategyEvery4,
	"every-50-chars":    StrategyEveryN,
	"every-n-chars":     StrategyEveryN,
	"cut2":              StrategyEveryN,
	"凑50字一切":            StrategyEveryN,
	"chinese-period":    StrategyChinesePeriod,
	"cut3":              StrategyChinesePeriod,
	"按中文句号。切":           StrategyChinesePeriod,
	"english-period":    StrategyEnglishPeriod,
	"cut4":              StrategyEnglishPeriod,
	"按英文句号.切":           StrategyEnglishPeriod,
	"punctuation":       StrategyPunctuation,
	"cut5":              StrategyPunctuation,
	"按标点符号切":            StrategyPunctuation,
}

// ParseStrategy canonicalizes a strategy name. Unrecognized names map to
// StrategyUnknown.
func ParseStrategy(name string) Strategy {
	key := strings.ToLower(strings.TrimSpace(name))
	if s, ok := strategyAliases[key]; ok {
		return s
	}
	return StrategyUnknown
}

// Strategies lists the canonical strategies in menu order.
func Strategies() []Strategy {
	return []Strategy{
		StrategyNone,
		StrategyEvery4,
		StrategyEveryN,
		StrategyChinesePeriod,
		StrategyEnglishPeriod,
		StrategyPunctuation,
	}
}

func (s Strategy) Valid() bool {
	return s != StrategyUnknown && s != ""
}

func (s Strategy) String() string {
	return string(s)
}
