// Package types 定义算法包之间共享的基础枚举.
package types

import "strings"

// OptionType 定义期权类型。
type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

// ParseOptionType 大小写不敏感地解析期权类型，未知值返回 false.
func ParseOptionType(s string) (OptionType, bool) {
	switch OptionType(strings.ToUpper(strings.TrimSpace(s))) {
	case OptionTypeCall:
		return OptionTypeCall, true
	case OptionTypePut:
		return OptionTypePut, true
	default:
		return "", false
	}
}

// KellyFormula 凯利分数的分母形式。
type KellyFormula string

const (
	// KellyScaled 分母为 b*a：(p*b - (1-p)*a) / (b*a)，默认形式.
	KellyScaled KellyFormula = "scaled"
	// KellyClassic 分母为 b：(p*b - (1-p)*a) / b.
	KellyClassic KellyFormula = "classic"
)
