package service

import (
	"strings"
	"unicode"
)

// ============ 文本处理工具 ============

// tokenize 将查询文本切分为小写词元，丢弃空串与纯标点
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// stemToken 后缀剥离词干化
//
// 只处理英文常见后缀，结果过短时保留原词，保证同一输入永远得到同一词干。
func stemToken(token string) string {
	suffixes := []string{"ingly", "edly", "ing", "ies", "ied", "ers", "er", "ed", "es", "s", "ly"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(token, suffix) {
			stem := token[:len(token)-len(suffix)]
			if len(stem) >= 3 {
				if suffix == "ies" || suffix == "ied" {
					return stem + "y"
				}
				return stem
			}
		}
	}
	return token
}

// levenshteinDistance 计算编辑距离，用于拼写纠正候选筛选
func levenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// textSimilarity 基于词干重叠的相似度，归一化到[0,1]
func textSimilarity(a, b string) float64 {
	tokensA, tokensB := tokenize(a), tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	stemsA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		stemsA[stemToken(t)] = true
	}

	matched := 0
	seen := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		stem := stemToken(t)
		if seen[stem] {
			continue
		}
		seen[stem] = true
		if stemsA[stem] {
			matched++
		}
	}

	union := len(stemsA) + len(seen) - matched
	if union == 0 {
		return 0
	}
	return float64(matched) / float64(union)
}

// correctSpelling 基于编辑距离的拼写纠正
//
// 只替换明显的输入错误：词不在词表中、且与某个词表词编辑距离为1。
// 纠正前的原始文本由调用方保留，供"您是不是要找"类建议使用。
func correctSpelling(query string, vocabulary []string) string {
	tokens := strings.Fields(query)
	changed := false
	for i, token := range tokens {
		lower := strings.ToLower(token)
		if len(lower) < 4 || containsWord(vocabulary, lower) {
			continue
		}
		for _, word := range vocabulary {
			if levenshteinDistance(lower, word) == 1 {
				tokens[i] = word
				changed = true
				break
			}
		}
	}
	if !changed {
		return query
	}
	return strings.Join(tokens, " ")
}

func containsWord(words []string, token string) bool {
	for _, w := range words {
		if w == token {
			return true
		}
	}
	return false
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
