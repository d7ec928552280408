package practice

import (
	"regexp"
	"strings"
)

var (
	questionPattern = regexp.MustCompile(`Question: (.*)`)
	optionAPattern  = regexp.MustCompile(`A\) (.*)`)
	optionBPattern  = regexp.MustCompile(`B\) (.*)`)
	optionCPattern  = regexp.MustCompile(`C\) (.*)`)
	optionDPattern  = regexp.MustCompile(`D\) (.*)`)
	answerPattern   = regexp.MustCompile(`Answer: ([A-D])`)

	positiveFeedbackPattern = regexp.MustCompile(`(?i)\b(correct|good job|well done|excellent|right answer)\b`)
)

var endInterviewPhrases = []string{
	"interview has now concluded",
	"not interested in continuing",
	"end the interview",
}

func firstGroup(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ParseQuiz 从固定格式的模型输出中提取题干、四个选项和正确答案。
// 任一字段缺失即视为解析失败。
func ParseQuiz(text string) (*Quiz, error) {
	question, ok1 := firstGroup(questionPattern, text)
	a, ok2 := firstGroup(optionAPattern, text)
	b, ok3 := firstGroup(optionBPattern, text)
	c, ok4 := firstGroup(optionCPattern, text)
	d, ok5 := firstGroup(optionDPattern, text)
	answer, ok6 := firstGroup(answerPattern, text)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil, ErrUnparsableQuiz
	}
	return &Quiz{
		Question:      question,
		Options:       Options{A: a, B: b, C: c, D: d},
		CorrectAnswer: answer,
	}, nil
}

// IsInterviewOver 判断面试官回复是否宣布结束。
func IsInterviewOver(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range endInterviewPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsPositiveFeedback 判断回复是否肯定了上一题的回答。
func IsPositiveFeedback(reply string) bool {
	return positiveFeedbackPattern.MatchString(reply)
}

// NormalizeOption 规范化选项字母，非法时返回 false。
func NormalizeOption(option string) (string, bool) {
	letter := strings.ToUpper(strings.TrimSpace(option))
	switch letter {
	case "A", "B", "C", "D":
		return letter, true
	}
	return "", false
}
