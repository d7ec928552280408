// Package practice 实现模拟面试（chat）与选择题测验（quiz）的会话编排：
// 提示词拼装、模型回复解析、结束条件判断与计分。
package practice

import (
	"errors"
	"time"
)

// Mode 表示练习模式。
type Mode string

const (
	ModeChat Mode = "chat"
	ModeQuiz Mode = "quiz"
	// ModeSummarizeChat 仅用于提示词，生成面试结束后的表现总结。
	ModeSummarizeChat Mode = "summarize_chat"
)

// DefaultTotalQuestions 是每轮练习的问题数量。
const DefaultTotalQuestions = 10

// ClosingLine 在面试达到问题上限时追加到对话末尾。
const ClosingLine = "The interview has now concluded. Thank you for your time."

// Role 区分对话中的发言方。
type Role string

const (
	RoleAI   Role = "AI"
	RoleUser Role = "User"
)

var (
	ErrInvalidMode       = errors.New("invalid mode specified")
	ErrUnparsableQuiz    = errors.New("failed to parse quiz response")
	ErrEmptyAnswer       = errors.New("answer is empty")
	ErrInvalidOption     = errors.New("option must be one of A, B, C, D")
	ErrNoActiveQuestion  = errors.New("no active quiz question")
	ErrSessionCompleted  = errors.New("session already completed")
	ErrJobTitleRequired  = errors.New("job title is required")
	ErrGeneratorMissing  = errors.New("text generator is not configured")
	ErrSessionNotStarted = errors.New("session has not been started")
)

// Message 是对话历史中的一条记录。
type Message struct {
	Role  Role   `json:"role"`
	Parts string `json:"parts"`
}

// Profile 是拼装提示词所需的求职上下文。
type Profile struct {
	JobTitle          string `json:"jobTitle"`
	JobDescription    string `json:"jobDescription"`
	Skills            string `json:"skills"`
	EmploymentHistory string `json:"employmentHistory"`
	AdditionalDetails string `json:"additionalDetails"`
}

// Options 是四个选项。
type Options struct {
	A string `json:"A"`
	B string `json:"B"`
	C string `json:"C"`
	D string `json:"D"`
}

// Get 按字母取选项文本。
func (o Options) Get(letter string) (string, bool) {
	switch letter {
	case "A":
		return o.A, true
	case "B":
		return o.B, true
	case "C":
		return o.C, true
	case "D":
		return o.D, true
	}
	return "", false
}

// Quiz 是解析后的单道选择题。
type Quiz struct {
	Question      string  `json:"question"`
	Options       Options `json:"options"`
	CorrectAnswer string  `json:"correctAnswer"`
}

// WrongAnswer 记录答错的题目，用于结果页回顾。
type WrongAnswer struct {
	Question      string  `json:"question"`
	YourAnswer    string  `json:"yourAnswer"`
	CorrectAnswer string  `json:"correctAnswer"`
	Options       Options `json:"options"`
}

// Session 是一轮练习的完整状态。
type Session struct {
	ID             string        `json:"id"`
	UserID         uint          `json:"userId"`
	Mode           Mode          `json:"mode"`
	Difficulty     string        `json:"difficulty,omitempty"`
	Profile        Profile       `json:"profile"`
	History        []Message     `json:"conversationHistory"`
	Score          int           `json:"score"`
	QuestionNumber int           `json:"currentQuestionNumber"`
	TotalQuestions int           `json:"totalQuestions"`
	Quiz           *Quiz         `json:"quizData,omitempty"`
	WrongAnswers   []WrongAnswer `json:"wrongAnswers"`
	Summary        string        `json:"summary,omitempty"`
	Completed      bool          `json:"completed"`
	ResultSaved    bool          `json:"resultSaved"`
	StartedAt      time.Time     `json:"startedAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
}

// UserAnswers 统计用户已作答次数。
func (s *Session) UserAnswers() int {
	count := 0
	for _, msg := range s.History {
		if msg.Role == RoleUser {
			count++
		}
	}
	return count
}

func (s *Session) clone() *Session {
	cp := *s
	cp.History = append([]Message(nil), s.History...)
	cp.WrongAnswers = append([]WrongAnswer(nil), s.WrongAnswers...)
	if s.Quiz != nil {
		q := *s.Quiz
		cp.Quiz = &q
	}
	return &cp
}
