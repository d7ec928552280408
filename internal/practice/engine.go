package practice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator 是文本生成模型的最小抽象。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Engine 推进练习会话。Engine 本身无状态，可并发使用。
type Engine struct {
	gen            Generator
	totalQuestions int
	now            func() time.Time
}

// NewEngine 创建 Engine；totalQuestions <= 0 时使用 DefaultTotalQuestions。
func NewEngine(gen Generator, totalQuestions int) *Engine {
	if totalQuestions <= 0 {
		totalQuestions = DefaultTotalQuestions
	}
	return &Engine{gen: gen, totalQuestions: totalQuestions, now: time.Now}
}

// Start 开启新会话并取得第一道题。
func (e *Engine) Start(ctx context.Context, mode Mode, profile Profile) (*Session, error) {
	if e.gen == nil {
		return nil, ErrGeneratorMissing
	}
	if mode != ModeChat && mode != ModeQuiz {
		return nil, ErrInvalidMode
	}

	s := &Session{
		ID:             uuid.NewString(),
		Mode:           mode,
		Profile:        profile,
		History:        []Message{},
		WrongAnswers:   []WrongAnswer{},
		TotalQuestions: e.totalQuestions,
		StartedAt:      e.now(),
	}

	reply, err := e.ask(ctx, s, mode)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeChat:
		s.History = append(s.History, Message{Role: RoleAI, Parts: reply})
	case ModeQuiz:
		quiz, err := ParseQuiz(reply)
		if err != nil {
			return nil, err
		}
		s.Quiz = quiz
		s.History = append(s.History, Message{Role: RoleAI, Parts: quiz.Question})
	}
	s.QuestionNumber = 1
	return s, nil
}

// Respond 提交一次回答并返回推进后的会话。
// 出错时返回的 error 非空，传入的 session 保持不变。
func (e *Engine) Respond(ctx context.Context, s *Session, answer string) (*Session, error) {
	if s == nil || s.QuestionNumber == 0 {
		return nil, ErrSessionNotStarted
	}
	if s.Completed {
		return nil, ErrSessionCompleted
	}
	if e.gen == nil {
		return nil, ErrGeneratorMissing
	}

	next := s.clone()
	var err error
	switch s.Mode {
	case ModeChat:
		err = e.respondChat(ctx, next, answer)
	case ModeQuiz:
		err = e.respondQuiz(ctx, next, answer)
	default:
		err = ErrInvalidMode
	}
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (e *Engine) respondChat(ctx context.Context, s *Session, answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ErrEmptyAnswer
	}
	s.History = append(s.History, Message{Role: RoleUser, Parts: answer})

	if s.UserAnswers() >= s.TotalQuestions {
		s.History = append(s.History, Message{Role: RoleAI, Parts: ClosingLine})
		e.complete(ctx, s)
		return nil
	}

	reply, err := e.ask(ctx, s, ModeChat)
	if err != nil {
		return err
	}
	s.History = append(s.History, Message{Role: RoleAI, Parts: reply})

	if IsInterviewOver(reply) {
		e.complete(ctx, s)
		return nil
	}
	if IsPositiveFeedback(reply) {
		s.Score++
	}
	s.QuestionNumber++
	return nil
}

func (e *Engine) respondQuiz(ctx context.Context, s *Session, answer string) error {
	if s.Quiz == nil {
		return ErrNoActiveQuestion
	}
	letter, ok := NormalizeOption(answer)
	if !ok {
		return ErrInvalidOption
	}
	chosen, _ := s.Quiz.Options.Get(letter)

	if letter == s.Quiz.CorrectAnswer {
		s.Score++
	} else {
		s.WrongAnswers = append(s.WrongAnswers, WrongAnswer{
			Question:      s.Quiz.Question,
			YourAnswer:    letter,
			CorrectAnswer: s.Quiz.CorrectAnswer,
			Options:       s.Quiz.Options,
		})
	}
	s.History = append(s.History, Message{Role: RoleUser, Parts: fmt.Sprintf("%s) %s", letter, chosen)})

	if s.QuestionNumber >= s.TotalQuestions {
		s.Quiz = nil
		e.markCompleted(s)
		return nil
	}

	reply, err := e.ask(ctx, s, ModeQuiz)
	if err != nil {
		return err
	}
	quiz, err := ParseQuiz(reply)
	if err != nil {
		return err
	}
	s.Quiz = quiz
	s.History = append(s.History, Message{Role: RoleAI, Parts: quiz.Question})
	s.QuestionNumber++
	return nil
}

// complete 结束 chat 会话并尝试生成总结，总结失败不影响结束。
func (e *Engine) complete(ctx context.Context, s *Session) {
	e.markCompleted(s)
	summary, err := e.ask(ctx, s, ModeSummarizeChat)
	if err != nil {
		return
	}
	s.Summary = strings.TrimSpace(summary)
}

func (e *Engine) markCompleted(s *Session) {
	now := e.now()
	s.Completed = true
	s.CompletedAt = &now
}

func (e *Engine) ask(ctx context.Context, s *Session, mode Mode) (string, error) {
	prompt, err := BuildPrompt(PromptInput{Profile: s.Profile, Mode: mode, ConversationHistory: s.History})
	if err != nil {
		return "", err
	}
	reply, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate %s reply: %w", mode, err)
	}
	return reply, nil
}
