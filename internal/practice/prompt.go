package practice

import (
	"fmt"
	"strings"
)

// PromptInput 对应 /gemini 接口的请求体。
type PromptInput struct {
	Profile
	Mode                Mode      `json:"mode"`
	ConversationHistory []Message `json:"conversationHistory"`
}

const quizFormatInstructions = "\n\nIMPORTANT: Do not use asterisks, bold, or markdown formatting for section headers. Just use plain text.\n" +
	"Format your response as follows:\n" +
	"    Question: [Your question here]\n" +
	"    A) [Option A]\n" +
	"    B) [Option B]\n" +
	"    C) [Option C]\n" +
	"    D) [Option D]\n" +
	"    Answer: [Correct Option Letter (e.g., A)]\n" +
	"    Next Question: [Your next question here]"

// BuildPrompt 根据模式拼装发送给模型的提示词。
func BuildPrompt(in PromptInput) (string, error) {
	if strings.TrimSpace(in.JobTitle) == "" {
		return "", ErrJobTitleRequired
	}
	switch in.Mode {
	case ModeChat:
		return buildChatPrompt(in), nil
	case ModeQuiz:
		return buildQuizPrompt(in), nil
	case ModeSummarizeChat:
		return buildSummaryPrompt(in), nil
	default:
		return "", ErrInvalidMode
	}
}

func orNA(value string) string {
	if strings.TrimSpace(value) == "" {
		return "N/A"
	}
	return value
}

func writeRoleContext(b *strings.Builder, p Profile) {
	fmt.Fprintf(b, "    - Job Title: %s\n", p.JobTitle)
	fmt.Fprintf(b, "    - Job Description: %s\n", orNA(p.JobDescription))
	fmt.Fprintf(b, "    - Skills: %s\n", orNA(p.Skills))
	fmt.Fprintf(b, "    - Employment History: %s\n", orNA(p.EmploymentHistory))
	fmt.Fprintf(b, "    - Additional Details: %s\n", orNA(p.AdditionalDetails))
}

func formatHistory(history []Message) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Parts))
	}
	return strings.Join(lines, "\n")
}

func lastMessage(history []Message, role Role) (Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == role {
			return history[i], true
		}
	}
	return Message{}, false
}

func buildChatPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are an AI interviewer. Conduct a realistic job interview for the following role:\n")
	writeRoleContext(&b, in.Profile)
	b.WriteString("\n    Current conversation history:\n    ")
	b.WriteString(formatHistory(in.ConversationHistory))
	b.WriteString("\n\n    ")

	if _, ok := lastMessage(in.ConversationHistory, RoleUser); ok {
		b.WriteString("Evaluate the last answer for relevance, correctness, and depth. " +
			"Give feedback (e.g., was it detailed, did it address the question, was it correct?). " +
			"If the answer is empty, irrelevant, or not meaningful, explain why and suggest how to improve. " +
			"Avoid using 'N/A' and always provide constructive feedback. " +
			"Then, ask the next interview question directly, as a human interviewer would. " +
			"Do not refer to the candidate in your questions.")
	} else {
		b.WriteString("Ask the first interview question directly, as a human interviewer would. " +
			"Do not refer to the candidate in your questions.")
	}
	return b.String()
}

func buildQuizPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are an AI quiz master. Generate a multiple-choice quiz question for the following job role. Provide 4 options (A, B, C, D)\n")
	writeRoleContext(&b, in.Profile)
	fmt.Fprintf(&b, "\n    The quiz will consist of %d questions.\n", DefaultTotalQuestions)
	b.WriteString("    Do not repeat any question that has already been asked in this session.\n    ")

	lastAI, hasAI := lastMessage(in.ConversationHistory, RoleAI)
	lastUser, hasUser := lastMessage(in.ConversationHistory, RoleUser)
	if hasAI && hasUser {
		fmt.Fprintf(&b, "Previous Question: %s\n", lastAI.Parts)
		fmt.Fprintf(&b, "Answer: %s\n\n", lastUser.Parts)
		b.WriteString("Evaluate the answer to the previous question. Then, generate the next multiple-choice quiz question. " +
			"Do not refer to the candidate in your questions. Do not repeat any previous questions.")
	} else {
		b.WriteString("Generate the first multiple-choice quiz question. " +
			"Do not refer to the candidate in your questions. Do not repeat any previous questions.")
	}

	b.WriteString(quizFormatInstructions)
	return b.String()
}

func buildSummaryPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are an experienced hiring manager reviewing a completed mock interview for the following role:\n")
	writeRoleContext(&b, in.Profile)
	b.WriteString("\n    Interview transcript:\n    ")
	b.WriteString(formatHistory(in.ConversationHistory))
	b.WriteString("\n\n    Write a concise performance review of the candidate's answers. " +
		"Cover overall impression, strengths, areas to improve, and give a score out of 10. " +
		"Do not use asterisks, bold, or markdown formatting. Just use plain text.")
	return b.String()
}
