// Package cvparse 从 CV 文本中提取姓名、邮箱、各段落与工作经历。
package cvparse

import (
	"regexp"
	"strings"
)

// KnownHeaders 是能够终止一个段落的全部标题。
var KnownHeaders = []string{
	"Skills",
	"Technical Skills",
	"Experience",
	"Work Experience",
	"Education",
	"Projects",
	"Summary",
	"Objective",
	"Profile",
	"Contact",
	"Awards",
}

var (
	SummaryTitles    = []string{"Summary", "Profile", "Objective"}
	SkillsTitles     = []string{"Skills", "Technical Skills"}
	ExperienceTitles = []string{"Experience", "Work Experience"}
)

var (
	namePattern  = regexp.MustCompile(`(?m)^\s*([A-Z][a-zA-Z'-]+(?:\s[A-Z][a-zA-Z'-]+)+)`)
	emailPattern = regexp.MustCompile(`([a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+\.[a-zA-Z0-9_-]+)`)
)

func headerPattern(title string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^\s*` + regexp.QuoteMeta(title) + `\s*$`)
}

// SectionText 返回第一个命中标题之后、下一个已知标题之前的文本。
// 没有命中任何标题时返回空串。
func SectionText(text string, titles []string) string {
	var (
		found string
		start = -1
	)
	for _, title := range titles {
		if loc := headerPattern(title).FindStringIndex(text); loc != nil {
			found = title
			start = loc[1]
			break
		}
	}
	if start < 0 {
		return ""
	}

	remaining := text[start:]
	end := len(text)
	for _, header := range KnownHeaders {
		if strings.EqualFold(header, found) {
			continue
		}
		if loc := headerPattern(header).FindStringIndex(remaining); loc != nil {
			if abs := start + loc[0]; abs < end {
				end = abs
			}
		}
	}
	return strings.TrimSpace(text[start:end])
}

// Extracted 是 CV 解析结果。
type Extracted struct {
	Name                string       `json:"name"`
	Email               string       `json:"email"`
	Skills              string       `json:"skills"`
	ProfessionalSummary string       `json:"professionalSummary"`
	Experiences         []Experience `json:"experiences"`
	JobTitle            string       `json:"jobTitle"`
}

// Parse 对整份 CV 文本做启发式提取。
func Parse(text string) Extracted {
	out := Extracted{
		ProfessionalSummary: SectionText(text, SummaryTitles),
		Skills:              SectionText(text, SkillsTitles),
		Experiences:         ParseExperiences(SectionText(text, ExperienceTitles)),
	}
	if m := namePattern.FindString(text); m != "" {
		out.Name = strings.TrimSpace(m)
	}
	if m := emailPattern.FindString(text); m != "" {
		out.Email = strings.TrimSpace(m)
	}
	if len(out.Experiences) > 0 {
		out.JobTitle = out.Experiences[0].JobTitle
	}
	return out
}
