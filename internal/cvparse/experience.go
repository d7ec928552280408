package cvparse

import (
	"regexp"
	"strings"
)

// Experience 是一段工作经历。
type Experience struct {
	JobTitle    string `json:"jobTitle"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	JobCategory string `json:"jobCategory"`
}

const monthNames = `Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec|January|February|March|April|May|June|July|August|September|October|November|December`

var (
	dateRangePattern = regexp.MustCompile(
		`(?i)(\b(?:` + monthNames + `)[\s.]*\d{4})\s*(?:[-–—]|to)\s*(\bPresent\b|\bCurrent\b|\b(?:` + monthNames + `)[\s.]*\d{4})`,
	)
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	titleSplit     = regexp.MustCompile(` at | \| `)
)

// JobCategories 按匹配优先级排列，首个命中者生效。
var JobCategories = []string{
	"Software", "Engineering", "Software Engineer", "Frontend Developer", "Backend Developer",
	"Data", "Cloud", "DevOps", "Security", "Networking",
	"Support", "Sales", "Marketing", "Product", "Design", "HR",
	"Finance", "Legal", "Other",
}

// JobCategory 按关键字归类职位，未命中时返回 Other。
func JobCategory(title string) string {
	lower := strings.ToLower(title)
	for _, category := range JobCategories {
		if strings.Contains(lower, strings.ToLower(category)) {
			return category
		}
	}
	return "Other"
}

// ParseExperiences 以空行切分经历段落，首行为职位，日期区间可出现在段内任意位置。
func ParseExperiences(text string) []Experience {
	if strings.TrimSpace(text) == "" {
		return []Experience{}
	}

	out := []Experience{}
	for _, entry := range paragraphSplit.Split(text, -1) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		lines := strings.Split(entry, "\n")
		title := strings.TrimSpace(lines[0])

		var start, end string
		if m := dateRangePattern.FindStringSubmatch(entry); m != nil {
			start = strings.TrimSpace(m[1])
			end = strings.TrimSpace(m[2])
			if strings.Contains(title, m[0]) {
				title = strings.TrimSpace(strings.Replace(title, m[0], "", 1))
			}
		}
		if title == "" {
			continue
		}

		title = strings.TrimSpace(titleSplit.Split(title, 2)[0])
		out = append(out, Experience{
			JobTitle:    title,
			StartDate:   start,
			EndDate:     end,
			JobCategory: JobCategory(title),
		})
	}
	return out
}
