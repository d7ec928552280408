package api

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"prepkitty/internal/database"
)

type profileResponse struct {
	ID                  uint            `json:"id"`
	JobTitle            string          `json:"jobTitle"`
	JobDescription      string          `json:"jobDescription"`
	ProfessionalSummary string          `json:"professionalSummary"`
	EmploymentHistory   json.RawMessage `json:"employmentHistory"`
	Projects            json.RawMessage `json:"projects"`
	Skills              string          `json:"skills"`
	AdditionalDetails   string          `json:"additionalDetails"`
	HasGeneratedCV      bool            `json:"hasGeneratedCv"`
	HasUploadedCV       bool            `json:"hasUploadedCv"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

type userResponse struct {
	ID                  uint             `json:"id"`
	Email               string           `json:"email"`
	Name                string           `json:"name"`
	EmailVerified       *time.Time       `json:"emailVerified"`
	OnboardingCompleted bool             `json:"onboardingCompleted"`
	MustChangePassword  bool             `json:"mustChangePassword"`
	CreatedAt           time.Time        `json:"createdAt"`
	PracticeProfile     *profileResponse `json:"practiceProfile"`
}

type resultResponse struct {
	ID             uint      `json:"id"`
	Mode           string    `json:"mode"`
	Difficulty     string    `json:"difficulty"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	JobTitle       string    `json:"jobTitle"`
	JobDescription string    `json:"jobDescription"`
	CreatedAt      time.Time `json:"createdAt"`
}

// jsonArrayOrEmpty 保证空列与 null 都输出为 []。
func jsonArrayOrEmpty(value datatypes.JSON) json.RawMessage {
	if len(value) == 0 || string(value) == "null" {
		return json.RawMessage("[]")
	}
	return json.RawMessage(value)
}

func newProfileResponse(p *database.PracticeProfile) *profileResponse {
	if p == nil {
		return nil
	}
	return &profileResponse{
		ID:                  p.ID,
		JobTitle:            p.JobTitle,
		JobDescription:      p.JobDescription,
		ProfessionalSummary: p.ProfessionalSummary,
		EmploymentHistory:   jsonArrayOrEmpty(p.EmploymentHistory),
		Projects:            jsonArrayOrEmpty(p.Projects),
		Skills:              p.Skills,
		AdditionalDetails:   p.AdditionalDetails,
		HasGeneratedCV:      p.CVObjectKey != "",
		HasUploadedCV:       p.UploadedCVKey != "",
		UpdatedAt:           p.UpdatedAt,
	}
}

func newUserResponse(u database.User) userResponse {
	return userResponse{
		ID:                  u.ID,
		Email:               u.Email,
		Name:                u.Name,
		EmailVerified:       u.EmailVerifiedAt,
		OnboardingCompleted: u.OnboardingCompleted,
		MustChangePassword:  u.MustChangePassword,
		CreatedAt:           u.CreatedAt,
		PracticeProfile:     newProfileResponse(u.PracticeProfile),
	}
}

func newResultResponse(r database.PracticeResult) resultResponse {
	return resultResponse{
		ID:             r.ID,
		Mode:           r.Mode,
		Difficulty:     r.Difficulty,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		JobTitle:       r.JobTitle,
		JobDescription: r.JobDescription,
		CreatedAt:      r.CreatedAt,
	}
}

// encodeEmployment 过滤掉 role 为空的行并编码为 JSON。
func encodeEmployment(rows []database.EmploymentEntry) (datatypes.JSON, error) {
	kept := make([]database.EmploymentEntry, 0, len(rows))
	for _, row := range rows {
		if isBlank(row.Role) {
			continue
		}
		kept = append(kept, row)
	}
	raw, err := json.Marshal(kept)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
