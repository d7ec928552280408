package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"prepkitty/internal/database"
)

func TestGetUser(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "me@example.com", true)
	seedProfile(t, db, user.ID, "Backend Engineer")
	h := NewUserHandler(db, nil)

	c, w := newContext(http.MethodGet, "/v1/user", nil, user.ID)
	h.GetUser(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var resp userResponse
	decodeBody(t, w, &resp)
	if resp.Email != "me@example.com" || resp.PracticeProfile == nil || resp.PracticeProfile.JobTitle != "Backend Engineer" {
		t.Fatalf("unexpected user %+v", resp)
	}

	c, w = newContext(http.MethodGet, "/v1/user", nil, 999)
	h.GetUser(c)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}

func TestGetUserScores_Aggregates(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "scores@example.com", true)
	other := seedUser(t, db, "other@example.com", true)

	for i := 1; i <= 12; i++ {
		db.Create(&database.PracticeResult{UserID: user.ID, Mode: "quiz", Difficulty: "standard", Score: i % 4, TotalQuestions: 10})
	}
	db.Create(&database.PracticeResult{UserID: other.ID, Mode: "chat", Difficulty: "standard", Score: 10, TotalQuestions: 10})

	h := NewUserHandler(db, nil)
	c, w := newContext(http.MethodGet, "/v1/user-scores", nil, user.ID)
	h.GetUserScores(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Scores              []resultResponse `json:"scores"`
		AverageScore        float64          `json:"average_score"`
		InterviewsCompleted int64            `json:"interviews_completed"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Scores) != recentResultsLimit {
		t.Fatalf("expected %d scores, got %d", recentResultsLimit, len(resp.Scores))
	}
	if resp.InterviewsCompleted != 12 {
		t.Fatalf("interviews_completed = %d", resp.InterviewsCompleted)
	}
	// 分数依次为 1,2,3,0 循环三次，共 18 分。
	if resp.AverageScore != 1.5 {
		t.Fatalf("average_score = %v", resp.AverageScore)
	}
	if resp.Scores[0].ID < resp.Scores[len(resp.Scores)-1].ID {
		t.Fatal("scores must be newest first")
	}
}

func TestOnboarding_FiltersBlankRoles(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "onboard@example.com", true)
	h := NewUserHandler(db, nil)

	body := gin.H{
		"name":     "Ada",
		"jobTitle": "Data Analyst",
		"skills":   "SQL",
		"employmentHistory": []gin.H{
			{"role": "Analyst", "startDate": "2019", "endDate": "2022"},
			{"role": "   ", "startDate": "2018"},
		},
	}
	c, w := newContext(http.MethodPost, "/v1/onboarding", body, user.ID)
	h.Onboarding(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var reloaded database.User
	if err := db.Preload("PracticeProfile").First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.OnboardingCompleted || reloaded.Name != "Ada" {
		t.Fatalf("user not updated: %+v", reloaded)
	}
	if reloaded.PracticeProfile == nil || reloaded.PracticeProfile.JobTitle != "Data Analyst" {
		t.Fatalf("profile not saved: %+v", reloaded.PracticeProfile)
	}
	var rows []database.EmploymentEntry
	if err := json.Unmarshal(reloaded.PracticeProfile.EmploymentHistory, &rows); err != nil {
		t.Fatalf("decode employment: %v", err)
	}
	if len(rows) != 1 || rows[0].Role != "Analyst" {
		t.Fatalf("blank roles should be dropped, got %+v", rows)
	}

	// 再次提交应更新同一份档案。
	c, w = newContext(http.MethodPost, "/v1/onboarding", gin.H{"jobTitle": "Lead Analyst"}, user.ID)
	h.Onboarding(c)
	if w.Code != http.StatusOK {
		t.Fatalf("second onboarding: %d", w.Code)
	}
	var count int64
	db.Model(&database.PracticeProfile{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single profile, got %d", count)
	}
}
