package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"prepkitty/internal/database"
)

// recentResultsLimit 是 /user-scores 返回的最近记录条数。
const recentResultsLimit = 10

// UserHandler 处理账号资料、引导流程与成绩查询。
type UserHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewUserHandler 构造 UserHandler。
func NewUserHandler(db *gorm.DB, logger *slog.Logger) *UserHandler {
	return &UserHandler{db: db, logger: logger}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// loadUser 读取用户及其练习档案。
func loadUser(db *gorm.DB, userID uint) (database.User, error) {
	var user database.User
	err := db.Preload("PracticeProfile").First(&user, userID).Error
	return user, err
}

// firstOrCreateProfile 读取用户档案，不存在时创建空档案。
func firstOrCreateProfile(tx *gorm.DB, userID uint, profile *database.PracticeProfile) error {
	return tx.Where(database.PracticeProfile{UserID: userID}).
		Attrs(database.PracticeProfile{
			EmploymentHistory: datatypes.JSON("[]"),
			Projects:          datatypes.JSON("[]"),
		}).
		FirstOrCreate(profile).Error
}

// GetUser 返回当前用户及练习档案。
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	user, err := loadUser(h.db.WithContext(c.Request.Context()), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "User not found")
			return
		}
		loggerFor(c, h.logger).Error("load user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

type scoreAggregate struct {
	Count   int64
	Average float64
}

// GetUserScores 返回最近的练习成绩与汇总。
func (h *UserHandler) GetUserScores(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	db := h.db.WithContext(c.Request.Context())
	logger := loggerFor(c, h.logger)

	var results []database.PracticeResult
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(recentResultsLimit).
		Find(&results).Error; err != nil {
		logger.Error("list practice results failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var agg scoreAggregate
	if err := db.Model(&database.PracticeResult{}).
		Select("COUNT(*) AS count, COALESCE(AVG(score), 0) AS average").
		Where("user_id = ?", userID).
		Scan(&agg).Error; err != nil {
		logger.Error("aggregate practice results failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	scores := make([]resultResponse, 0, len(results))
	for _, r := range results {
		scores = append(scores, newResultResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{
		"scores":               scores,
		"average_score":        math.Round(agg.Average*100) / 100,
		"interviews_completed": agg.Count,
	})
}

type onboardingRequest struct {
	Name                string                     `json:"name"`
	JobTitle            string                     `json:"jobTitle"`
	JobDescription      string                     `json:"jobDescription"`
	ProfessionalSummary string                     `json:"professionalSummary"`
	EmploymentHistory   []database.EmploymentEntry `json:"employmentHistory"`
	Skills              string                     `json:"skills"`
	AdditionalDetails   string                     `json:"additionalDetails"`
}

// Onboarding 保存首次填写的求职档案并标记引导完成。
func (h *UserHandler) Onboarding(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req onboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	employment, err := encodeEmployment(req.EmploymentHistory)
	if err != nil {
		BadRequest(c, "invalid employment history")
		return
	}

	logger := loggerFor(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var profile database.PracticeProfile
		if err := firstOrCreateProfile(tx, userID, &profile); err != nil {
			return err
		}
		if err := tx.Model(&profile).Updates(map[string]any{
			"job_title":            strings.TrimSpace(req.JobTitle),
			"job_description":      req.JobDescription,
			"professional_summary": req.ProfessionalSummary,
			"employment_history":   employment,
			"skills":               req.Skills,
			"additional_details":   req.AdditionalDetails,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&database.User{}).Where("id = ?", userID).Updates(map[string]any{
			"name":                 strings.TrimSpace(req.Name),
			"onboarding_completed": true,
		}).Error
	})
	if err != nil {
		logger.Error("onboarding failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("onboarding completed")
	c.JSON(http.StatusOK, gin.H{"message": "Onboarding complete"})
}
