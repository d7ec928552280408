package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Email               string `gorm:"uniqueIndex;size:255"`
	Name                string `gorm:"size:255"`
	PasswordHash        string `gorm:"size:255"`
	EmailVerifiedAt     *time.Time
	OnboardingCompleted bool             `gorm:"default:false"`
	MustChangePassword  bool             `gorm:"default:false"`
	PracticeProfile     *PracticeProfile `gorm:"constraint:OnDelete:CASCADE"`
	PracticeResults     []PracticeResult `gorm:"constraint:OnDelete:CASCADE"`
}

// PracticeProfile 保存用于拼装面试提示词的求职信息，每个用户至多一份。
type PracticeProfile struct {
	gorm.Model
	UserID              uint           `gorm:"uniqueIndex"`
	JobTitle            string         `gorm:"size:255"`
	JobDescription      string         `gorm:"type:text"`
	ProfessionalSummary string         `gorm:"type:text"`
	EmploymentHistory   datatypes.JSON `gorm:"type:jsonb"`
	Projects            datatypes.JSON `gorm:"type:jsonb"`
	Skills              string         `gorm:"type:text"`
	AdditionalDetails   string         `gorm:"type:text"`
	CVObjectKey         string         `gorm:"size:512"`
	UploadedCVKey       string         `gorm:"size:512"`
}

// PracticeResult 记录一次完成的练习。
type PracticeResult struct {
	gorm.Model
	UserID         uint   `gorm:"index"`
	Mode           string `gorm:"size:32"`
	Difficulty     string `gorm:"size:32"`
	Score          int
	TotalQuestions int
	JobTitle       string `gorm:"size:255"`
	JobDescription string `gorm:"type:text"`
}

// VerificationToken 是注册后发送到邮箱的一次性令牌。
type VerificationToken struct {
	gorm.Model
	Identifier string `gorm:"index;size:255"`
	Token      string `gorm:"uniqueIndex;size:128"`
	ExpiresAt  time.Time
}

// EmploymentEntry 是 EmploymentHistory JSON 数组中的一行。
type EmploymentEntry struct {
	Role        string `json:"role"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	JobCategory string `json:"jobCategory,omitempty"`
}

// Migrate 建表。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &PracticeProfile{}, &PracticeResult{}, &VerificationToken{})
}
