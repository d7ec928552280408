// Package errcode 定义推送给前端的通知错误码。
package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：用户数据问题，重试无意义（例如资料缺失）
// - 5xxx：系统错误，任务会按重试策略重跑
const (
	OK             = 0
	ProfileMissing = 4004
	PasswordChange = 4031
	InvalidProfile = 4022
	SystemError    = 5000
)

// Message 返回错误码的默认描述。
func Message(code int) string {
	switch code {
	case OK:
		return ""
	case PasswordChange:
		return "password change required"
	case ProfileMissing:
		return "practice profile not found"
	case InvalidProfile:
		return "practice profile contains invalid data"
	default:
		return "internal error"
	}
}
