package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	uploadedPrefix  = "cv-uploads"
	generatedPrefix = "generated-cvs"
)

// UploadedCVKey 返回用户上传的 CV 的对象键。
func UploadedCVKey(userID uint) string {
	return fmt.Sprintf("%s/%d/%s.pdf", uploadedPrefix, userID, uuid.NewString())
}

// GeneratedCVKey 返回系统渲染的 CV 的对象键。
func GeneratedCVKey(userID uint) string {
	return fmt.Sprintf("%s/%d/%s.pdf", generatedPrefix, userID, uuid.NewString())
}

// UserPrefixes 返回某个用户名下所有对象所在的前缀。
func UserPrefixes(userID uint) []string {
	return []string{
		fmt.Sprintf("%s/%d/", uploadedPrefix, userID),
		fmt.Sprintf("%s/%d/", generatedPrefix, userID),
	}
}

// OwnsKey 判断对象键是否属于该用户。
func OwnsKey(userID uint, key string) bool {
	if strings.Contains(key, "..") {
		return false
	}
	for _, prefix := range UserPrefixes(userID) {
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, ".pdf") {
			return true
		}
	}
	return false
}
