package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// s3Code 取出 MinIO 错误响应中的错误码（小写）。
func s3Code(err error) string {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return strings.ToLower(strings.TrimSpace(resp.Code))
	}
	return ""
}

func matchesAny(err error, codes []string, fragments []string) bool {
	if err == nil {
		return false
	}
	code := s3Code(err)
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	// 部分网关只返回文本错误。
	msg := strings.ToLower(err.Error())
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// IsNoSuchKey 判断错误是否表示对象不存在。
func IsNoSuchKey(err error) bool {
	return matchesAny(err,
		[]string{"nosuchkey", "notfound"},
		[]string{"nosuchkey", "specified key does not exist", "not found"},
	)
}

// IsNoSuchBucket 判断错误是否表示 Bucket 不存在。
func IsNoSuchBucket(err error) bool {
	return matchesAny(err,
		[]string{"nosuchbucket"},
		[]string{"nosuchbucket", "specified bucket does not exist"},
	)
}

// isMissing 对象或其所在 Bucket 不存在。
func isMissing(err error) bool {
	return IsNoSuchKey(err) || IsNoSuchBucket(err)
}
