package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrInvalidLocalPart = errors.New("invalid local part format")
)

// MaxLocalPartLength RFC 5322 本地部分最大长度(@前面)
const MaxLocalPartLength = 64

var localPartRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*[a-z0-9]$|^[a-z0-9]$`)

// NormalizeLocalPart 去除首尾空白并转为小写，然后验证用户自定义的邮箱前缀。
//
// 返回空字符串且无错误表示调用方没有指定前缀。
func NormalizeLocalPart(localPart string) (string, error) {
	localPart = strings.ToLower(strings.TrimSpace(localPart))
	if localPart == "" {
		return "", nil
	}
	if err := ValidateLocalPart(localPart); err != nil {
		return "", err
	}
	return localPart, nil
}

// ValidateLocalPart 验证邮箱本地部分
func ValidateLocalPart(localPart string) error {
	if localPart == "" {
		return ErrInvalidLocalPart
	}
	if len(localPart) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}

	// 格式检查
	if !localPartRegex.MatchString(localPart) {
		return ErrInvalidLocalPart
	}

	// 不允许连续的特殊字符
	for _, seq := range []string{"..", ".-", "-.", "--", "__", "_.", "._"} {
		if strings.Contains(localPart, seq) {
			return ErrInvalidLocalPart
		}
	}

	return nil
}
