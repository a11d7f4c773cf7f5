// Package validator 提供用户输入的格式校验。
package validator

import (
	"regexp"
	"strings"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_-]{3,50}$`)
	fullNameRegex = regexp.MustCompile(`^[A-Za-z -]{1,100}$`)
)

const passwordSpecials = "#?!@$ %^&*-"

// IsValidUsername 小写字母、数字、下划线和连字符，3 到 50 个字符。
func IsValidUsername(username string) bool {
	return usernameRegex.MatchString(username)
}

// IsValidFullName 英文字母、空格和连字符，1 到 100 个字符。
func IsValidFullName(name string) bool {
	return fullNameRegex.MatchString(name)
}

// IsValidPassword 8 到 25 个字符，且同时包含大写、小写、数字和一个特殊字符。
func IsValidPassword(password string) bool {
	if n := len([]rune(password)); n < 8 || n > 25 {
		return false
	}
	var upper, lower, digit, special bool
	for _, c := range password {
		switch {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= '0' && c <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, c):
			special = true
		}
	}
	return upper && lower && digit && special
}

// IsValidLength 校验字符串是否在指定长度闭区间内。
func IsValidLength(val string, minLen, maxLen int) bool {
	length := len([]rune(val))
	return length >= minLen && length <= maxLen
}

// IsEmpty 判断去空格后的字符串是否为空。
func IsEmpty(val string) bool {
	return strings.TrimSpace(val) == ""
}
