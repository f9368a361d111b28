package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// 簡易メール形式
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	// 電話番号は数字と + - ( ) 空白だけ
	phoneRe = regexp.MustCompile(`^\+?[0-9()\-\s]{6,20}$`)
)

// 空はOK（ゲストでも任意）
func Email(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	return len(s) <= 254 && emailRe.MatchString(s)
}

// 空はOK
func Phone(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	return phoneRe.MatchString(s)
}

// 文字数で数える（バイトではない）
func MaxRunes(s string, max int) bool {
	return utf8.RuneCountInString(s) <= max
}
