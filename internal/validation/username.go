// Package validation проверяет пользовательский ввод до того, как он
// уходит в storage или по сети.
package validation

import (
	"fmt"
	"regexp"
)

const (
	// MinUsernameLen минимальная длина username
	MinUsernameLen = 3
	// MaxUsernameLen максимальная длина username
	MaxUsernameLen = 32
)

// username входит в JWT claims и в логи, поэтому набор символов жесткий:
// латиница, цифры и подчеркивание
var usernameCharset = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateUsername проверяет формат имени пользователя
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLen {
		return fmt.Errorf("username must be at least %d characters long", MinUsernameLen)
	}
	if len(username) > MaxUsernameLen {
		return fmt.Errorf("username must not exceed %d characters", MaxUsernameLen)
	}
	if !usernameCharset.MatchString(username) {
		return fmt.Errorf("username can only contain letters (a-z, A-Z), numbers (0-9), and underscores (_)")
	}
	return nil
}
