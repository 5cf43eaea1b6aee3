package store

import (
	"fmt"
	"regexp"
)

// MaxUserIDLength is the maximum allowed length for user identifier strings.
// Matches the VARCHAR(255) constraint in the database schema.
const MaxUserIDLength = 255

// MaxKeyLength bounds workspace and project keys.
const MaxKeyLength = 200

var keyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/#@-]*$`)

// ValidateUserID checks that a user identifier does not exceed MaxUserIDLength.
func ValidateUserID(id string) error {
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("user identifier too long: %d chars (max %d)", len(id), MaxUserIDLength)
	}
	return nil
}

// ValidateKey checks a workspace or project key.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key is empty")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("key too long: %d chars (max %d)", len(key), MaxKeyLength)
	}
	if !keyRe.MatchString(key) {
		return fmt.Errorf("key %q contains invalid characters", key)
	}
	return nil
}
