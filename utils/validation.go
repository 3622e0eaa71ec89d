package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const MaxNameLength = 255

var invalidNameChars = []string{"<", ">", ":", "\"", "|", "?", "*", "\x00", "/", "\\"}

var reservedNames = []string{"CON", "PRN", "AUX", "NUL", "COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9", "LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9"}

// ValidateName checks a single file or folder name. It never accepts
// separators, so a valid name is always exactly one path segment.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("name too long (max %d characters)", MaxNameLength)
	}

	if !utf8.ValidString(name) {
		return fmt.Errorf("name contains invalid UTF-8 characters")
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be %q", name)
	}

	for _, char := range invalidNameChars {
		if strings.Contains(name, char) {
			return fmt.Errorf("name contains invalid character: %q", char)
		}
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name contains control characters")
		}
	}

	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name cannot be blank")
	}

	// Windows device names, with or without extension
	nameWithoutExt := strings.TrimSuffix(name, filepath.Ext(name))
	for _, reserved := range reservedNames {
		if strings.EqualFold(nameWithoutExt, reserved) {
			return fmt.Errorf("name uses reserved name: %s", reserved)
		}
	}

	return nil
}

// ValidateFolderName adds the folder specific rules on top of ValidateName.
func ValidateFolderName(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	// Check for dots at the end (Windows issue)
	if strings.HasSuffix(name, ".") {
		return fmt.Errorf("folder name cannot end with a dot")
	}

	return nil
}

// ValidateFileSize checks an upload against the configured limit. A limit
// of zero or less disables the check.
func ValidateFileSize(size, limit int64) error {
	if limit > 0 && size > limit {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d bytes", size, limit)
	}
	return nil
}
