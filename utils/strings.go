package utils

import (
	"strings"
	"unsafe"
)

func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return *(*string)(unsafe.Pointer(&b))
}

// ContainsFold reports whether substr occurs in s, case-insensitively.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NormalizeTerm collapses a user-entered search term for comparison and
// history de-duplication.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
