package video

import (
	"strings"
	"unicode"
)

const maxNamePart = 100

// FileName returns the download name for a generated video: "<song>-<artist>.mp4".
func FileName(songName, artistName string) string {
	return SanitizeName(songName, maxNamePart) + "-" + SanitizeName(artistName, maxNamePart) + ".mp4"
}

// SanitizeName drops control characters and replaces anything that is not
// safe in a file name with an underscore.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')', '\'', '&', '!':
		return true
	default:
		return false
	}
}
