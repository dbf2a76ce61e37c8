package ocr

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chartmed-ai/karte/internal/model"
)

// sectionHeaderPatterns are report section titles that OCR picks up as
// standalone blocks. They carry no result data and confuse extraction,
// so matching blocks are dropped before the text reaches the LLM.
var sectionHeaderPatterns = []string{
	"DIFFERENTIAL", "COMPLETE BLOOD", "LIVER FUNCTION", "RENAL FUNCTION",
	"LIPID PROFILE", "THYROID FUNCTION", "URINE ANALYSIS", "BLOOD COUNT",
	"BIOCHEMISTRY", "HEMATOLOGY", "SEROLOGY", "IMMUNOLOGY", "MICROBIOLOGY",
	"CLINICAL PATHOLOGY", "INVESTIGATION", "LABORATORY", "TEST RESULTS",
}

// filterBlocks drops low-confidence blocks and section headers, returning
// the kept blocks and one warning per drop.
func filterBlocks(blocks []model.TextBlock, minConfidence float64) ([]model.TextBlock, []string) {
	var kept []model.TextBlock
	var warnings []string

	for _, b := range blocks {
		if b.Confidence < minConfidence {
			warnings = append(warnings, fmt.Sprintf("Low confidence (%.2f) block discarded: '%s...'", b.Confidence, truncate(b.Text, 40)))
			continue
		}
		if isSectionHeader(b.Text) {
			warnings = append(warnings, fmt.Sprintf("Section header filtered: '%s'", b.Text))
			continue
		}
		kept = append(kept, b)
	}
	return kept, warnings
}

// isSectionHeader reports whether a block looks like a section title: a
// known header pattern, or a long all-caps run with no digits. Short
// all-caps blocks are usually units or abbreviations and stay.
func isSectionHeader(text string) bool {
	clean := strings.TrimSpace(text)
	if utf8.RuneCountInString(clean) < 3 {
		return false
	}

	upper := strings.ToUpper(clean)
	for _, pattern := range sectionHeaderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}

	if isUpper(clean) && !containsDigit(clean) && utf8.RuneCountInString(clean) > 15 {
		return true
	}
	return false
}

// isUpper reports whether text has at least one letter and none of them
// lowercase.
func isUpper(text string) bool {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func containsDigit(text string) bool {
	for _, r := range text {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// truncate returns at most n leading runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
