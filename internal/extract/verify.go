package extract

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// numericRE grabs the leading numeric portion of a value, "6.2" out of
// "6.2 g/dL".
var numericRE = regexp.MustCompile(`[\d.]+`)

// verifyFinding reports whether a finding matches the OCR text strictly
// enough to need no LLM validation: some significant test-name token must
// appear case-insensitively, and the value (or at least its numeric
// portion) must appear verbatim.
func verifyFinding(f rawFinding, ocrText string) (bool, []string) {
	testName := ""
	if f.TestName != nil {
		testName = *f.TestName
	}
	value := stringify(f.Value)
	if testName == "" || value == "" {
		return false, []string{"Missing test_name or value - needs LLM-B validation"}
	}

	ocrLower := strings.ToLower(ocrText)
	nameFound := false
	for _, word := range strings.Fields(strings.ToLower(testName)) {
		if len(word) > 2 && strings.Contains(ocrLower, word) {
			nameFound = true
			break
		}
	}

	trimmed := strings.TrimSpace(value)
	valueFound := strings.Contains(ocrText, trimmed)

	numericFound := true
	if numeric := numericRE.FindString(trimmed); numeric != "" {
		numericFound = strings.Contains(ocrText, numeric)
	}

	if nameFound && (valueFound || numericFound) {
		return true, nil
	}

	var warnings []string
	if !nameFound {
		warnings = append(warnings, fmt.Sprintf("Test name '%s' not found in OCR", testName))
	}
	if !valueFound && !numericFound {
		warnings = append(warnings, fmt.Sprintf("Value '%s' not found in OCR", value))
	}
	return false, warnings
}

// needsValidation decides whether the validation stage must run. It runs
// when the unverified share of findings reaches 1-skipThreshold, with a
// floor of one finding. Clean reports verify entirely and skip the second
// LLM call.
func needsValidation(findings []rawFinding, ocrText string, skipThreshold float64) (bool, []string) {
	if len(findings) == 0 {
		return false, nil
	}

	var warnings []string
	unverified := 0
	for _, f := range findings {
		ok, w := verifyFinding(f, ocrText)
		warnings = append(warnings, w...)
		if !ok {
			unverified++
		}
	}

	threshold := int(math.Ceil((1 - skipThreshold) * float64(len(findings))))
	if threshold < 1 {
		threshold = 1
	}
	return unverified >= threshold, warnings
}

// verifyPatientName checks an extracted name against the page text: at
// least half of its whitespace tokens must appear case-insensitively,
// counting only tokens longer than two characters as matches.
func verifyPatientName(name, ocrText string) bool {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	if len(parts) == 0 {
		return false
	}

	ocrLower := strings.ToLower(ocrText)
	found := 0
	for _, part := range parts {
		if len(part) > 2 && strings.Contains(ocrLower, part) {
			found++
		}
	}
	return float64(found)/float64(len(parts)) >= 0.5
}

// unverifiedValueWarnings flags findings whose numeric value portion does
// not appear in the page text. Findings are kept either way; the warning
// is the audit trail.
func unverifiedValueWarnings(findings []rawFinding, ocrText string) []string {
	var warnings []string
	for _, f := range findings {
		value := stringify(f.Value)
		if value == "" {
			continue
		}
		numeric := numericRE.FindString(value)
		if numeric == "" || strings.Contains(ocrText, numeric) {
			continue
		}
		name := "Unknown"
		if f.TestName != nil {
			name = *f.TestName
		}
		warnings = append(warnings, fmt.Sprintf("Value '%s' for '%s' not verified in OCR", value, name))
	}
	return warnings
}
