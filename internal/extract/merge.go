package extract

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/chartmed-ai/karte/internal/model"
)

// Merge combines per-page analyses into one document-level analysis.
// Identity and metadata take the first non-empty value in page order.
// Findings deduplicate by normalized test name, keeping the extraction
// from the more confident page; unit mismatches and replacements are
// recorded as merge warnings rather than silently resolved. Findings
// without a test name always pass through.
func Merge(pages []model.PageAnalysis) model.DocumentAnalysis {
	merged := model.DocumentAnalysis{
		AllFindings:     []model.MergedFinding{},
		Diagnoses:       []string{},
		Recommendations: []string{},
		MergeWarnings:   []string{},
	}
	if len(pages) == 0 {
		return merged
	}

	for _, p := range pages {
		pi := p.PatientIdentity
		id := &merged.PatientIdentity
		if isEmpty(id.Name) && !isEmpty(pi.Name) {
			id.Name = pi.Name
		}
		if isEmpty(id.ID) && !isEmpty(pi.ID) {
			id.ID = pi.ID
		}
		if isEmpty(id.DOB) && !isEmpty(pi.DOB) {
			id.DOB = pi.DOB
		}
		if isEmpty(id.Gender) && !isEmpty(pi.Gender) {
			id.Gender = pi.Gender
		}
		if isEmpty(id.Age) && !isEmpty(pi.Age) {
			id.Age = pi.Age
		}

		rm := p.ReportMetadata
		md := &merged.ReportMetadata
		if isEmpty(md.ReportType) && !isEmpty(rm.ReportType) {
			md.ReportType = rm.ReportType
		}
		if isEmpty(md.Date) && !isEmpty(rm.Date) {
			md.Date = rm.Date
		}
		if isEmpty(md.LabName) && !isEmpty(rm.LabName) {
			md.LabName = rm.LabName
		}
		if isEmpty(md.ReferringPhysician) && !isEmpty(rm.ReferringPhysician) {
			md.ReferringPhysician = rm.ReferringPhysician
		}
	}

	type entry struct {
		finding    model.MedicalFinding
		page       int
		confidence float64
	}
	seen := make(map[string]*entry)
	var order []string

	for _, p := range pages {
		for _, f := range p.Findings {
			key := strings.ToLower(strings.TrimSpace(f.TestName))
			if key == "" {
				merged.AllFindings = append(merged.AllFindings, model.MergedFinding{
					MedicalFinding: f,
					SourcePage:     p.PageNumber,
				})
				continue
			}

			existing, ok := seen[key]
			if !ok {
				seen[key] = &entry{finding: f, page: p.PageNumber, confidence: p.ExtractionConfidence}
				order = append(order, key)
				continue
			}

			if !equalUnit(existing.finding.Unit, f.Unit) {
				merged.MergeWarnings = append(merged.MergeWarnings, fmt.Sprintf(
					"Unit conflict for '%s': '%s' (page %d) vs '%s' (page %d)",
					f.TestName, unitString(existing.finding.Unit), existing.page, unitString(f.Unit), p.PageNumber,
				))
			}
			if p.ExtractionConfidence > existing.confidence {
				merged.MergeWarnings = append(merged.MergeWarnings, fmt.Sprintf(
					"Replaced '%s' from page %d with page %d (higher confidence)",
					f.TestName, existing.page, p.PageNumber,
				))
				existing.finding = f
				existing.page = p.PageNumber
				existing.confidence = p.ExtractionConfidence
			}
		}
	}

	for _, key := range order {
		e := seen[key]
		merged.AllFindings = append(merged.AllFindings, model.MergedFinding{
			MedicalFinding: e.finding,
			SourcePage:     e.page,
		})
	}

	for _, p := range pages {
		if p.Diagnosis == nil || *p.Diagnosis == "" {
			continue
		}
		if !slices.Contains(merged.Diagnoses, *p.Diagnosis) {
			merged.Diagnoses = append(merged.Diagnoses, *p.Diagnosis)
		}
	}
	for _, p := range pages {
		for _, rec := range p.Recommendations {
			if rec == "" {
				continue
			}
			if !slices.Contains(merged.Recommendations, rec) {
				merged.Recommendations = append(merged.Recommendations, rec)
			}
		}
	}

	var sum float64
	var count int
	for _, p := range pages {
		if p.ExtractionConfidence > 0 {
			sum += p.ExtractionConfidence
			count++
		}
	}
	if count > 0 {
		merged.AggregateConfidence = math.Round(sum/float64(count)*100) / 100
	}

	return merged
}

func isEmpty(s *string) bool {
	return s == nil || *s == ""
}

func equalUnit(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func unitString(u *string) string {
	if u == nil {
		return ""
	}
	return *u
}
