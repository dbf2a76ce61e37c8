package extract

import (
	"encoding/json"
	"strconv"

	"github.com/chartmed-ai/karte/internal/model"
)

// stagePayload is the JSON shape both LLM stages produce. Identity and
// metadata fields are decoded as any because models return numbers for
// fields like age or id; they are stringified before entering the domain
// types.
type stagePayload struct {
	PatientIdentity      rawIdentity  `json:"patient_identity"`
	ReportMetadata       rawMetadata  `json:"report_metadata"`
	Findings             []rawFinding `json:"findings"`
	Diagnosis            any          `json:"diagnosis"`
	Recommendations      []any        `json:"recommendations"`
	Warnings             []any        `json:"warnings"`
	ExtractionConfidence any          `json:"extraction_confidence"`
}

type rawIdentity struct {
	Name   any `json:"name"`
	ID     any `json:"id"`
	DOB    any `json:"dob"`
	Gender any `json:"gender"`
	Age    any `json:"age"`
}

type rawMetadata struct {
	ReportType         any `json:"report_type"`
	Date               any `json:"date"`
	LabName            any `json:"lab_name"`
	ReferringPhysician any `json:"referring_physician"`
}

type rawFinding struct {
	TestName       *string `json:"test_name"`
	Value          any     `json:"value"`
	Unit           *string `json:"unit"`
	ReferenceRange *string `json:"reference_range"`
	Status         *string `json:"status"`
	Interpretation *string `json:"interpretation"`
}

func (r rawIdentity) toModel() model.PatientIdentity {
	return model.PatientIdentity{
		Name:   stringifyPtr(r.Name),
		ID:     stringifyPtr(r.ID),
		DOB:    stringifyPtr(r.DOB),
		Gender: stringifyPtr(r.Gender),
		Age:    stringifyPtr(r.Age),
	}
}

func (r rawMetadata) toModel() model.ReportMetadata {
	return model.ReportMetadata{
		ReportType:         stringifyPtr(r.ReportType),
		Date:               stringifyPtr(r.Date),
		LabName:            stringifyPtr(r.LabName),
		ReferringPhysician: stringifyPtr(r.ReferringPhysician),
	}
}

// stringify renders a decoded JSON value the way a person would write it:
// numbers without a trailing .0, nil as the empty string.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// stringifyPtr is stringify for optional fields: nil stays nil.
func stringifyPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := stringify(v)
	return &s
}

func stringifyAll(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, stringify(v))
	}
	return out
}

// confidence coerces the model-reported extraction confidence, defaulting
// when it is missing or unreadable.
func confidence(v any, fallback float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return fallback
		}
		return f
	default:
		return fallback
	}
}
