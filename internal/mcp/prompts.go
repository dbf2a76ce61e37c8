package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// tumor-board-briefing — turn a processed case into a meeting briefing.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("tumor-board-briefing",
			mcplib.WithPromptDescription("Compose a tumor board meeting briefing from a processed case"),
			mcplib.WithArgument("case_id",
				mcplib.ArgumentDescription("The tumor board case UUID to brief on"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleBriefingPrompt,
	)

	// patient-workup — run document analysis for a patient end to end.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("patient-workup",
			mcplib.WithPromptDescription("Run AI document analysis for a patient and summarize the findings"),
			mcplib.WithArgument("patient",
				mcplib.ArgumentDescription("Patient reference: row UUID or hospital-assigned patient ID"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleWorkupPrompt,
	)
}

func (s *Server) handleBriefingPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	caseID := request.Params.Arguments["case_id"]
	if caseID == "" {
		return nil, fmt.Errorf("case_id argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Briefing for tumor board case %s", caseID),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Prepare a tumor board meeting briefing for case %s.

1. CALL get_tumor_board_view with case_id="%s".
   - If the status is "no_data", report that the case has not completed AI
     processing and stop. Do not invent clinical content.

2. READ the view carefully. It contains per-specialist assessments
   (radiology, pathology, oncology), a synthesized treatment
   recommendation and the governance trail.

3. WRITE the briefing with these sections:
   - Patient: name, hospital patient ID, cancer type
   - Key findings: one short paragraph per specialist, preserving the
     specialist's own confidence and caveats
   - Recommendation: the synthesized treatment recommendation, verbatim
     where it states specific therapies or dosages
   - Open questions: anything the assessments flag as uncertain or
     needing human review

The briefing supports a clinical discussion; it does not replace one.
Flag every AI-generated statement as AI-generated and keep all caveats.`, caseID, caseID),
				},
			},
		},
	}, nil
}

func (s *Server) handleWorkupPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	patient := request.Params.Arguments["patient"]
	if patient == "" {
		return nil, fmt.Errorf("patient argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Document analysis workup for patient %s", patient),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Run an AI document analysis workup for patient %s.

1. CALL submit_analysis with patient="%s".
   - If the status is "no_reports", report that there is nothing to
     analyze and stop.

2. POLL get_analysis_status with the returned jobId until the status is
   terminal (completed, failed or cancelled). Use the estimatedSeconds
   field to pace your polling; do not poll more than once every few
   seconds.

3. WHEN completed, summarize the result payload:
   - Reports analyzed and any that failed OCR or extraction
   - Diagnoses and staging found, with the originating report
   - Medications and lab values worth surfacing
   - Warnings raised during verification

If the job failed, report the error message as-is. Never fill gaps in the
extracted data with your own clinical conclusions.`, patient, patient),
				},
			},
		},
	}, nil
}
