package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/chartmed-ai/karte/internal/authz"
	"github.com/chartmed-ai/karte/internal/ctxutil"
	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
)

func (s *Server) registerResources() {
	// karte://activity/recent — the hospital's recent audit trail.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"karte://activity/recent",
			"Recent Activity",
			mcplib.WithResourceDescription("Recent activity entries for the authenticated hospital"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleActivityRecent,
	)

	// karte://patients/{id}/summary — one patient with reports and latest analysis.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"karte://patients/{id}/summary",
			"Patient Summary",
			mcplib.WithTemplateDescription("Patient record with uploaded reports and the latest analysis job"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handlePatientSummary,
	)
}

func (s *Server) handleActivityRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, errors.New("mcp: not authenticated")
	}

	entries, total, err := s.db.ListActivity(ctx, claims.HospitalID, storage.ActivityFilter{Limit: 20})
	if err != nil {
		return nil, fmt.Errorf("mcp: recent activity: %w", err)
	}

	data, err := json.MarshalIndent(model.ActivityListResponse{
		Activities: entries,
		Total:      total,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal activity: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "karte://activity/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePatientSummary(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, errors.New("mcp: not authenticated")
	}

	uri := request.Params.URI
	patientID, err := parsePatientSummaryURI(uri)
	if err != nil {
		return nil, err
	}

	allowed, err := authz.CanAccessPatient(ctx, s.db, s.owners, claims, patientID)
	if err != nil {
		return nil, fmt.Errorf("mcp: patient summary: %w", err)
	}
	if !allowed {
		return nil, errors.New("mcp: patient not found")
	}

	patient, err := s.db.GetPatient(ctx, claims.HospitalID, patientID)
	if err != nil {
		return nil, fmt.Errorf("mcp: patient summary: %w", err)
	}
	reports, err := s.db.ListReportsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("mcp: patient summary: %w", err)
	}

	summary := map[string]any{
		"patient": patient,
		"reports": reports,
	}
	if job, err := s.db.LatestJobByPatient(ctx, patientID); err == nil {
		summary["latestAnalysis"] = job
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal summary: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// parsePatientSummaryURI extracts the patient UUID from a
// karte://patients/{id}/summary URI.
func parsePatientSummaryURI(uri string) (uuid.UUID, error) {
	const prefix, suffix = "karte://patients/", "/summary"
	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return uuid.Nil, fmt.Errorf("mcp: invalid patient summary URI: %s", uri)
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mcp: invalid patient summary URI: %s", uri)
	}
	return id, nil
}
