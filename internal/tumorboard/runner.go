package tumorboard

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chartmed-ai/karte/internal/llm"
	"github.com/chartmed-ai/karte/internal/model"
)

const (
	// DefaultAgentTimeout bounds a single agent invocation.
	DefaultAgentTimeout = 2 * time.Minute

	defaultMaxConcurrentAgents = 2
)

// Config names the model each agent runs on and sizes the runner.
type Config struct {
	RadiologyModel   string
	PathologyModel   string
	ClinicalModel    string
	ResearchModel    string
	CoordinatorModel string

	MaxConcurrentAgents int
	AgentTimeout        time.Duration
}

// RunInput is the prepared per-specialty material for one board run. Empty
// report texts skip the matching specialist.
type RunInput struct {
	PatientID     string
	PatientName   string
	PatientAge    string
	PatientGender string

	RadiologyText string
	PathologyText string
	ClinicalText  string
}

// Runner fans a case out to the specialist agents in three phases:
// radiology, pathology and clinical in parallel, then research over their
// combined summaries, then coordinator synthesis.
type Runner struct {
	radiology   *RadiologyAgent
	pathology   *PathologyAgent
	clinical    *ClinicalAgent
	research    *ResearchAgent
	coordinator *CoordinatorAgent

	sem          *semaphore.Weighted
	agentTimeout time.Duration
	orch         *Orchestrator
	logger       *slog.Logger
}

func NewRunner(provider llm.Provider, cfg Config, orch *Orchestrator, logger *slog.Logger) *Runner {
	if cfg.MaxConcurrentAgents <= 0 {
		cfg.MaxConcurrentAgents = defaultMaxConcurrentAgents
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = DefaultAgentTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		radiology:    NewRadiologyAgent(provider, cfg.RadiologyModel),
		pathology:    NewPathologyAgent(provider, cfg.PathologyModel),
		clinical:     NewClinicalAgent(provider, cfg.ClinicalModel),
		research:     NewResearchAgent(provider, cfg.ResearchModel),
		coordinator:  NewCoordinatorAgent(provider, cfg.CoordinatorModel),
		sem:          semaphore.NewWeighted(int64(cfg.MaxConcurrentAgents)),
		agentTimeout: cfg.AgentTimeout,
		orch:         orch,
		logger:       logger,
	}
}

// Run executes the full board for one patient and returns the raw view.
// Callers pass the result through CleanView before storing it.
func (r *Runner) Run(ctx context.Context, in RunInput) model.TumorBoardView {
	started := time.Now()
	session := r.orch.StartSession(ctx)

	var radiologyCtx, pathologyCtx, clinicalCtx *model.AgentContext
	if in.RadiologyText != "" {
		radiologyCtx = r.agentContext(in, in.RadiologyText, "Radiology Report")
	}
	if in.PathologyText != "" {
		pathologyCtx = r.agentContext(in, in.PathologyText, "Pathology Report")
	}
	if in.ClinicalText != "" {
		clinicalCtx = r.agentContext(in, in.ClinicalText, "Clinical Notes")
	}

	var radiologyOut, pathologyOut, clinicalOut, researchOut *model.AgentOutput

	var wg sync.WaitGroup
	run := func(agent Agent, key string, ac *model.AgentContext, slot **model.AgentOutput) {
		defer wg.Done()
		if ac == nil {
			return
		}
		if err := r.sem.Acquire(ctx, 1); err != nil {
			out := agentFailed(agent, *ac, time.Now(), err)
			*slot = &out
			return
		}
		defer r.sem.Release(1)
		out := r.invoke(ctx, session, agent, key, *ac)
		*slot = &out
	}

	wg.Add(3)
	go run(r.radiology, "radiology", radiologyCtx, &radiologyOut)
	go run(r.pathology, "pathology", pathologyCtx, &pathologyOut)
	go run(r.clinical, "clinical", clinicalCtx, &clinicalOut)
	wg.Wait()

	researchCtx := &model.AgentContext{
		PatientID:   in.PatientID,
		PatientName: in.PatientName,
		PatientAge:  in.PatientAge,
		ReportText:  combinedSummary(radiologyOut, pathologyOut, clinicalOut),
		AdditionalContext: map[string]any{
			"radiology": radiologyOut,
			"pathology": pathologyOut,
			"clinical":  clinicalOut,
		},
	}
	wg.Add(1)
	go run(r.research, "research", researchCtx, &researchOut)
	wg.Wait()

	coordCtx, cancel := context.WithTimeout(ctx, r.agentTimeout)
	boardCase := r.coordinator.Synthesize(coordCtx, in.PatientID, in.PatientName, radiologyOut, pathologyOut, clinicalOut, researchOut)
	cancel()

	view := caseToView(boardCase, in.PatientAge, in.PatientGender, time.Since(started))
	view.Orchestration = r.orchestrationInfo(session)

	r.logger.Info("tumor board run complete",
		"patient_id", in.PatientID,
		"agents_used", len(view.AgentsUsed),
		"confidence", view.OverallConfidence,
		"elapsed", time.Since(started).Round(time.Millisecond))
	return view
}

func (r *Runner) agentContext(in RunInput, text, reportType string) *model.AgentContext {
	return &model.AgentContext{
		PatientID:     in.PatientID,
		PatientName:   in.PatientName,
		PatientAge:    in.PatientAge,
		PatientGender: in.PatientGender,
		ReportText:    text,
		ReportType:    reportType,
	}
}

// invoke runs one agent under the per-agent timeout, reporting start and
// completion to the orchestration session when one is active.
func (r *Runner) invoke(ctx context.Context, session *Session, agent Agent, key string, ac model.AgentContext) model.AgentOutput {
	agentCtx, cancel := context.WithTimeout(ctx, r.agentTimeout)
	defer cancel()

	session.AgentStarted(ctx, key, agent.Name())
	started := time.Now()
	out := agent.Analyze(agentCtx, ac)
	session.AgentFinished(ctx, key, agent.Name(), out, time.Since(started), agentCtx.Err())

	if !out.Success {
		r.logger.Warn("tumor board agent failed", "agent", agent.Name(), "error", deref(out.Error))
	}
	return out
}

// combinedSummary renders what phase 1 learned for the research agent:
// per-discipline summaries with the first findings of each.
func combinedSummary(radiology, pathology, clinical *model.AgentOutput) string {
	var parts []string

	section := func(label string, out *model.AgentOutput) {
		if out == nil || !out.Success {
			return
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, out.Summary))
		findings := out.Findings
		if len(findings) > 5 {
			findings = findings[:5]
		}
		for _, f := range findings {
			parts = append(parts, fmt.Sprintf("  - %s: %s", f.Name, f.Value))
		}
	}

	section("IMAGING", radiology)
	section("PATHOLOGY", pathology)
	section("CLINICAL", clinical)

	return strings.Join(parts, "\n")
}

// caseToView flattens a synthesized case into the presentation view the UI
// renders. Only successful agents contribute; the coordinator's confidence
// always becomes the view's overall confidence.
func caseToView(c Case, age, gender string, elapsed time.Duration) model.TumorBoardView {
	view := model.TumorBoardView{
		PatientID:         c.PatientID,
		PatientName:       valueOr(c.PatientName, "Unknown"),
		PatientAge:        optStr(age),
		PatientGender:     optStr(gender),
		CaseDate:          c.CaseDate,
		GeneratedAt:       time.Now().UTC().Format(time.RFC3339),
		OverallConfidence: "medium",
		Findings: model.ViewFindings{
			Imaging:    []model.TumorBoardFinding{},
			Pathology:  []model.TumorBoardFinding{},
			Clinical:   []model.TumorBoardFinding{},
			Biomarkers: []model.TumorBoardFinding{},
		},
		Recommendations: model.ViewRecommendations{
			Treatment: []model.TumorBoardRecommendation{},
			Imaging:   []model.TumorBoardRecommendation{},
			Other:     []model.TumorBoardRecommendation{},
		},
		ClinicalTrials:        []model.ClinicalTrial{},
		Warnings:              c.AllWarnings,
		Conflicts:             []model.Conflict{},
		ProcessingTimeSeconds: math.Round(elapsed.Seconds()*100) / 100,
		AgentsUsed:            []string{},
	}
	if c.Coordinator != nil {
		view.ExecutiveSummary = c.Coordinator.Summary
	}

	if c.Radiology != nil && c.Radiology.Success {
		view.AgentsUsed = append(view.AgentsUsed, c.Radiology.AgentName)
		for _, f := range c.Radiology.Findings {
			view.Findings.Imaging = append(view.Findings.Imaging, viewFinding(f, "radiology"))
		}
	}
	if c.Pathology != nil && c.Pathology.Success {
		view.AgentsUsed = append(view.AgentsUsed, c.Pathology.AgentName)
		for _, f := range c.Pathology.Findings {
			if f.Category == "biomarker" {
				view.Findings.Biomarkers = append(view.Findings.Biomarkers, viewFinding(f, "pathology"))
			} else {
				view.Findings.Pathology = append(view.Findings.Pathology, viewFinding(f, "pathology"))
			}
		}
	}
	if c.Clinical != nil && c.Clinical.Success {
		view.AgentsUsed = append(view.AgentsUsed, c.Clinical.AgentName)
		for _, f := range c.Clinical.Findings {
			view.Findings.Clinical = append(view.Findings.Clinical, viewFinding(f, "clinical"))
		}
	}
	if c.Research != nil && c.Research.Success {
		view.AgentsUsed = append(view.AgentsUsed, c.Research.AgentName)
		for _, rec := range c.Research.Recommendations {
			switch rec.Category {
			case "treatment":
				view.Recommendations.Treatment = append(view.Recommendations.Treatment, model.TumorBoardRecommendation{
					Category:      rec.Category,
					Text:          rec.Text,
					Priority:      string(rec.Priority),
					Rationale:     rec.Rationale,
					EvidenceLevel: rec.EvidenceLevel,
				})
			case "clinical_trial":
				view.ClinicalTrials = append(view.ClinicalTrials, model.ClinicalTrial{
					Name:        rec.Text,
					Source:      deref(rec.Source),
					Eligibility: deref(rec.Rationale),
				})
			default:
				view.Recommendations.Other = append(view.Recommendations.Other, model.TumorBoardRecommendation{
					Category:  rec.Category,
					Text:      rec.Text,
					Priority:  string(rec.Priority),
					Rationale: rec.Rationale,
				})
			}
		}
	}
	if c.Coordinator != nil {
		view.AgentsUsed = append(view.AgentsUsed, c.Coordinator.AgentName)
		view.OverallConfidence = string(c.Coordinator.Confidence)
		if len(c.Coordinator.Conflicts) > 0 {
			view.Conflicts = c.Coordinator.Conflicts
		}
		if c.Coordinator.Staging != nil {
			view.Staging = *c.Coordinator.Staging
		}
	}

	return view
}

func viewFinding(f model.SpecialistFinding, sourceAgent string) model.TumorBoardFinding {
	return model.TumorBoardFinding{
		Category:       f.Category,
		Title:          f.Name,
		Value:          f.Value,
		Severity:       string(f.Severity),
		SourceAgent:    sourceAgent,
		Interpretation: f.Interpretation,
	}
}

// orchestrationInfo describes how this run was supervised. The note rides
// along in stored views so reviewers can see reasoning never left the
// service.
func (r *Runner) orchestrationInfo(session *Session) *model.OrchestrationInfo {
	info := &model.OrchestrationInfo{
		Mode:           "local",
		GovernanceNote: "External orchestration provides scheduling and audit only. All medical reasoning is performed locally.",
	}
	if r.orch.Enabled() {
		info.Mode = "azure-ai-agent-service"
		info.AzureEnabled = true
	}
	if session != nil {
		res := session.Result()
		info.AzureStatus = &res.Status
		info.AgentsCompleted = res.AgentsCompleted
		info.AgentsFailed = res.AgentsFailed
	}
	return info
}
