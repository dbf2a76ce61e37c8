package storage_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
	"github.com/chartmed-ai/karte/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func newHospital(t *testing.T) model.Hospital {
	t.Helper()
	suffix := uuid.NewString()[:8]
	h, err := testDB.CreateHospital(context.Background(), model.Hospital{
		Name:               "St. Demo General " + suffix,
		Email:              suffix + "@example.org",
		PasswordHash:       "argon2id$stub",
		RegistrationNumber: "REG-" + suffix,
	})
	require.NoError(t, err)
	return h
}

func newPatient(t *testing.T, hospitalID uuid.UUID) model.Patient {
	t.Helper()
	suffix := uuid.NewString()[:8]
	p, err := testDB.CreatePatient(context.Background(), model.Patient{
		PatientID:  "PT-" + suffix,
		Name:       "Taro Yamada " + suffix,
		HospitalID: hospitalID,
	})
	require.NoError(t, err)
	return p
}

// ---- hospitals ----

func TestCreateHospital_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)

	_, err := testDB.CreateHospital(ctx, model.Hospital{
		Name:               "Other",
		Email:              h.Email,
		PasswordHash:       "x",
		RegistrationNumber: "REG-" + uuid.NewString()[:8],
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateEmail)
}

func TestCreateHospital_DuplicateRegistrationNumber(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)

	_, err := testDB.CreateHospital(ctx, model.Hospital{
		Name:               "Other",
		Email:              uuid.NewString()[:8] + "@example.org",
		PasswordHash:       "x",
		RegistrationNumber: h.RegistrationNumber,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateRegistrationNumber)
}

func TestGetHospitalByEmail_NormalizesCase(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)

	got, err := testDB.GetHospitalByEmail(ctx, "  "+h.Email+" ")
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)

	_, err = testDB.GetHospitalByEmail(ctx, "nobody@example.org")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// ---- patients ----

func TestCreatePatient_DuplicateIDWithinHospital(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	_, err := testDB.CreatePatient(ctx, model.Patient{
		PatientID:  p.PatientID,
		Name:       "Duplicate",
		HospitalID: h.ID,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicatePatientID)

	// The same identifier is fine under a different hospital.
	other := newHospital(t)
	_, err = testDB.CreatePatient(ctx, model.Patient{
		PatientID:  p.PatientID,
		Name:       "Other Hospital Patient",
		HospitalID: other.ID,
	})
	assert.NoError(t, err)
}

func TestFindPatient_ByRowIDAndByRef(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	byRow, err := testDB.FindPatient(ctx, h.ID, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, p.ID, byRow.ID)

	byRef, err := testDB.FindPatient(ctx, h.ID, p.PatientID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byRef.ID)

	// Another hospital cannot resolve it either way.
	other := newHospital(t)
	_, err = testDB.FindPatient(ctx, other.ID, p.ID.String())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListPatients_SearchAndStatusFilter(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)

	alpha, err := testDB.CreatePatient(ctx, model.Patient{
		PatientID: "SRCH-001", Name: "Hanako Suzuki", HospitalID: h.ID,
	})
	require.NoError(t, err)
	_, err = testDB.CreatePatient(ctx, model.Patient{
		PatientID: "SRCH-002", Name: "Jiro Tanaka", Status: model.PatientStatusRemission, HospitalID: h.ID,
	})
	require.NoError(t, err)

	byName, total, err := testDB.ListPatients(ctx, h.ID, storage.PatientFilter{Search: "suzuki"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, byName, 1)
	assert.Equal(t, alpha.ID, byName[0].ID)

	byRef, _, err := testDB.ListPatients(ctx, h.ID, storage.PatientFilter{Search: "SRCH-"})
	require.NoError(t, err)
	assert.Len(t, byRef, 2)

	remission, _, err := testDB.ListPatients(ctx, h.ID, storage.PatientFilter{Status: model.PatientStatusRemission})
	require.NoError(t, err)
	require.Len(t, remission, 1)
	assert.Equal(t, "Jiro Tanaka", remission[0].Name)
}

func TestDeletePatient_CascadesToReportsAndJobs(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	r, err := testDB.CreateReport(ctx, model.Report{
		FileName: "ct.pdf", FilePath: "/tmp/ct.pdf", FileSize: 10, FileType: "PDF",
		Category: model.ReportCategoryImaging, PatientID: p.ID,
	})
	require.NoError(t, err)
	_, err = testDB.CreateAnalysisJob(ctx, model.AnalysisJob{PatientID: p.ID, HospitalID: h.ID, ReportCount: 1})
	require.NoError(t, err)

	require.NoError(t, testDB.DeletePatient(ctx, h.ID, p.ID))

	_, err = testDB.GetReport(ctx, h.ID, r.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = testDB.LatestJobByPatient(ctx, p.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// ---- reports ----

func TestGetReport_ScopedToHospital(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	r, err := testDB.CreateReport(ctx, model.Report{
		FileName: "labs.pdf", FilePath: "/tmp/labs.pdf", FileSize: 42, FileType: "PDF",
		Category: model.ReportCategoryLab, PatientID: p.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", r.Status)

	got, err := testDB.GetReport(ctx, h.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "labs.pdf", got.FileName)

	other := newHospital(t)
	_, err = testDB.GetReport(ctx, other.ID, r.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecentReports_JoinsPatientAndOrders(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	for _, name := range []string{"first.pdf", "second.png"} {
		_, err := testDB.CreateReport(ctx, model.Report{
			FileName: name, FilePath: "/tmp/" + name, FileSize: 1, FileType: "PDF",
			Category: model.ReportCategoryClinical, PatientID: p.ID,
		})
		require.NoError(t, err)
	}

	recent, err := testDB.RecentReports(ctx, h.ID, 5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second.png", recent[0].FileName)
	assert.Equal(t, p.Name, recent[0].PatientName)
	assert.Equal(t, p.PatientID, recent[0].PatientRef)
}

// ---- analysis jobs ----

func TestClaimQueuedJob_OldestFirstThenEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	first, err := testDB.CreateAnalysisJob(ctx, model.AnalysisJob{PatientID: p.ID, HospitalID: h.ID, ReportCount: 2})
	require.NoError(t, err)
	second, err := testDB.CreateAnalysisJob(ctx, model.AnalysisJob{PatientID: p.ID, HospitalID: h.ID, ReportCount: 1})
	require.NoError(t, err)

	claimed1, err := testDB.ClaimQueuedJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, claimed1.ID)
	assert.Equal(t, model.JobStatusProcessing, claimed1.Status)
	require.NotNil(t, claimed1.StartedAt)

	claimed2, err := testDB.ClaimQueuedJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed2.ID)

	_, err = testDB.ClaimQueuedJob(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Settle both so later claim tests start from an empty queue.
	require.NoError(t, testDB.CompleteJob(ctx, claimed1.ID, json.RawMessage(`{}`)))
	require.NoError(t, testDB.FailJob(ctx, claimed2.ID, "boom"))
}

func TestCompleteJob_GuardRejectsCancelledRow(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	job, err := testDB.CreateAnalysisJob(ctx, model.AnalysisJob{PatientID: p.ID, HospitalID: h.ID, ReportCount: 1})
	require.NoError(t, err)

	claimed, err := testDB.ClaimQueuedJob(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)

	// Cancellation lands while the worker is still running.
	n, err := testDB.CancelJobsByPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	err = testDB.CompleteJob(ctx, job.ID, json.RawMessage(`{"results": []}`))
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	got, err := testDB.GetJob(ctx, h.ID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, got.Status)
	assert.Nil(t, got.Result)
}

func TestLatestCompletedJobByPatient(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	_, err := testDB.CreateAnalysisJob(ctx, model.AnalysisJob{PatientID: p.ID, HospitalID: h.ID, ReportCount: 1})
	require.NoError(t, err)
	claimed, err := testDB.ClaimQueuedJob(ctx)
	require.NoError(t, err)
	require.NoError(t, testDB.CompleteJob(ctx, claimed.ID, json.RawMessage(`{"patient_name": "Taro"}`)))

	// A newer queued job must not shadow the completed result.
	_, err = testDB.CreateAnalysisJob(ctx, model.AnalysisJob{PatientID: p.ID, HospitalID: h.ID, ReportCount: 1})
	require.NoError(t, err)

	latest, err := testDB.LatestCompletedJobByPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, latest.ID)
	assert.JSONEq(t, `{"patient_name": "Taro"}`, string(latest.Result))

	// Drain the queued leftover.
	leftover, err := testDB.ClaimQueuedJob(ctx)
	require.NoError(t, err)
	require.NoError(t, testDB.FailJob(ctx, leftover.ID, "cleanup"))
}

func TestFailJob_StoresErrorPayload(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	_, err := testDB.CreateAnalysisJob(ctx, model.AnalysisJob{PatientID: p.ID, HospitalID: h.ID, ReportCount: 1})
	require.NoError(t, err)
	claimed, err := testDB.ClaimQueuedJob(ctx)
	require.NoError(t, err)

	require.NoError(t, testDB.FailJob(ctx, claimed.ID, "LLM analysis failed: boom"))

	got, err := testDB.GetJob(ctx, h.ID, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "LLM analysis failed: boom", *got.ErrorMessage)
	assert.JSONEq(t, `{"error": "LLM analysis failed: boom"}`, string(got.Result))
	require.NotNil(t, got.CompletedAt)
}

// ---- tumor board cases ----

func TestCaseLifecycle_SubmitClaimProgressComplete(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	c, err := testDB.CreateCase(ctx, model.BoardCase{PatientID: p.ID, HospitalID: h.ID})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDraft, c.Status)

	require.NoError(t, testDB.SubmitCase(ctx, c.ID))
	queued, err := testDB.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, queued.Status)
	require.NotNil(t, queued.ProgressMessage)
	assert.Equal(t, "Waiting in queue...", *queued.ProgressMessage)

	// Submitting again is rejected: already queued.
	assert.ErrorIs(t, testDB.SubmitCase(ctx, c.ID), storage.ErrInvalidTransition)

	claimed, err := testDB.ClaimQueuedCase(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.ID, claimed.ID)
	assert.Equal(t, model.JobStatusProcessing, claimed.Status)
	require.NotNil(t, claimed.ProcessingStartedAt)

	require.NoError(t, testDB.UpdateCaseProgress(ctx, c.ID, 35, "Running AI analysis on medical data..."))
	require.NoError(t, testDB.CompleteCase(ctx, c.ID, json.RawMessage(`{"patient_id": "PT-1"}`), "Summary text"))

	done, err := testDB.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.ProgressPercent)
	assert.True(t, done.HasAIData())
	require.NotNil(t, done.AISummary)
	assert.Equal(t, "Summary text", *done.AISummary)
}

func TestCancelCase_StopsWorkerProgress(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	c, err := testDB.CreateCase(ctx, model.BoardCase{PatientID: p.ID, HospitalID: h.ID})
	require.NoError(t, err)
	require.NoError(t, testDB.SubmitCase(ctx, c.ID))

	claimed, err := testDB.ClaimQueuedCase(ctx)
	require.NoError(t, err)
	require.Equal(t, c.ID, claimed.ID)

	require.NoError(t, testDB.CancelCase(ctx, c.ID))

	// The worker's next progress write misses and reports the transition.
	err = testDB.UpdateCaseProgress(ctx, c.ID, 50, "AI analysis complete. Running specialized agents...")
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	got, err := testDB.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, got.Status)
	require.NotNil(t, got.ProgressMessage)
	assert.Equal(t, "Cancelled by user", *got.ProgressMessage)
	require.NotNil(t, got.ProcessingCompletedAt)
}

func TestRetryCase_OnlyFromFailed(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	c, err := testDB.CreateCase(ctx, model.BoardCase{PatientID: p.ID, HospitalID: h.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, testDB.RetryCase(ctx, c.ID), storage.ErrInvalidTransition)

	require.NoError(t, testDB.SubmitCase(ctx, c.ID))
	claimed, err := testDB.ClaimQueuedCase(ctx)
	require.NoError(t, err)
	require.NoError(t, testDB.FailCase(ctx, claimed.ID, "No AI analysis data found for this patient"))

	failed, err := testDB.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, failed.Status)
	assert.Nil(t, failed.ProgressMessage)
	require.NotNil(t, failed.ErrorMessage)

	require.NoError(t, testDB.RetryCase(ctx, c.ID))
	retried, err := testDB.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, retried.Status)
	assert.Nil(t, retried.ErrorMessage)
	require.NotNil(t, retried.ProgressMessage)
	assert.Equal(t, "Retrying... Waiting in queue", *retried.ProgressMessage)

	// Drain so other claim tests see an empty queue.
	drained, err := testDB.ClaimQueuedCase(ctx)
	require.NoError(t, err)
	require.NoError(t, testDB.FailCase(ctx, drained.ID, "cleanup"))
}

func TestListCases_ExcludesDeleted(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	kept, err := testDB.CreateCase(ctx, model.BoardCase{PatientID: p.ID, HospitalID: h.ID})
	require.NoError(t, err)
	gone, err := testDB.CreateCase(ctx, model.BoardCase{PatientID: p.ID, HospitalID: h.ID})
	require.NoError(t, err)

	require.NoError(t, testDB.SoftDeleteCase(ctx, gone.ID, "Hospital Staff"))
	assert.ErrorIs(t, testDB.SoftDeleteCase(ctx, gone.ID, "Hospital Staff"), storage.ErrInvalidTransition)

	listed, err := testDB.ListCases(ctx, h.ID, "", 50, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, kept.ID, listed[0].BoardCase.ID)
	assert.Equal(t, p.Name, listed[0].Patient.Name)

	// Explicit filter can still surface deleted rows.
	deleted, err := testDB.ListCases(ctx, h.ID, "deleted", 50, 0)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	require.NotNil(t, deleted[0].BoardCase.DeletedBy)
	assert.Equal(t, "Hospital Staff", *deleted[0].BoardCase.DeletedBy)
}

// ---- activity ----

func TestActivityAndDashboardStats(t *testing.T) {
	ctx := context.Background()
	h := newHospital(t)
	p := newPatient(t, h.ID)

	entityID := p.ID.String()
	staff := "Hospital Staff"
	require.NoError(t, testDB.InsertActivity(ctx, model.ActivityEntry{
		HospitalID:  h.ID,
		Action:      model.ActionPatientAdd,
		EntityType:  "patient",
		EntityID:    &entityID,
		Description: "Added new patient: " + p.Name + " (" + p.PatientID + ")",
		PerformedBy: &staff,
	}))

	entries, total, err := testDB.ListActivity(ctx, h.ID, storage.ActivityFilter{Action: model.ActionPatientAdd})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Description, p.PatientID)

	none, total, err := testDB.ListActivity(ctx, h.ID, storage.ActivityFilter{Action: model.ActionTumorBoardDelete})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)

	stats, err := testDB.DashboardStats(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalPatients)
	assert.Zero(t, stats.TotalReports)
	require.NotEmpty(t, stats.RecentActivity)
	assert.Equal(t, model.ActionPatientAdd, stats.RecentActivity[0].Action)
}
