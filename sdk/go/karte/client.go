package karte

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// userAgent identifies this SDK version to the server.
const userAgent = "karte-go/0.1.0"

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Karte server (e.g. "http://localhost:8080").
	BaseURL string

	// Email is the hospital account email used to obtain a JWT token.
	Email string

	// Password is the hospital account password.
	Password string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Karte clinical document AI API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL, Email, or Password is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("karte: BaseURL is required")
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("karte: Email is required")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("karte: Password is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  baseURL,
		client:   httpClient,
		tokenMgr: newTokenManager(baseURL, cfg.Email, cfg.Password, httpClient),
	}, nil
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// Signup registers a new hospital account. The returned token is installed
// on the client, so a fresh client can sign up and immediately call the API
// without a separate signin round trip.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.postNoAuth(ctx, "/v1/auth/signup", req, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken != "" {
		c.tokenMgr.seed(resp.AccessToken)
	}
	return &resp, nil
}

// Signin exchanges the configured credentials for a fresh token and returns
// the hospital profile. Calling it is optional; every API method obtains a
// token on demand.
func (c *Client) Signin(ctx context.Context) (*AuthResponse, error) {
	body := signinBody{Email: c.tokenMgr.email, Password: c.tokenMgr.password}
	var resp AuthResponse
	if err := c.postNoAuth(ctx, "/v1/auth/signin", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken != "" {
		c.tokenMgr.seed(resp.AccessToken)
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Patients
// ---------------------------------------------------------------------------

// CreatePatient registers a patient record.
func (c *Client) CreatePatient(ctx context.Context, req CreatePatientRequest) (*Patient, error) {
	var resp Patient
	if err := c.post(ctx, "/v1/patients", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PatientListOptions are optional filters for ListPatients.
type PatientListOptions struct {
	Status     string
	CancerType string
	Search     string
	Limit      int
	Offset     int
}

// ListPatients retrieves the hospital's patients, newest first.
func (c *Client) ListPatients(ctx context.Context, opts *PatientListOptions) (*PatientListResponse, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Status != "" {
			params.Set("status", opts.Status)
		}
		if opts.CancerType != "" {
			params.Set("cancerType", opts.CancerType)
		}
		if opts.Search != "" {
			params.Set("search", opts.Search)
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			params.Set("offset", strconv.Itoa(opts.Offset))
		}
	}

	path := "/v1/patients"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp PatientListResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPatient retrieves one patient with its reports and analysis history.
func (c *Client) GetPatient(ctx context.Context, id uuid.UUID) (*PatientDetailResponse, error) {
	var resp PatientDetailResponse
	if err := c.get(ctx, "/v1/patients/"+id.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdatePatient applies a partial update to a patient record.
func (c *Client) UpdatePatient(ctx context.Context, id uuid.UUID, req UpdatePatientRequest) (*Patient, error) {
	var resp Patient
	if err := c.patch(ctx, "/v1/patients/"+id.String(), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeletePatient removes a patient together with its reports, analysis jobs
// and cases. Returns nil on success (204 No Content).
func (c *Client) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return c.doDelete(ctx, "/v1/patients/"+id.String(), nil)
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

// UploadFile is one file to attach to an upload request.
type UploadFile struct {
	// Name is the file name shown in the dashboard (e.g. "ct-chest.pdf").
	Name string

	// Content is the file body. It is read once during the upload.
	Content io.Reader
}

// UploadReports uploads one or more report files for a patient under the
// given category ("imaging", "pathology", "lab" or "clinical").
func (c *Client) UploadReports(ctx context.Context, patientID uuid.UUID, category string, files ...UploadFile) (*UploadResponse, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("karte: at least one file is required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("category", category); err != nil {
		return nil, fmt.Errorf("karte: build multipart form: %w", err)
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("karte: build multipart form: %w", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("karte: read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("karte: build multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/patients/"+patientID.String()+"/reports", &buf)
	if err != nil {
		return nil, fmt.Errorf("karte: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp UploadResponse
	if err := c.doRequest(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListReports retrieves all reports uploaded for a patient.
func (c *Client) ListReports(ctx context.Context, patientID uuid.UUID) ([]Report, error) {
	var resp []Report
	if err := c.get(ctx, "/v1/patients/"+patientID.String()+"/reports", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RecentReports retrieves the hospital's latest uploads across all
// patients. A limit of 0 or less uses the server default of 10.
func (c *Client) RecentReports(ctx context.Context, limit int) ([]RecentUpload, error) {
	path := "/v1/reports/recent"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp []RecentUpload
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DownloadReport streams the stored file for a report. The caller must
// close the returned reader.
func (c *Client) DownloadReport(ctx context.Context, reportID uuid.UUID) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/reports/"+reportID.String()+"/download", nil)
	if err != nil {
		return nil, fmt.Errorf("karte: create request: %w", err)
	}

	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("karte: %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("karte: read response body: %w", err)
		}
		return nil, parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	return resp.Body, nil
}

// DeleteReport removes an uploaded report and its stored file.
func (c *Client) DeleteReport(ctx context.Context, reportID uuid.UUID) error {
	return c.doDelete(ctx, "/v1/reports/"+reportID.String(), nil)
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

// SubmitAnalysis queues an AI analysis over the patient's uploaded reports.
// When the patient has no reports, the returned status is "no_reports" and
// no job is queued.
func (c *Client) SubmitAnalysis(ctx context.Context, patientID uuid.UUID) (*JobStatusResponse, error) {
	var resp JobStatusResponse
	if err := c.post(ctx, "/v1/patients/"+patientID.String()+"/analysis", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PatientAnalysis retrieves the latest analysis status for a patient.
// Patients with no analysis history return status "idle".
func (c *Client) PatientAnalysis(ctx context.Context, patientID uuid.UUID) (*JobStatusResponse, error) {
	var resp JobStatusResponse
	if err := c.get(ctx, "/v1/patients/"+patientID.String()+"/analysis", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAnalysisJob retrieves one analysis job by its ID.
func (c *Client) GetAnalysisJob(ctx context.Context, jobID uuid.UUID) (*JobStatusResponse, error) {
	var resp JobStatusResponse
	if err := c.get(ctx, "/v1/analysis/"+jobID.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelAnalysis cancels the patient's active analysis job, if any.
func (c *Client) CancelAnalysis(ctx context.Context, patientID uuid.UUID) (*CancelAnalysisResponse, error) {
	var resp CancelAnalysisResponse
	if err := c.post(ctx, "/v1/patients/"+patientID.String()+"/analysis/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Tumor board cases
// ---------------------------------------------------------------------------

// CreateCase opens a tumor board case for a patient. The patient reference
// accepts either the row UUID or the hospital-assigned patient identifier.
func (c *Client) CreateCase(ctx context.Context, patientRef string) (*CaseResponse, error) {
	body := map[string]string{"patientId": patientRef}
	var resp CaseResponse
	if err := c.post(ctx, "/v1/cases", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CaseListOptions are optional filters for ListCases.
type CaseListOptions struct {
	Status string
	Limit  int
	Offset int
}

// ListCases retrieves the hospital's tumor board cases, newest first.
// Deleted cases never appear.
func (c *Client) ListCases(ctx context.Context, opts *CaseListOptions) ([]CaseResponse, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Status != "" {
			params.Set("status", opts.Status)
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			params.Set("offset", strconv.Itoa(opts.Offset))
		}
	}

	path := "/v1/cases"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp []CaseResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetCase retrieves one case with its patient.
func (c *Client) GetCase(ctx context.Context, id uuid.UUID) (*CaseResponse, error) {
	var resp CaseResponse
	if err := c.get(ctx, "/v1/cases/"+id.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateCase applies a partial update to the case's clinician fields.
func (c *Client) UpdateCase(ctx context.Context, id uuid.UUID, req UpdateCaseRequest) (*CaseResponse, error) {
	var resp CaseResponse
	if err := c.put(ctx, "/v1/cases/"+id.String(), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteCase soft-deletes a case. The row stays readable by ID but drops
// out of listings.
func (c *Client) DeleteCase(ctx context.Context, id uuid.UUID) (*CaseActionResponse, error) {
	var resp CaseActionResponse
	if err := c.doDelete(ctx, "/v1/cases/"+id.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitCase queues a case for the multi-agent tumor board run.
func (c *Client) SubmitCase(ctx context.Context, id uuid.UUID) (*CaseActionResponse, error) {
	var resp CaseActionResponse
	if err := c.post(ctx, "/v1/cases/"+id.String()+"/submit", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetryCase requeues a failed case.
func (c *Client) RetryCase(ctx context.Context, id uuid.UUID) (*CaseActionResponse, error) {
	var resp CaseActionResponse
	if err := c.post(ctx, "/v1/cases/"+id.String()+"/retry", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelCase stops a queued or running case.
func (c *Client) CancelCase(ctx context.Context, id uuid.UUID) (*CaseActionResponse, error) {
	var resp CaseActionResponse
	if err := c.post(ctx, "/v1/cases/"+id.String()+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CaseStatus retrieves the case's progress snapshot. It is cheap enough
// to poll while a run is in flight.
func (c *Client) CaseStatus(ctx context.Context, id uuid.UUID) (*CaseStatusResponse, error) {
	var resp CaseStatusResponse
	if err := c.get(ctx, "/v1/cases/"+id.String()+"/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CaseAIView retrieves the stored tumor board view for a case. Cases
// whose run has not completed return status "no_data" and a message.
func (c *Client) CaseAIView(ctx context.Context, id uuid.UUID) (*CaseViewResponse, error) {
	var resp CaseViewResponse
	if err := c.get(ctx, "/v1/cases/"+id.String()+"/ai-view", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Activity and health
// ---------------------------------------------------------------------------

// ActivityOptions are optional filters for ListActivity.
type ActivityOptions struct {
	Action     string
	EntityType string
	Limit      int
	Offset     int
}

// ListActivity retrieves the hospital's audit trail, newest first.
func (c *Client) ListActivity(ctx context.Context, opts *ActivityOptions) (*ActivityListResponse, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Action != "" {
			params.Set("action", opts.Action)
		}
		if opts.EntityType != "" {
			params.Set("entityType", opts.EntityType)
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			params.Set("offset", strconv.Itoa(opts.Offset))
		}
	}

	path := "/v1/activity"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp ActivityListResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDashboardStats retrieves the dashboard counters and recent activity.
func (c *Client) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	var resp DashboardStats
	if err := c.get(ctx, "/v1/activity/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has invalid credentials.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.getNoAuth(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("karte: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("karte: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("karte: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) put(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("karte: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("karte: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) patch(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("karte: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("karte: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("karte: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) postNoAuth(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("karte: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("karte: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("karte: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func (c *Client) getNoAuth(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("karte: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("karte: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("karte: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("karte: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content — nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("karte: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.RequestID = envelope.Meta.RequestID
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
