package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/models"
)

// Client is the HTTP client the CLI uses against the engine API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	return resp, nil
}

func decodeOrError(resp *http.Response, wantStatus int, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected response: %s (status: %d)", string(body), resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck verifies the API is reachable
func (c *Client) HealthCheck() error {
	resp, err := c.doRequest("GET", "/health", nil)
	if err != nil {
		return err
	}
	return decodeOrError(resp, http.StatusOK, nil)
}

// CreateWorkflow creates a new workflow
func (c *Client) CreateWorkflow(req *models.CreateWorkflowRequest) (*models.Workflow, error) {
	resp, err := c.doRequest("POST", "/api/v1/workflows", req)
	if err != nil {
		return nil, err
	}

	var workflow models.Workflow
	if err := decodeOrError(resp, http.StatusCreated, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// workflowListResponse mirrors the list endpoint payload
type workflowListResponse struct {
	Workflows []models.Workflow `json:"workflows"`
	Total     int64             `json:"total"`
}

// GetWorkflows retrieves workflows
func (c *Client) GetWorkflows() ([]models.Workflow, error) {
	resp, err := c.doRequest("GET", "/api/v1/workflows?page_size=100", nil)
	if err != nil {
		return nil, err
	}

	var list workflowListResponse
	if err := decodeOrError(resp, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return list.Workflows, nil
}

// TriggerMutation submits a mutation event for trigger detection
func (c *Client) TriggerMutation(event *models.MutationEvent) (*engine.DetectResult, error) {
	resp, err := c.doRequest("POST", "/api/v1/mutations", event)
	if err != nil {
		return nil, err
	}

	var result engine.DetectResult
	if err := decodeOrError(resp, http.StatusAccepted, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetExecutions retrieves execution logs, optionally filtered by status
func (c *Client) GetExecutions(status string) ([]models.ExecutionLog, error) {
	path := "/api/v1/executions?page_size=100"
	if status != "" {
		path += "&status=" + status
	}

	resp, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var list models.ExecutionListResponse
	if err := decodeOrError(resp, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return list.Executions, nil
}

// Sweep triggers one retry sweep
func (c *Client) Sweep() (*engine.SweepResult, error) {
	resp, err := c.doRequest("POST", "/api/v1/retries/sweep", nil)
	if err != nil {
		return nil, err
	}

	var result engine.SweepResult
	if err := decodeOrError(resp, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DispatchPending triggers a batch dispatch of pending executions
func (c *Client) DispatchPending() (int, error) {
	resp, err := c.doRequest("POST", "/api/v1/dispatch", nil)
	if err != nil {
		return 0, err
	}

	var result map[string]int
	if err := decodeOrError(resp, http.StatusOK, &result); err != nil {
		return 0, err
	}
	return result["dispatched"], nil
}
