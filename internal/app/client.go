package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ExecutorAPI is everything the controller needs from the remote services:
// session creation on the execution agent, PR creation on the healing server
// and the read-only repository listing.
type ExecutorAPI interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (string, error)
	CreatePR(ctx context.Context, req CreatePRRequest) (PRResult, error)
	ListRepos(ctx context.Context) ([]Repository, error)
}

type CreateSessionRequest struct {
	RepoURL  string `validate:"required,url"`
	Language string `validate:"required"`
	UserID   string
}

type CreatePRRequest struct {
	RepoFullName string `json:"repo_full_name" validate:"required"`
	BranchName   string `json:"branch_name" validate:"required"`
	BaseBranch   string `json:"base_branch" validate:"required"`
	Title        string `json:"title" validate:"required"`
	Body         string `json:"body"`
	GithubToken  string `json:"github_token" validate:"required"`
}

// ExecutorClient talks JSON over HTTP to the external collaborators.
type ExecutorClient struct {
	AgentURL  string
	ServerURL string
	ProxyURL  string

	httpClient *http.Client
	validate   *validator.Validate
	logger     *Logger
}

func NewExecutorClient(agentURL, serverURL, proxyURL string, logger *Logger) *ExecutorClient {
	return &ExecutorClient{
		AgentURL:   strings.TrimRight(agentURL, "/"),
		ServerURL:  strings.TrimRight(serverURL, "/"),
		ProxyURL:   strings.TrimRight(proxyURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		validate:   validator.New(),
		logger:     logger,
	}
}

// CreateSession asks the execution agent to clone the repository. The agent
// takes its parameters as query values and answers 201 with a session id.
func (c *ExecutorClient) CreateSession(ctx context.Context, req CreateSessionRequest) (string, error) {
	if err := c.validate.Struct(req); err != nil {
		return "", fmt.Errorf("invalid session request: %w", err)
	}

	q := url.Values{}
	q.Set("repo_url", req.RepoURL)
	q.Set("language", req.Language)
	if req.UserID != "" {
		q.Set("user_id", req.UserID)
	}
	endpoint := c.AgentURL + "/sessions?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("create session: %s", readErrorBody(resp))
	}

	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("create session: malformed response: %w", err)
	}
	if payload.SessionID == "" {
		return "", fmt.Errorf("create session: response missing session_id")
	}
	if c.logger != nil {
		c.logger.Info("session created", map[string]interface{}{"session_id": payload.SessionID})
	}
	return payload.SessionID, nil
}

// CreatePR asks the healing server to open the pull request. A response with
// success=false carries a user-facing message and is surfaced verbatim.
func (c *ExecutorClient) CreatePR(ctx context.Context, req CreatePRRequest) (PRResult, error) {
	if err := c.validate.Struct(req); err != nil {
		return PRResult{}, fmt.Errorf("invalid PR request: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return PRResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServerURL+"/pr", bytes.NewReader(body))
	if err != nil {
		return PRResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return PRResult{}, fmt.Errorf("create pr: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return PRResult{}, fmt.Errorf("create pr: %s", readErrorBody(resp))
	}

	var payload struct {
		Success bool   `json:"success"`
		PRURL   string `json:"pr_url"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PRResult{}, fmt.Errorf("create pr: malformed response: %w", err)
	}
	if !payload.Success {
		msg := payload.Message
		if msg == "" {
			msg = "pull request creation was rejected"
		}
		return PRResult{}, fmt.Errorf("%s", truncateMessage(msg, 500))
	}
	return PRResult{URL: payload.PRURL, RepoName: req.RepoFullName}, nil
}

// ListRepos fetches the repository descriptors for the picker.
func (c *ExecutorClient) ListRepos(ctx context.Context) ([]Repository, error) {
	if c.ProxyURL == "" {
		return nil, nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ProxyURL+"/repos", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("list repos: %s", readErrorBody(resp))
	}
	var repos []Repository
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, fmt.Errorf("list repos: malformed response: %w", err)
	}
	return repos, nil
}

// readErrorBody extracts a human-readable message from an HTTP error
// response. FastAPI-style bodies carry {"detail": ...}.
func readErrorBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Detail != "" {
			return truncateMessage(payload.Detail, 500)
		}
		if payload.Message != "" {
			return truncateMessage(payload.Message, 500)
		}
	}
	if len(data) > 0 {
		return fmt.Sprintf("%s: %s", resp.Status, truncateMessage(string(data), 200))
	}
	return resp.Status
}

func truncateMessage(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
