// internal/clients/api_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"unilib/internal/attendance"
	"unilib/internal/circulation"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// APIClient talks to the unilib HTTP API with a bearer token.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Login exchanges manager credentials for a session token and keeps it for
// later calls.
func (c *APIClient) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return "", err
	}
	c.token = resp.Token
	return resp.Token, nil
}

func (c *APIClient) RecordPresence(ctx context.Context, matricule string) (*attendance.Presence, error) {
	var resp struct {
		Data attendance.Presence `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/presence", map[string]string{"matricule": matricule}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *APIClient) CreateLoan(ctx context.Context, in circulation.CreateLoanInput) (*circulation.LoanSummary, error) {
	var resp struct {
		Data circulation.LoanSummary `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/loans", in, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ReturnLoan closes a loan and returns the server's confirmation message.
func (c *APIClient) ReturnLoan(ctx context.Context, id uuid.UUID, in circulation.ReturnLoanInput) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/loans/"+id.String()+"/return", in, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *APIClient) ListLoans(ctx context.Context, filter circulation.LoanFilter, page, perPage int) (*circulation.LoanPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("perPage", strconv.Itoa(perPage))
	}
	if filter.Status != "" {
		q.Set("statut", filter.Status)
	}
	if filter.Student != "" {
		q.Set("nom", filter.Student)
	}
	if filter.Day != "" {
		q.Set("date", filter.Day)
	}

	var resp circulation.LoanPage
	if err := c.do(ctx, http.MethodGet, "/api/loans/all?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
