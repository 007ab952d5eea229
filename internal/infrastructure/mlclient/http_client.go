package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bp_client/internal/domain/model"
)

const (
	// DefaultBaseURL is where the prediction service listens by default.
	DefaultBaseURL = "http://127.0.0.1:5000"

	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20

	opPredict = "predict"
	opAddData = "add_data"
	opRetrain = "retrain"
)

// HTTPPredictionClient talks to the prediction service over its JSON API.
// It holds no state besides its configuration and is safe for concurrent use.
type HTTPPredictionClient struct {
	baseURL string
	client  *http.Client
}

// Option configures an HTTPPredictionClient.
type Option func(*HTTPPredictionClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPPredictionClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the per-request timeout. The caller's http.Client is
// copied, never modified.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPPredictionClient) {
		cp := *c.client
		cp.Timeout = timeout
		if cp.CheckRedirect == nil {
			cp.CheckRedirect = noRedirect
		}
		c.client = &cp
	}
}

// noRedirect hands a 3xx back to the caller instead of issuing a second request.
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func NewHTTPPredictionClient(baseURL string, opts ...Option) *HTTPPredictionClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPPredictionClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:       defaultTimeout,
			CheckRedirect: noRedirect,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured service root.
func (c *HTTPPredictionClient) BaseURL() string {
	return c.baseURL
}

type predictRequest struct {
	Workday      float64 `json:"workday"`
	StressLevels float64 `json:"stress_levels"`
	SleepQuality float64 `json:"sleep_quality"`
	Tiredness    float64 `json:"tiredness"`
}

type predictResponse struct {
	UpperBP *float64 `json:"Upper_BP"`
	LowerBP *float64 `json:"Lower_BP"`
}

type trainingRow struct {
	Workday      float64 `json:"Workday"`
	StressLevels float64 `json:"Stress_Levels"`
	UpperBP      float64 `json:"Upper_BP"`
	LowerBP      float64 `json:"Lower_BP"`
	SleepQuality float64 `json:"Sleep_Quality"`
	Tiredness    float64 `json:"Tiredness"`
}

type outcomeResponse struct {
	Message *string `json:"message"`
	Error   *string `json:"error"`
}

// Predict sends the features to /predict and returns the predicted pressure.
func (c *HTTPPredictionClient) Predict(ctx context.Context, input model.PredictionInput) (*model.PredictionResult, error) {
	if err := model.Validate(input); err != nil {
		return nil, &InvalidInputError{Op: opPredict, Err: err}
	}

	status, body, err := c.post(ctx, opPredict, "/predict", predictRequest{
		Workday:      input.Workday,
		StressLevels: input.StressLevels,
		SleepQuality: input.SleepQuality,
		Tiredness:    input.Tiredness,
	})
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, newStatusError(opPredict, status, body)
	}

	var resp predictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &MalformedResponseError{Op: opPredict, Reason: "cannot decode body", Err: err}
	}
	if resp.UpperBP == nil {
		return nil, &MalformedResponseError{Op: opPredict, Reason: "missing numeric Upper_BP"}
	}
	if resp.LowerBP == nil {
		return nil, &MalformedResponseError{Op: opPredict, Reason: "missing numeric Lower_BP"}
	}

	return &model.PredictionResult{
		UpperBP: *resp.UpperBP,
		LowerBP: *resp.LowerBP,
	}, nil
}

// AddData appends labeled records to the service's training set.
// A rejection by the service comes back as an outcome with Error set.
func (c *HTTPPredictionClient) AddData(ctx context.Context, records []model.TrainingRecord) (*model.OperationOutcome, error) {
	if len(records) == 0 {
		return nil, &InvalidInputError{Op: opAddData, Err: errors.New("at least one record is required")}
	}

	rows := make([]trainingRow, 0, len(records))
	for i, r := range records {
		if err := model.Validate(r); err != nil {
			return nil, &InvalidInputError{Op: opAddData, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		rows = append(rows, trainingRow{
			Workday:      r.Workday,
			StressLevels: r.StressLevels,
			UpperBP:      r.UpperBP,
			LowerBP:      r.LowerBP,
			SleepQuality: r.SleepQuality,
			Tiredness:    r.Tiredness,
		})
	}

	status, body, err := c.post(ctx, opAddData, "/add_data", rows)
	if err != nil {
		return nil, err
	}
	return decodeOutcome(opAddData, status, body)
}

// Retrain asks the service to rebuild its model. The request has no body.
func (c *HTTPPredictionClient) Retrain(ctx context.Context) (*model.OperationOutcome, error) {
	status, body, err := c.post(ctx, opRetrain, "/retrain", nil)
	if err != nil {
		return nil, err
	}
	return decodeOutcome(opRetrain, status, body)
}

// post performs exactly one request and returns the status and raw body.
func (c *HTTPPredictionClient) post(ctx context.Context, op, path string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, &InvalidInputError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return 0, nil, &NetworkError{Op: op, URL: url, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if len(body) > maxResponseBytes {
		return 0, nil, &MalformedResponseError{Op: op, Reason: "response body too large"}
	}
	return resp.StatusCode, body, nil
}

func decodeOutcome(op string, status int, body []byte) (*model.OperationOutcome, error) {
	var env outcomeResponse
	decodeErr := json.Unmarshal(body, &env)

	if !isSuccess(status) {
		// the service reports rejected data with 400/500 and an error envelope
		if decodeErr == nil && env.Error != nil && *env.Error != "" {
			return &model.OperationOutcome{Error: *env.Error}, nil
		}
		return nil, newStatusError(op, status, body)
	}

	if decodeErr != nil {
		return nil, &MalformedResponseError{Op: op, Reason: "cannot decode body", Err: decodeErr}
	}
	if env.Message == nil && env.Error == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "missing message or error"}
	}

	outcome := &model.OperationOutcome{}
	if env.Message != nil {
		outcome.Message = *env.Message
	}
	if env.Error != nil {
		outcome.Error = *env.Error
	}
	return outcome, nil
}

func newStatusError(op string, status int, body []byte) *StatusError {
	statusErr := &StatusError{Op: op, StatusCode: status}
	var env outcomeResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		statusErr.Message = *env.Error
	}
	return statusErr
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
