package mlclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"bp_client/internal/domain/model"
)

var _ model.PredictionClient = (*HTTPPredictionClient)(nil)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPPredictionClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, NewHTTPPredictionClient(server.URL)
}

func TestNewHTTPPredictionClientDefaults(t *testing.T) {
	c := NewHTTPPredictionClient("")
	if c.BaseURL() != DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", c.BaseURL())
	}
	c = NewHTTPPredictionClient("http://example.com:5000/")
	if c.BaseURL() != "http://example.com:5000" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.BaseURL())
	}
}

func TestWithTimeoutDoesNotModifyCallerClient(t *testing.T) {
	shared := &http.Client{}
	c := NewHTTPPredictionClient("", WithHTTPClient(shared), WithTimeout(3))
	if shared.Timeout != 0 {
		t.Fatalf("caller client was modified: %v", shared.Timeout)
	}
	if c.client.Timeout != 3 {
		t.Fatalf("expected timeout applied, got %v", c.client.Timeout)
	}
}

func TestPredict(t *testing.T) {
	bodies := make(chan map[string]interface{}, 1)
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		var got map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		bodies <- got
		w.Write([]byte(`{"Upper_BP": 128.4, "Lower_BP": 82.1}`))
	})

	result, err := c.Predict(context.Background(), model.PredictionInput{
		Workday:      1,
		StressLevels: 5,
		SleepQuality: 7,
		Tiredness:    3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.UpperBP != 128.4 || result.LowerBP != 82.1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	got := <-bodies
	want := map[string]float64{"workday": 1, "stress_levels": 5, "sleep_quality": 7, "tiredness": 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("key %s: expected %v, got %v", k, v, got[k])
		}
	}
}

func TestPredictPreservesPrecision(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Upper_BP": 0.1234567890123456789, "Lower_BP": 1e-300}`))
	})

	result, err := c.Predict(context.Background(), model.PredictionInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.UpperBP != 0.1234567890123456789 || result.LowerBP != 1e-300 {
		t.Fatalf("precision lost: %+v", result)
	}
}

func TestPredictMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"missing fields": `{"not_upper_bp": 1}`,
		"missing lower":  `{"Upper_BP": 120}`,
		"string value":   `{"Upper_BP": "120", "Lower_BP": 80}`,
		"null value":     `{"Upper_BP": null, "Lower_BP": 80}`,
		"not json":       `<html>oops</html>`,
		"empty body":     ``,
		"array body":     `[120, 80]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			_, err := c.Predict(context.Background(), model.PredictionInput{})
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected malformed response error, got %v", err)
			}
			var malformed *MalformedResponseError
			if !errors.As(err, &malformed) || malformed.Op != opPredict {
				t.Fatalf("expected *MalformedResponseError for predict, got %T", err)
			}
		})
	}
}

func TestPredictRejectsNonFiniteInput(t *testing.T) {
	var hits int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})

	inputs := []model.PredictionInput{
		{Workday: math.NaN()},
		{StressLevels: math.Inf(1)},
		{Tiredness: math.Inf(-1)},
	}
	for _, in := range inputs {
		if _, err := c.Predict(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input error, got %v", err)
		}
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestPredictStatusError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "model not trained"}`))
	})

	_, err := c.Predict(context.Background(), model.PredictionInput{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError || statusErr.Message != "model not trained" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
	if !errors.Is(err, ErrNetwork) {
		t.Fatal("status error should match ErrNetwork")
	}
}

func TestAddData(t *testing.T) {
	bodies := make(chan []map[string]interface{}, 1)
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/add_data" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var got []map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		bodies <- got
		w.Write([]byte(`{"message":"1 record added"}`))
	})

	outcome, err := c.AddData(context.Background(), []model.TrainingRecord{{
		Workday:      1,
		StressLevels: 4,
		UpperBP:      130,
		LowerBP:      85,
		SleepQuality: 6,
		Tiredness:    2,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Message != "1 record added" || outcome.Failed() {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	got := <-bodies
	if len(got) != 1 {
		t.Fatalf("expected 1 element, got %d", len(got))
	}
	want := map[string]float64{
		"Workday": 1, "Stress_Levels": 4, "Upper_BP": 130,
		"Lower_BP": 85, "Sleep_Quality": 6, "Tiredness": 2,
	}
	if len(got[0]) != len(want) {
		t.Fatalf("unexpected keys: %v", got[0])
	}
	for k, v := range want {
		if got[0][k] != v {
			t.Fatalf("key %s: expected %v, got %v", k, v, got[0][k])
		}
	}
}

func TestAddDataSendsEveryRecord(t *testing.T) {
	var count int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var rows []map[string]interface{}
		json.NewDecoder(r.Body).Decode(&rows)
		atomic.StoreInt32(&count, int32(len(rows)))
		w.Write([]byte(`{"message":"Data added successfully."}`))
	})

	records := make([]model.TrainingRecord, 5)
	if _, err := c.AddData(context.Background(), records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if int(atomic.LoadInt32(&count)) != len(records) {
		t.Fatalf("expected %d rows, got %d", len(records), count)
	}
}

func TestAddDataRejectsEmptyAndNonFinite(t *testing.T) {
	var hits int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})

	if _, err := c.AddData(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty records, got %v", err)
	}
	records := []model.TrainingRecord{{}, {UpperBP: math.NaN()}}
	if _, err := c.AddData(context.Background(), records); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for NaN, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestAddDataApplicationError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Input data must be a list of dictionaries."}`))
	})

	outcome, err := c.AddData(context.Background(), []model.TrainingRecord{{}})
	if err != nil {
		t.Fatalf("application error must not be a Go error: %v", err)
	}
	if !outcome.Failed() || outcome.Text() != "Input data must be a list of dictionaries." {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestOutcomeMalformed(t *testing.T) {
	cases := map[string]string{
		"no envelope fields": `{"status":"ok"}`,
		"wrong type":         `{"message": 1}`,
		"not json":           `done`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			if _, err := c.Retrain(context.Background()); !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected malformed response error, got %v", err)
			}
		})
	}
}

func TestRetrainSendsEmptyBody(t *testing.T) {
	var calls int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		switch r.URL.Path {
		case "/add_data":
			w.Write([]byte(`{"message":"Data added successfully."}`))
		case "/retrain":
			body, _ := io.ReadAll(r.Body)
			if len(body) != 0 {
				t.Errorf("expected empty body, got %q", body)
			}
			w.Write([]byte(`{"message":"Model retrained successfully."}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	// a prior call must not leak into the retrain request
	if _, err := c.AddData(context.Background(), []model.TrainingRecord{{Workday: 1, UpperBP: 120}}); err != nil {
		t.Fatalf("add data: %v", err)
	}
	for i := 0; i < 2; i++ {
		outcome, err := c.Retrain(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if outcome.Text() != "Model retrained successfully." {
			t.Fatalf("unexpected outcome: %+v", outcome)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
}

func TestRedirectIsNotFollowed(t *testing.T) {
	var hits int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/predict" {
			http.Redirect(w, r, "/predict2", http.StatusTemporaryRedirect)
			return
		}
		w.Write([]byte(`{"Upper_BP": 1, "Lower_BP": 2}`))
	})

	_, err := c.Predict(context.Background(), model.PredictionInput{})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("expected *StatusError with 307, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected exactly one request, got %d", n)
	}

	// the copy made for a custom timeout keeps the policy
	c = NewHTTPPredictionClient(c.BaseURL(), WithHTTPClient(&http.Client{}), WithTimeout(time.Second))
	atomic.StoreInt32(&hits, 0)
	if _, err := c.Predict(context.Background(), model.PredictionInput{}); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected exactly one request, got %d", n)
	}
}

func TestOversizedResponse(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat(" ", 2*maxResponseBytes)))
		w.Write([]byte(`{"Upper_BP": 1, "Lower_BP": 2}`))
	})

	_, err := c.Predict(context.Background(), model.PredictionInput{})
	var malformed *MalformedResponseError
	if !errors.As(err, &malformed) || malformed.Reason != "response body too large" {
		t.Fatalf("expected body-too-large error, got %v", err)
	}
}

func TestRetrainServerErrorWithoutBody(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Retrain(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected *StatusError with 500, got %v", err)
	}
}

func TestConnectionFailureIsNotRetried(t *testing.T) {
	var hits int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Errorf("hijacking not supported")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack failed: %v", err)
			return
		}
		conn.Close()
	})

	calls := map[string]func() error{
		"predict": func() error {
			_, err := c.Predict(context.Background(), model.PredictionInput{})
			return err
		},
		"add_data": func() error {
			_, err := c.AddData(context.Background(), []model.TrainingRecord{{}})
			return err
		},
		"retrain": func() error {
			_, err := c.Retrain(context.Background())
			return err
		},
	}
	for name, call := range calls {
		atomic.StoreInt32(&hits, 0)
		err := call()
		if !errors.Is(err, ErrNetwork) {
			t.Fatalf("%s: expected network error, got %v", name, err)
		}
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("%s: expected *NetworkError, got %T", name, err)
		}
		if n := atomic.LoadInt32(&hits); n != 1 {
			t.Fatalf("%s: expected exactly one attempt, got %d", name, n)
		}
	}
}

func TestUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPPredictionClient(url).Predict(context.Background(), model.PredictionInput{})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestContextCancellation(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Retrain(ctx)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}
