package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bp_client/internal/domain/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	OperationPredict = "predict"
	OperationAddData = "add_data"
	OperationRetrain = "retrain"
)

// HistoryRecorder journals round trips to the prediction service.
type HistoryRecorder interface {
	SavePrediction(ctx context.Context, input model.PredictionInput, result *model.PredictionResult, callErr error) error
	SaveTrainingRecords(ctx context.Context, records []model.TrainingRecord, outcome *model.OperationOutcome, callErr error) error
	SaveRetrain(ctx context.Context, outcome *model.OperationOutcome, callErr error) error
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// HistoryEntry is one journaled call.
type HistoryEntry struct {
	ID         string    `db:"id" json:"id"`
	Operation  string    `db:"operation" json:"operation"`
	Request    string    `db:"request" json:"request"`
	Response   string    `db:"response" json:"response"`
	Success    bool      `db:"success" json:"success"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

type Journal struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewJournal(db *sqlx.DB) *Journal {
	return &Journal{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (j *Journal) SavePrediction(ctx context.Context, input model.PredictionInput, result *model.PredictionResult, callErr error) error {
	response, success := responseText(result, callErr)
	return j.insert(ctx, OperationPredict, input, response, success)
}

func (j *Journal) SaveTrainingRecords(ctx context.Context, records []model.TrainingRecord, outcome *model.OperationOutcome, callErr error) error {
	response, success := responseText(outcome, callErr)
	if outcome != nil && outcome.Failed() {
		success = false
	}
	return j.insert(ctx, OperationAddData, records, response, success)
}

func (j *Journal) SaveRetrain(ctx context.Context, outcome *model.OperationOutcome, callErr error) error {
	response, success := responseText(outcome, callErr)
	if outcome != nil && outcome.Failed() {
		success = false
	}
	return j.insert(ctx, OperationRetrain, nil, response, success)
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := j.db.Rebind(`
		SELECT id, operation, request, response, success, recorded_at
		FROM prediction_history
		ORDER BY recorded_at DESC
		LIMIT ?`)

	entries := []HistoryEntry{}
	if err := j.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return entries, nil
}

func (j *Journal) insert(ctx context.Context, operation string, request interface{}, response string, success bool) error {
	const query = `
		INSERT INTO prediction_history (
			id, operation, request, response, success, recorded_at
		) VALUES (
			:id, :operation, :request, :response, :success, :recorded_at
		)`

	requestJSON := []byte("{}")
	if request != nil {
		var err error
		// Сериализация запроса в JSON
		requestJSON, err = json.Marshal(request)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	entry := HistoryEntry{
		ID:         uuid.NewString(),
		Operation:  operation,
		Request:    string(requestJSON),
		Response:   response,
		Success:    success,
		RecordedAt: j.now(),
	}
	if _, err := j.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to save %s history: %w", operation, err)
	}
	return nil
}

func responseText(result interface{}, callErr error) (string, bool) {
	if callErr != nil {
		return callErr.Error(), false
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result), true
	}
	return string(data), true
}
