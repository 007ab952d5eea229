package core

import (
	"context"
	"errors"

	"bp_client/internal/domain/model"
	"bp_client/internal/domain/repository"

	"go.uber.org/zap"
)

// ErrHistoryDisabled is returned by History when journaling is off.
var ErrHistoryDisabled = errors.New("history is disabled")

type PredictionService struct {
	client   model.PredictionClient
	recorder repository.HistoryRecorder
	saveData bool
	logger   *zap.Logger
}

func NewPredictionService(
	client model.PredictionClient,
	recorder repository.HistoryRecorder,
	saveData bool,
	logger *zap.Logger,
) *PredictionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredictionService{
		client:   client,
		recorder: recorder,
		saveData: saveData && recorder != nil,
		logger:   logger,
	}
}

func (s *PredictionService) Predict(ctx context.Context, input model.PredictionInput) (*model.PredictionResult, error) {
	result, err := s.client.Predict(ctx, input)
	if err != nil {
		s.logger.Warn("prediction failed", zap.Error(err))
	} else {
		s.logger.Info("prediction received",
			zap.Float64("upper_bp", result.UpperBP),
			zap.Float64("lower_bp", result.LowerBP),
		)
	}

	if s.saveData {
		if recErr := s.recorder.SavePrediction(context.WithoutCancel(ctx), input, result, err); recErr != nil {
			s.logger.Error("failed to save prediction history", zap.Error(recErr))
		}
	}
	return result, err
}

func (s *PredictionService) AddData(ctx context.Context, records []model.TrainingRecord) (*model.OperationOutcome, error) {
	outcome, err := s.client.AddData(ctx, records)
	s.logOutcome("add_data", outcome, err, zap.Int("records", len(records)))

	if s.saveData {
		if recErr := s.recorder.SaveTrainingRecords(context.WithoutCancel(ctx), records, outcome, err); recErr != nil {
			s.logger.Error("failed to save add_data history", zap.Error(recErr))
		}
	}
	return outcome, err
}

func (s *PredictionService) Retrain(ctx context.Context) (*model.OperationOutcome, error) {
	outcome, err := s.client.Retrain(ctx)
	s.logOutcome("retrain", outcome, err)

	if s.saveData {
		if recErr := s.recorder.SaveRetrain(context.WithoutCancel(ctx), outcome, err); recErr != nil {
			s.logger.Error("failed to save retrain history", zap.Error(recErr))
		}
	}
	return outcome, err
}

// History returns the most recent journal entries.
func (s *PredictionService) History(ctx context.Context, limit int) ([]repository.HistoryEntry, error) {
	if !s.saveData {
		return nil, ErrHistoryDisabled
	}
	return s.recorder.Recent(ctx, limit)
}

func (s *PredictionService) logOutcome(op string, outcome *model.OperationOutcome, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("operation", op))
	switch {
	case err != nil:
		s.logger.Warn("operation failed", append(fields, zap.Error(err))...)
	case outcome.Failed():
		s.logger.Warn("operation rejected by service", append(fields, zap.String("error", outcome.Error))...)
	default:
		s.logger.Info("operation completed", append(fields, zap.String("message", outcome.Message))...)
	}
}
