package model

import "context"

// PredictionClient определяет интерфейс для взаимодействия с сервисом предсказания давления
type PredictionClient interface {
	// Predict запрашивает предсказание верхнего и нижнего давления
	Predict(ctx context.Context, input PredictionInput) (*PredictionResult, error)

	// AddData добавляет размеченные наблюдения в обучающую выборку
	AddData(ctx context.Context, records []TrainingRecord) (*OperationOutcome, error)

	// Retrain запускает переобучение модели на текущей выборке
	Retrain(ctx context.Context) (*OperationOutcome, error)
}
