package model

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// PredictionInput is the feature vector sent to /predict.
type PredictionInput struct {
	Workday      float64 `json:"workday" validate:"finite"`
	StressLevels float64 `json:"stress_levels" validate:"finite"`
	SleepQuality float64 `json:"sleep_quality" validate:"finite"`
	Tiredness    float64 `json:"tiredness" validate:"finite"`
}

// PredictionResult holds the blood pressure predicted by the service.
type PredictionResult struct {
	UpperBP float64 `json:"upper_bp"`
	LowerBP float64 `json:"lower_bp"`
}

// TrainingRecord is a single labeled observation for /add_data.
type TrainingRecord struct {
	Workday      float64 `json:"workday" validate:"finite"`
	StressLevels float64 `json:"stress_levels" validate:"finite"`
	UpperBP      float64 `json:"upper_bp" validate:"finite"`
	LowerBP      float64 `json:"lower_bp" validate:"finite"`
	SleepQuality float64 `json:"sleep_quality" validate:"finite"`
	Tiredness    float64 `json:"tiredness" validate:"finite"`
}

// OperationOutcome is the {message} / {error} envelope returned by
// /add_data and /retrain.
type OperationOutcome struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failed reports whether the service rejected the operation.
func (o OperationOutcome) Failed() bool {
	return o.Error != ""
}

// Text returns the message, or the error when there is no message.
func (o OperationOutcome) Text() string {
	if o.Message != "" {
		return o.Message
	}
	return o.Error
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// "finite" rejects NaN and ±Inf, which JSON cannot carry
	if err := v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate checks that every numeric field of a PredictionInput or
// TrainingRecord is finite.
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return fmt.Errorf("field %s must be a finite number", verrs[0].Field())
		}
		return err
	}
	return nil
}
