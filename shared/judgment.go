package shared

import (
	"fmt"
	"strings"
)

// Prediction represents the oracle's next-day direction forecast.
type Prediction string

const (
	PredictionUp      Prediction = "UP"
	PredictionDown    Prediction = "DOWN"
	PredictionNeutral Prediction = "NEUTRAL"
)

// String stringifies the provided prediction.
func (p Prediction) String() string {
	return string(p)
}

// ParsePrediction parses the provided prediction, case-insensitively.
func ParsePrediction(s string) (Prediction, error) {
	switch Prediction(strings.ToUpper(strings.TrimSpace(s))) {
	case PredictionUp:
		return PredictionUp, nil
	case PredictionDown:
		return PredictionDown, nil
	case PredictionNeutral:
		return PredictionNeutral, nil
	default:
		return "", fmt.Errorf("unknown prediction: %q", s)
	}
}

// Side maps the prediction to an order side. Neutral predictions have no side.
func (p Prediction) Side() (Side, bool) {
	switch p {
	case PredictionUp:
		return Buy, true
	case PredictionDown:
		return Sell, true
	default:
		return "", false
	}
}

// ForecastJudgment represents the oracle's structured judgment of the candle series.
type ForecastJudgment struct {
	Pattern    string     `json:"pattern"`
	Prediction Prediction `json:"prediction"`
	Confidence int        `json:"confidence"`
	Rationale  string     `json:"rationale"`
}
