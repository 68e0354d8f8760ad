package oracle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dnldd/augur/shared"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	// noPattern is the pattern reported when none is recognised.
	noPattern = "none"
	// maxConfidence is the upper bound of a judgment's confidence.
	maxConfidence = 100
)

var (
	// fenceRe matches a markdown code fence wrapping the payload.
	fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
)

// stripFences removes markdown code fence formatting from a model response.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if matches := fenceRe.FindStringSubmatch(text); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	return text
}

// ParseJudgment parses and validates the model's structured judgment. Any
// deviation from the expected structure is an oracle parse error, it is
// never coerced into a default judgment.
func ParseJudgment(text string) (*shared.ForecastJudgment, error) {
	parseErr := func(format string, args ...any) error {
		return shared.NewError(shared.OracleParseError, text, fmt.Errorf(format, args...))
	}

	payload := stripFences(text)
	if !gjson.Valid(payload) {
		return nil, parseErr("response is not valid json")
	}

	res := gjson.Parse(payload)
	if !res.IsObject() {
		return nil, parseErr("response is not a json object")
	}

	pred := res.Get("prediction")
	if pred.Type != gjson.String {
		return nil, parseErr("prediction must be a string, got %q", pred.Raw)
	}

	prediction, err := shared.ParsePrediction(pred.Str)
	if err != nil {
		return nil, parseErr("%v", err)
	}

	conf := res.Get("confidence")
	if conf.Type != gjson.Number {
		return nil, parseErr("confidence must be a number, got %q", conf.Raw)
	}

	// The literal is checked rather than its float64 rounding.
	value, err := decimal.NewFromString(conf.Raw)
	if err != nil {
		return nil, parseErr("confidence must be a number, got %q", conf.Raw)
	}
	if !value.IsInteger() {
		return nil, parseErr("confidence must be an integer, got %s", conf.Raw)
	}
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(maxConfidence)) {
		return nil, parseErr("confidence must be within 0-100, got %s", conf.Raw)
	}

	pattern := strings.TrimSpace(res.Get("pattern").String())
	if pattern == "" {
		pattern = noPattern
	}

	return &shared.ForecastJudgment{
		Pattern:    pattern,
		Prediction: prediction,
		Confidence: int(value.IntPart()),
		Rationale:  strings.TrimSpace(res.Get("rationale").String()),
	}, nil
}
