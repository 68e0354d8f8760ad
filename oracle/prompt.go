package oracle

import (
	"strconv"
	"strings"

	"github.com/dnldd/augur/shared"
)

// promptTemplate is the fixed instruction wrapped around the candle series.
const promptTemplate = `You are a technical analyst for %ASSET%. Below are %COUNT% daily candles, oldest first, as CSV:

date,open,high,low,close,volume
%CANDLES%

Classify the chart pattern the most recent candles form and forecast the direction of the next daily close.

Reply with a single JSON object and nothing else, using exactly these fields:
{"pattern": "<pattern name or none>", "prediction": "UP" | "DOWN" | "NEUTRAL", "confidence": <integer 0-100>, "rationale": "<one or two sentences>"}`

// BuildPrompt embeds the provided candle series in the fixed instruction template.
func BuildPrompt(asset string, candles []shared.Candle) string {
	var b strings.Builder
	for idx := range candles {
		c := &candles[idx]
		if idx > 0 {
			b.WriteByte('\n')
		}

		b.WriteString(c.Day())
		for _, v := range []string{c.Open.String(), c.High.String(), c.Low.String(),
			c.Close.String(), c.Volume.String()} {
			b.WriteByte(',')
			b.WriteString(v)
		}
	}

	return strings.NewReplacer(
		"%ASSET%", asset,
		"%COUNT%", strconv.Itoa(len(candles)),
		"%CANDLES%", b.String(),
	).Replace(promptTemplate)
}
