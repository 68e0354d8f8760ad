package service

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dnldd/augur/metrics"
	"github.com/dnldd/augur/shared"
	"github.com/gin-gonic/gin"
)

const (
	// invalidRequest is the error kind reported for malformed trigger parameters.
	invalidRequest = "InvalidRequest"
	// internalError is the error kind reported for unclassified failures.
	internalError = "InternalError"
)

// errorResponse represents a failed trigger response.
type errorResponse struct {
	Kind    string `json:"kind"`
	Error   string `json:"error"`
	Payload string `json:"payload,omitempty"`
	// Result is the progress made before the failure, if any.
	Result any `json:"result,omitempty"`
}

// statusFor maps the provided error to its response status and kind.
func statusFor(err error) (int, string) {
	var classified *shared.Error
	if !errors.As(err, &classified) {
		return http.StatusInternalServerError, internalError
	}

	switch classified.Kind {
	case shared.UpstreamFetchError, shared.OracleParseError, shared.ExchangeError:
		return http.StatusBadGateway, string(classified.Kind)
	default:
		return http.StatusInternalServerError, string(classified.Kind)
	}
}

// respondError writes the provided error, along with any partial result.
func respondError(c *gin.Context, err error, result any) {
	status, kind := statusFor(err)

	resp := errorResponse{
		Kind:   kind,
		Error:  err.Error(),
		Result: result,
	}

	var classified *shared.Error
	if errors.As(err, &classified) {
		resp.Payload = classified.Payload
	}

	c.JSON(status, resp)
}

// requestLogger logs every handled request.
func (a *Augur) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info().Msgf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start))
	}
}

// router creates the trigger surface routes.
func (a *Augur) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/candles", a.handleCandles)
	r.POST("/candles", a.handleCandles)
	r.GET("/signals", a.handleSignals)
	r.POST("/signals", a.handleSignals)

	return r
}

// handleCandles runs a backfill of the requested range, or a catch up when
// no range is provided.
func (a *Augur) handleCandles(c *gin.Context) {
	fromParam, toParam := c.Query("from"), c.Query("to")

	var result *shared.BackfillResult
	var err error

	switch {
	case fromParam == "" && toParam == "":
		result, err = a.fetchManager.CatchUp(c.Request.Context())
	case fromParam == "" || toParam == "":
		c.JSON(http.StatusBadRequest, errorResponse{
			Kind:  invalidRequest,
			Error: "from and to must be provided together",
		})
		return
	default:
		from, perr := shared.ParseDay(fromParam)
		if perr != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Kind: invalidRequest, Error: perr.Error()})
			return
		}

		to, perr := shared.ParseDay(toParam)
		if perr != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Kind: invalidRequest, Error: perr.Error()})
			return
		}

		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, errorResponse{
				Kind:  invalidRequest,
				Error: fmt.Sprintf("from %s must precede to %s", fromParam, toParam),
			})
			return
		}

		result, err = a.fetchManager.Backfill(c.Request.Context(), from, to)
	}

	if err != nil {
		a.logger.Error().Msgf("candles trigger: %v", err)
		if result != nil {
			respondError(c, err, result)
			return
		}
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleSignals runs a single decision cycle.
func (a *Augur) handleSignals(c *gin.Context) {
	result, err := a.engine.RunCycle(c.Request.Context())
	if err != nil {
		a.logger.Error().Msgf("signals trigger: %v", err)
		if result != nil {
			respondError(c, err, result)
			return
		}
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, result)
}
