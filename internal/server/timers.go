package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	timelogdomain "github.com/smallbiznis/shopfloor/internal/timelog/domain"
)

type startTimerRequest struct {
	OrderID string `json:"order_id"`
}

type stopTimerRequest struct {
	FinalOrderStatus string `json:"final_order_status"`
}

// StartTimer answers with the start outcome body on success and failure alike.
func (s *Server) StartTimer(c *gin.Context) {
	var req startTimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.timeLogSvc.Start(c.Request.Context(), timelogdomain.StartRequest{
		OrderID: strings.TrimSpace(req.OrderID),
	})
	outcome := timelogdomain.NewStartOutcome(resp, err)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), outcome)
		return
	}

	c.Set("time_log_id", resp.ID)
	c.JSON(http.StatusCreated, outcome)
}

// StopTimer accepts an empty body, which stops with the default final status.
func (s *Server) StopTimer(c *gin.Context) {
	var req stopTimerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	c.Set("time_log_id", id)

	result, err := s.timeLogSvc.Stop(c.Request.Context(), timelogdomain.StopRequest{
		TimeLogID:        id,
		FinalOrderStatus: strings.TrimSpace(req.FinalOrderStatus),
	})
	outcome := timelogdomain.NewStopOutcome(result, err)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), outcome)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (s *Server) PauseTimer(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("time_log_id", id)

	resp, err := s.timeLogSvc.Pause(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ResumeTimer(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("time_log_id", id)

	resp, err := s.timeLogSvc.Resume(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetActiveTimer(c *gin.Context) {
	resp, err := s.timeLogSvc.Active(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTimeLogs(c *gin.Context) {
	var query timelogdomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.timeLogSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
