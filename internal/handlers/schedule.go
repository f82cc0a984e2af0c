package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"water_timer/internal/service"
	"water_timer/internal/valve"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK      = "ok"
	statusUpdated = "updated"
	statusStopped = "stopped"
	statusIdle    = "idle"

	pingText = "Pinged Back From ESP-Plant"

	errUpdateSchedule  = "failed to update schedule"
	errPersistSchedule = "schedule could not be saved; previous schedule kept"
	errStopValve       = "failed to close valve"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Request DTO for a schedule change. Pointers tell a missing field from a zero.
type scheduleRequest struct {
	Interval *intervalRequest `json:"interval" binding:"required"`
	Duration *int64           `json:"duration" binding:"required"` // seconds
}

type intervalRequest struct {
	Days  *int `json:"days" binding:"required"`
	Hours *int `json:"hours" binding:"required"`
}

func (r scheduleRequest) update() service.ConfigUpdate {
	var ms int64
	switch d := *r.Duration; {
	case d > math.MaxInt64/1000:
		ms = math.MaxInt64
	case d < math.MinInt64/1000:
		ms = math.MinInt64
	default:
		ms = d * 1000
	}
	return service.ConfigUpdate{
		IntervalDays:  *r.Interval.Days,
		IntervalHours: *r.Interval.Hours,
		DurationMS:    ms,
	}
}

// ScheduleRequest is an exported model for Swagger docs of the schedule payload.
type ScheduleRequest struct {
	Interval struct {
		// Whole days between runs
		Days int `json:"days" example:"1"`
		// Extra hours between runs
		Hours int `json:"hours" example:"0"`
	} `json:"interval"`
	// Valve open time in seconds
	Duration int64 `json:"duration" example:"30"`
}

// @Summary      Ping
// @Tags         system
// @Produce      plain
// @Success      200  {string}  string
// @Router       / [get]
func (h *Handler) ping(c *gin.Context) {
	c.String(http.StatusOK, pingText)
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Seconds until the next run
// @Tags         status
// @Produce      plain
// @Success      200  {integer}  int
// @Router       /time_left [get]
func (h *Handler) getTimeLeft(c *gin.Context) {
	st := h.services.Monitoring.Status()
	c.String(http.StatusOK, strconv.FormatInt(st.TimeLeftSeconds, 10))
}

// @Summary      Watering interval in seconds
// @Tags         status
// @Produce      plain
// @Success      200  {integer}  int
// @Router       /watering_interval [get]
func (h *Handler) getWateringInterval(c *gin.Context) {
	snap := h.services.Schedule.Snapshot()
	c.String(http.StatusOK, strconv.FormatInt(snap.Schedule.IntervalSeconds(), 10))
}

// @Summary      Controller status
// @Tags         status
// @Produce      json
// @Success      200  {object}  models.Status
// @Router       /api/v1/status [get]
func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.Status())
}

// @Summary      Replace the watering schedule
// @Description  Stops an active run, then schedules the next run one interval from now. Also served as POST /update_data.
// @Tags         schedule
// @Accept       json
// @Produce      json
// @Param        body  body   ScheduleRequest  true  "Schedule payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/schedule [put]
// @Security     BearerAuth
func (h *Handler) updateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	sched, err := h.services.Schedule.ApplyConfigUpdate(c.Request.Context(), req.update())
	if err != nil {
		h.writeScheduleError(c, err)
		return
	}
	if h.log != nil {
		h.log.Infow("schedule_updated", "operator_id", operatorID(c), "next_trigger", sched.NextTriggerEpoch)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   statusUpdated,
		"schedule": sched,
	})
}

func (h *Handler) writeScheduleError(c *gin.Context, err error) {
	var (
		ve *service.ValidationError
		pe *service.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.As(err, &pe):
		h.logAndJSONError(c, http.StatusServiceUnavailable, errPersistSchedule, "schedule_persist_failed", err)
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errUpdateSchedule, "schedule_update_failed", err)
	}
}

// @Summary      Close the valve now
// @Description  Ends the active run, if any. The schedule is not changed.
// @Tags         valve
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/valve/stop [post]
// @Security     BearerAuth
func (h *Handler) stopValve(c *gin.Context) {
	stopped, err := h.services.Schedule.StopRun()
	if err != nil {
		kv := []interface{}{"hardware_fault", errors.Is(err, valve.ErrHardwareFault)}
		h.logAndJSONError(c, http.StatusInternalServerError, errStopValve, "valve_stop_failed", err, kv...)
		return
	}
	status := statusIdle
	if stopped {
		status = statusStopped
		if h.log != nil {
			h.log.Infow("valve_stopped_manually", "operator_id", operatorID(c))
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
