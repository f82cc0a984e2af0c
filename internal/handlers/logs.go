package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"water_timer/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid  = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid    = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"
	errSinceInvalid = "invalid 'since'; use a positive duration such as 24h"
	errSinceAndFrom = "use either 'since' or 'from', not both"
	errLimitInvalid = "invalid 'limit'; use an integer between 1 and 1000"
	errRangeOrder   = "'from' must be <= 'to'"
	errLoadLogs     = "failed to load logs"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"

	maxLogLimit = 1000
)

var queryTimeLayouts = []string{time.RFC3339, layoutDateTime, layoutDate}

// @Summary      List logs
// @Description  Filter watering events by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD') or by a trailing window (?since=24h). A date-only 'to' covers the whole day. ?limit keeps the newest N events.
// @Tags         logs
// @Produce      json
// @Param        from   query   string  false  "Start of range"  example(2025-08-01)
// @Param        to     query   string  false  "End of range. Date-only treated as end of day."  example(2025-08-31)
// @Param        since  query   string  false  "Trailing window, e.g. 24h. Excludes 'from'."
// @Param        type   query   string  false  "Event type"  Enums(RUN_START,RUN_END,CATCH_UP,CONFIG_UPDATE,TIME_SYNC,ERROR)
// @Param        limit  query   int     false  "Newest N events (1..1000)"
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	f, msg := parseLogFilter(c, time.Now().UTC())
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	events, err := h.services.EventLog.List(c.Request.Context(), f)
	if service.IsFilterError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadLogs, "logs_list_failed", err,
			"from", f.From, "to", f.To, "type", f.Type)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// parseLogFilter returns a non-empty message when the query is unusable.
func parseLogFilter(c *gin.Context, now time.Time) (service.LogFilter, string) {
	f := service.LogFilter{Type: strings.ToUpper(strings.TrimSpace(c.Query("type")))}

	since, from := c.Query("since"), c.Query("from")
	switch {
	case since != "" && from != "":
		return f, errSinceAndFrom
	case since != "":
		d, err := time.ParseDuration(since)
		if err != nil || d <= 0 {
			return f, errSinceInvalid
		}
		f.From = now.Add(-d)
	case from != "":
		t, err := parseQueryTime(from)
		if err != nil {
			return f, errFromInvalid
		}
		f.From = t
	}

	if qs := c.Query("to"); qs != "" {
		t, err := parseQueryTime(qs)
		if err != nil {
			return f, errToInvalid
		}
		if isDateOnly(qs) {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.To = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return f, errRangeOrder
	}

	if qs := c.Query("limit"); qs != "" {
		n, err := strconv.Atoi(qs)
		if err != nil || n < 1 || n > maxLogLimit {
			return f, errLimitInvalid
		}
		f.Limit = n
	}
	return f, ""
}

func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// parseQueryTime accepts RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD', in UTC.
func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range queryTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}
