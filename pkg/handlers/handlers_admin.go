package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/database"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/reminder"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/store"
)

var timeNow = time.Now

type cellInput struct {
	Location  string `json:"location"`
	Date      string `json:"date"`
	ShiftType string `json:"shift_type"`
	Rate      string `json:"rate"`
	Capacity  int    `json:"capacity"`
}

// UpsertCells provisions or edits a cohort's shift-cell matrix.
// Existing cells keep their booked count; only rate and capacity are
// updated.
func (h *Handler) UpsertCells(c *gin.Context) {
	var req struct {
		Cohort string      `json:"cohort"`
		Cells  []cellInput `json:"cells"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Cohort == "" || len(req.Cells) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cohort and cells are required"})
		return
	}

	cells := make([]database.ShiftCell, 0, len(req.Cells))
	for _, in := range req.Cells {
		if in.Location == "" || in.Date == "" || in.ShiftType == "" || in.Capacity <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Each cell needs location, date, shift_type and a positive capacity"})
			return
		}
		cells = append(cells, database.ShiftCell{
			Cohort:    req.Cohort,
			Location:  in.Location,
			Date:      in.Date,
			ShiftType: in.ShiftType,
			Rate:      in.Rate,
			Capacity:  in.Capacity,
		})
	}

	if err := h.Store.UpsertCells(cells); err != nil {
		h.Log.Error().Err(err).Str("cohort", req.Cohort).Msg("cell upsert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not save cells"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cohort": req.Cohort, "count": len(cells)})
}

// UpdateCell edits one cell's capacity and rate. Lowering capacity
// below the current booked count is refused.
func (h *Handler) UpdateCell(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cell id"})
		return
	}

	var req struct {
		Capacity int    `json:"capacity"`
		Rate     string `json:"rate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Capacity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "capacity must be positive"})
		return
	}

	if err := h.Store.UpdateCell(uint(id), req.Capacity, req.Rate); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Cell not found or capacity below booked count"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cell updated"})
}

// DeleteCells removes cells by cohort, optionally narrowed by
// location and date (cascading admin removal of a column or row).
func (h *Handler) DeleteCells(c *gin.Context) {
	cohort := c.Query("cohort")
	if cohort == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cohort is required"})
		return
	}

	removed, err := h.Store.DeleteCells(cohort, c.Query("location"), c.Query("date"))
	if err != nil {
		h.Log.Error().Err(err).Str("cohort", cohort).Msg("cell delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not delete cells"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ListReminders returns the reminder audit history for operators
func (h *Handler) ListReminders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := h.Reminders.History(limit)
	if err != nil {
		h.Log.Error().Err(err).Msg("reminder history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch reminders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": events})
}

// ManualSend renders a template against supplied values and pushes it
// immediately, outside any schedule.
func (h *Handler) ManualSend(c *gin.Context) {
	var req struct {
		To       string            `json:"to"`
		Date     string            `json:"date"`
		Template string            `json:"template"`
		Values   map[string]string `json:"values"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.To == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to is required"})
		return
	}

	out, err := h.Reminders.ManualSend(c.Request.Context(), req.To, req.Date, req.Template, req.Values)
	if err != nil {
		h.Log.Error().Err(err).Msg("manual send failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not record manual send"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// TriggerDispatch runs one due-notification cycle on demand. The
// dispatch window still applies; outside it the cycle is a no-op.
func (h *Handler) TriggerDispatch(c *gin.Context) {
	sent, failed, err := h.Reminders.RunDue(c.Request.Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("dispatch cycle failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Dispatch cycle failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sent":      sent,
		"failed":    failed,
		"in_window": reminder.InDispatchWindow(timeNow()),
	})
}

// ResendReminder re-pushes a single event, the operator's manual
// re-trigger for failed deliveries.
func (h *Handler) ResendReminder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	out, rerr := h.Reminders.Redeliver(c.Request.Context(), uint(id))
	if rerr != nil {
		if errors.Is(rerr, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Reminder event not found"})
			return
		}
		h.Log.Error().Err(rerr).Uint64("event", id).Msg("resend failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not resend reminder"})
		return
	}
	c.JSON(http.StatusOK, out)
}
