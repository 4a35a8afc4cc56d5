package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/auth"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/database"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/ledger"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/models"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/reminder"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/store"
)

// Handler contains dependencies for the route handlers
type Handler struct {
	Ledger    *ledger.Ledger
	Reminders *reminder.Scheduler
	Store     store.Store
	Log       zerolog.Logger
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Strip "Bearer " if present
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}

		claims, err := auth.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}

// Login handles admin login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Store.FindAdmin(req.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.CreateToken(user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

type bookingRequest struct {
	Cohort     string                  `json:"cohort"`
	EmployeeID string                  `json:"employee_id"`
	LineID     string                  `json:"line_id"`
	Phone      string                  `json:"phone"`
	Selections []models.ShiftSelection `json:"selections"`
}

// SubmitBooking handles a shift-selection submission. On acceptance
// the reminder events are derived synchronously; a reminder problem
// never fails the booking.
func (h *Handler) SubmitBooking(c *gin.Context) {
	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg := validateBookingRequest(&req); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	res, err := h.Ledger.Submit(ledger.Submission{
		Cohort:     req.Cohort,
		EmployeeID: req.EmployeeID,
		LineID:     req.LineID,
		Phone:      req.Phone,
		Selections: req.Selections,
	})
	if err != nil {
		h.bookingError(c, err)
		return
	}

	h.scheduleReminders(res.Booking)
	c.JSON(http.StatusOK, bookingResponse(res))
}

// AmendBooking replaces an existing booking's shift set and contact
// fields. Slots from the previous selection are not released.
func (h *Handler) AmendBooking(c *gin.Context) {
	reference := c.Param("reference")

	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg := validateBookingRequest(&req); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	res, err := h.Ledger.Amend(reference, req.EmployeeID, req.LineID, req.Phone, req.Selections)
	if err != nil {
		h.bookingError(c, err)
		return
	}

	h.scheduleReminders(res.Booking)
	c.JSON(http.StatusOK, bookingResponse(res))
}

// LookupBooking returns the applicant's current booking
func (h *Handler) LookupBooking(c *gin.Context) {
	cohort := c.Query("cohort")
	employeeID := c.Query("employee_id")
	if cohort == "" || employeeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cohort and employee_id are required"})
		return
	}

	b, err := h.Ledger.Lookup(cohort, employeeID)
	if errors.Is(err, ledger.ErrBookingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No booking found"})
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("booking lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch booking"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking_reference": b.Reference,
		"cohort":            b.Cohort,
		"employee_id":       b.EmployeeID,
		"line_id":           b.LineID,
		"phone":             b.Phone,
		"shifts":            b.Shifts,
	})
}

// GetCapacity returns the capacity snapshot for a cohort, polled by
// the shift-selection form
func (h *Handler) GetCapacity(c *gin.Context) {
	cohort := c.Param("cohort")

	cells, err := h.Ledger.CapacitySnapshot(cohort)
	if err != nil {
		h.Log.Error().Err(err).Str("cohort", cohort).Msg("capacity snapshot failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch capacity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cohort": cohort, "cells": cells})
}

func (h *Handler) scheduleReminders(b *database.Booking) {
	if h.Reminders == nil {
		return
	}
	if _, err := h.Reminders.ScheduleFor(b); err != nil {
		// The booking already committed; reminders are best-effort.
		h.Log.Error().Err(err).Str("reference", b.Reference).Msg("could not persist reminder events")
	}
}

func (h *Handler) bookingError(c *gin.Context, err error) {
	var unknown *ledger.UnknownShiftCellError
	var full *ledger.CapacityExceededError

	switch {
	case errors.As(err, &unknown):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "Selected shift is not available, please re-pick",
			"cell":  unknown.Key.String(),
		})
	case errors.As(err, &full):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Shift is fully booked, please pick another",
			"cell":  full.Key.String(),
		})
	case errors.Is(err, ledger.ErrNoSelections), errors.Is(err, ledger.ErrDuplicateSelection):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
	case errors.Is(err, ledger.ErrIdentityMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": "Booking belongs to a different applicant"})
	default:
		h.Log.Error().Err(err).Msg("submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not process submission"})
	}
}

func bookingResponse(res *ledger.Result) gin.H {
	return gin.H{
		"booking_reference": res.Booking.Reference,
		"created":           res.Created,
		"shifts":            res.Booking.Shifts,
	}
}
