// Package httpapi is the REST surface the app's screens call to manage goal
// reminders.
package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/notexe/goal-reminders/internal/reminder"
	"github.com/notexe/goal-reminders/internal/scheduler"
)

// ConsentStore persists the notification opt-in.
type ConsentStore interface {
	Grant(ctx context.Context) error
	Revoke(ctx context.Context) error
	Status(ctx context.Context) (granted, decided bool, err error)
}

// Handler serves reminder and permission endpoints.
type Handler struct {
	coord   *scheduler.Coordinator
	consent ConsentStore
	log     *zap.Logger
}

func NewHandler(coord *scheduler.Coordinator, consent ConsentStore, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{coord: coord, consent: consent, log: log.Named("http")}
}

type scheduleBody struct {
	GoalTitle  string    `json:"goal_title"`
	GoalEmoji  string    `json:"goal_emoji"`
	TargetDate time.Time `json:"target_date" binding:"required"`
	Kinds      []string  `json:"kinds"`
}

type goalReminders struct {
	GoalID    string            `json:"goal_id"`
	Active    bool              `json:"active"`
	Reminders []reminder.Record `json:"reminders"`
}

type permissionState struct {
	Granted bool `json:"granted"`
	Decided bool `json:"decided"`
}

// ScheduleGoal replaces the goal's reminders. A nil kinds list enables every
// kind; an empty list clears the goal.
func (h *Handler) ScheduleGoal(c *gin.Context) {
	var body scheduleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, err.Error())
		return
	}

	kinds := reminder.AllKinds
	if body.Kinds != nil {
		var err error
		if kinds, err = reminder.ParseKinds(body.Kinds...); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	report, err := h.coord.Schedule(c.Request.Context(), reminder.Request{
		GoalID:     c.Param("goalID"),
		GoalTitle:  body.GoalTitle,
		GoalEmoji:  body.GoalEmoji,
		TargetDate: body.TargetDate,
		Kinds:      kinds,
	})
	if err != nil {
		h.fail(c, "schedule", err)
		return
	}
	Success(c, report)
}

func (h *Handler) ListGoal(c *gin.Context) {
	goalID := c.Param("goalID")
	ctx := c.Request.Context()

	records, err := h.coord.Reminders(ctx, goalID)
	if err != nil {
		h.fail(c, "list", err)
		return
	}
	active, err := h.coord.HasActive(ctx, goalID)
	if err != nil {
		h.fail(c, "list", err)
		return
	}
	if records == nil {
		records = []reminder.Record{}
	}
	Success(c, goalReminders{GoalID: goalID, Active: active, Reminders: records})
}

func (h *Handler) CancelGoal(c *gin.Context) {
	report, err := h.coord.Cancel(c.Request.Context(), c.Param("goalID"))
	if err != nil {
		h.fail(c, "cancel", err)
		return
	}
	Success(c, report)
}

func (h *Handler) Cleanup(c *gin.Context) {
	n, err := h.coord.CleanupExpired(c.Request.Context())
	if err != nil {
		h.fail(c, "cleanup", err)
		return
	}
	Success(c, gin.H{"removed": n})
}

func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.coord.Reconcile(c.Request.Context())
	if err != nil {
		h.fail(c, "reconcile", err)
		return
	}
	Success(c, report)
}

func (h *Handler) GetPermission(c *gin.Context) {
	granted, decided, err := h.consent.Status(c.Request.Context())
	if err != nil {
		h.fail(c, "permission", err)
		return
	}
	Success(c, permissionState{Granted: granted, Decided: decided})
}

func (h *Handler) GrantPermission(c *gin.Context) {
	if err := h.consent.Grant(c.Request.Context()); err != nil {
		h.fail(c, "permission", err)
		return
	}
	Success(c, permissionState{Granted: true, Decided: true})
}

func (h *Handler) RevokePermission(c *gin.Context) {
	if err := h.consent.Revoke(c.Request.Context()); err != nil {
		h.fail(c, "permission", err)
		return
	}
	Success(c, permissionState{Granted: false, Decided: true})
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, reminder.ErrInvalidRequest) {
		BadRequest(c, err.Error())
		return
	}
	h.log.Error("request failed", zap.String("operation", op), zap.String("path", c.FullPath()), zap.Error(err))
	InternalServerError(c)
}
