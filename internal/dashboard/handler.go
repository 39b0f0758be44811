// Package dashboard serves the read-only admin view: a JSON snapshot of the
// latest event and a websocket feed of the action log.
package dashboard

import (
	"context"
	"errors"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/auth"
	"github.com/homeconf/regbot/internal/lottery"
	"github.com/homeconf/regbot/internal/middleware"
	"github.com/homeconf/regbot/internal/models"
	"github.com/homeconf/regbot/pkg/response"
)

const defaultLogLimit = 100

// SummarySource computes occupancy of the latest event.
type SummarySource interface {
	Summary(ctx context.Context) (*lottery.Summary, error)
}

// RegistrationLister lists every registration of an event.
type RegistrationLister interface {
	ListByEvent(ctx context.Context, eventID int64) ([]models.Registration, error)
}

// SpeakerLister lists the static speaker list of an event.
type SpeakerLister interface {
	List(ctx context.Context, eventID int64) ([]models.Speaker, error)
}

// LogLister lists the newest action log entries of an event.
type LogLister interface {
	ListByEvent(ctx context.Context, eventID int64, limit int) ([]*models.ActionLog, error)
}

// Snapshot is the full dashboard view of one event.
type Snapshot struct {
	Summary  *lottery.Summary      `json:"summary"`
	Speakers []models.Speaker      `json:"speakers"`
	Invitees []models.Registration `json:"invitees"`
	Admitted []models.Registration `json:"admitted"`
	Pool     []models.Registration `json:"pool"`
	Waitlist []models.Registration `json:"waitlist"`
	Left     []models.Registration `json:"left"`
	Logs     []*models.ActionLog   `json:"logs"`
}

// Handler serves dashboard endpoints.
type Handler struct {
	summary  SummarySource
	regs     RegistrationLister
	speakers SpeakerLister
	logs     LogLister
	hub      *Hub
	logLimit int
	logger   *zap.Logger
}

// NewHandler creates a dashboard handler.
func NewHandler(summary SummarySource, regs RegistrationLister, speakers SpeakerLister, logs LogLister, hub *Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		summary:  summary,
		regs:     regs,
		speakers: speakers,
		logs:     logs,
		hub:      hub,
		logLimit: defaultLogLimit,
		logger:   logger,
	}
}

// Routes mounts the endpoints on r.
func (h *Handler) Routes(r gin.IRouter, jwt *auth.JWTService, isAdmin func(int64) bool) {
	r.GET("/health", h.Health)
	admin := r.Group("/dashboard", middleware.JWT(jwt), middleware.RequireAdmin(isAdmin))
	admin.GET("", h.Snapshot)
	admin.GET("/ws", h.ServeWs)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok", "dashboards": h.hub.Count()})
}

// Snapshot handles GET /dashboard.
func (h *Handler) Snapshot(c *gin.Context) {
	ctx := c.Request.Context()
	sum, err := h.summary.Summary(ctx)
	if errors.Is(err, lottery.ErrNoEvent) {
		response.NotFound(c, "no event")
		return
	}
	if err != nil {
		// Summary is the first store read; failing here means the database is unreachable.
		h.logger.Error("dashboard summary failed", zap.Error(err))
		response.ServiceUnavailable(c, "event store unavailable")
		return
	}
	eventID := sum.Event.ID

	regs, err := h.regs.ListByEvent(ctx, eventID)
	if err != nil {
		h.logger.Error("dashboard registrations failed", zap.Int64("event_id", eventID), zap.Error(err))
		response.Internal(c, "failed to load registrations")
		return
	}
	speakers, err := h.speakers.List(ctx, eventID)
	if err != nil {
		h.logger.Error("dashboard speakers failed", zap.Int64("event_id", eventID), zap.Error(err))
		response.Internal(c, "failed to load speakers")
		return
	}
	logs, err := h.logs.ListByEvent(ctx, eventID, h.logLimit)
	if err != nil {
		h.logger.Error("dashboard logs failed", zap.Int64("event_id", eventID), zap.Error(err))
		response.Internal(c, "failed to load logs")
		return
	}

	snap := group(regs)
	snap.Summary = sum
	snap.Speakers = speakers
	snap.Logs = logs
	response.OK(c, snap)
}

// group sorts registrations into dashboard sections. Guests are listed as
// invitees whatever their status.
func group(regs []models.Registration) Snapshot {
	var s Snapshot
	for _, r := range regs {
		switch {
		case r.IsGuest() && r.Status == models.RegistrationStatusAccepted:
			s.Invitees = append(s.Invitees, r)
		case r.Status == models.RegistrationStatusAccepted, r.Status == models.RegistrationStatusInvited:
			s.Admitted = append(s.Admitted, r)
		case r.Status == models.RegistrationStatusRegistered:
			s.Pool = append(s.Pool, r)
		case r.Status == models.RegistrationStatusWaitlist:
			s.Waitlist = append(s.Waitlist, r)
		default:
			s.Left = append(s.Left, r)
		}
	}
	sort.SliceStable(s.Waitlist, func(i, j int) bool {
		return priority(s.Waitlist[i]) < priority(s.Waitlist[j])
	})
	return s
}

func priority(r models.Registration) int {
	if r.Priority == nil {
		return int(^uint(0) >> 1)
	}
	return *r.Priority
}

// ServeWs handles GET /dashboard/ws: upgrades and streams action entries.
func (h *Handler) ServeWs(c *gin.Context) {
	adminID, _ := c.Get(middleware.ContextUserID)
	id, _ := adminID.(int64)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := h.hub.newClient(id)
	client.conn = conn
	client.logger = h.logger
	h.hub.Register(client)
	go client.writePump()
	client.readPump()
}
