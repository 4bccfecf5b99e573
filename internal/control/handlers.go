package control

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatpurge/internal/health"
	"github.com/p-blackswan/chatpurge/internal/purge"
	"github.com/p-blackswan/chatpurge/internal/requestid"
)

// Controls is the run-state surface exposed over HTTP.
type Controls interface {
	State() purge.RunState
	Pause() bool
	Resume() bool
	Toggle() purge.RunState
	Stop() bool
}

// StatusFunc returns the current run snapshot.
type StatusFunc func() purge.Snapshot

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	RunID     string `json:"run_id,omitempty"`
	Backend   string `json:"backend"`
	ChannelID string `json:"channel_id"`
	purge.Snapshot
}

// TransitionResponse is the body returned by the pause/resume/toggle/stop endpoints.
type TransitionResponse struct {
	State   purge.RunState `json:"state"`
	Changed bool           `json:"changed"`
}

// RunInfo identifies the run being controlled.
type RunInfo struct {
	RunID     string
	Backend   string
	ChannelID string
}

// Handlers serves the control endpoints.
type Handlers struct {
	controls Controls
	status   StatusFunc
	info     RunInfo
	checker  *health.Checker
	logger   zerolog.Logger
}

// NewHandlers creates control handlers. checker may be nil.
func NewHandlers(controls Controls, status StatusFunc, info RunInfo, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		controls: controls,
		status:   status,
		info:     info,
		checker:  checker,
		logger:   logger,
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker == nil {
		return c.JSON(health.Report{Ready: true, Checks: map[string]health.Status{}})
	}
	report := h.checker.Check(c.UserContext())
	if !report.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}

// Status handles GET /api/v1/status.
func (h *Handlers) Status(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		RunID:     h.info.RunID,
		Backend:   h.info.Backend,
		ChannelID: h.info.ChannelID,
		Snapshot:  h.status(),
	})
}

// Pause handles POST /api/v1/pause.
func (h *Handlers) Pause(c *fiber.Ctx) error {
	return h.transition(c, "pause", h.controls.Pause)
}

// Resume handles POST /api/v1/resume.
func (h *Handlers) Resume(c *fiber.Ctx) error {
	return h.transition(c, "resume", h.controls.Resume)
}

// Toggle handles POST /api/v1/toggle.
func (h *Handlers) Toggle(c *fiber.Ctx) error {
	if h.controls.State() == purge.Stopped {
		return h.conflict(c, "toggle")
	}
	state := h.controls.Toggle()
	logger := h.requestLogger(c)
	logger.Info().Str("state", state.String()).Msg("run toggled")
	return c.JSON(TransitionResponse{State: state, Changed: state != purge.Stopped})
}

// Stop handles POST /api/v1/stop. Stopping is asynchronous: the in-flight call
// finishes first, so the response is 202.
func (h *Handlers) Stop(c *fiber.Ctx) error {
	if !h.controls.Stop() {
		return h.conflict(c, "stop")
	}
	logger := h.requestLogger(c)
	logger.Info().Msg("stop requested")
	return c.Status(fiber.StatusAccepted).JSON(TransitionResponse{State: purge.Stopped, Changed: true})
}

func (h *Handlers) transition(c *fiber.Ctx, name string, fn func() bool) error {
	if !fn() {
		return h.conflict(c, name)
	}
	state := h.controls.State()
	logger := h.requestLogger(c)
	logger.Info().Str("state", state.String()).Msgf("run %s", name)
	return c.JSON(TransitionResponse{State: state, Changed: true})
}

func (h *Handlers) requestLogger(c *fiber.Ctx) zerolog.Logger {
	return h.logger.With().Str("request_id", requestid.FromContext(c.UserContext())).Logger()
}

func (h *Handlers) conflict(c *fiber.Ctx, name string) error {
	return problemResponse(c, fiber.StatusConflict,
		"invalid_transition", "Conflict",
		"cannot "+name+" a run that is "+h.controls.State().String())
}
