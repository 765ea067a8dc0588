package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/degun-osint/brainnotfound-go-api/internal/dto"
	"github.com/degun-osint/brainnotfound-go-api/internal/service"
	"github.com/degun-osint/brainnotfound-go-api/internal/utils"
)

// InterviewHandler exposes the live interview session endpoints.
type InterviewHandler struct {
	service  service.InterviewService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewInterviewHandler constructs a handler instance.
func NewInterviewHandler(interviewService service.InterviewService, validate *validator.Validate, logger zerolog.Logger) *InterviewHandler {
	return &InterviewHandler{
		service:  interviewService,
		validate: validate,
		logger:   logger.With().Str("component", "interview_handler").Logger(),
	}
}

// Register binds the interview routes.
func (h *InterviewHandler) Register(router fiber.Router) {
	router.Post("/sessions", h.start)
	router.Get("/sessions/:id", h.get)
	router.Post("/sessions/:id/messages", h.advance)
	router.Post("/sessions/:id/end", h.end)
	router.Post("/sessions/:id/evaluate", h.evaluate)
}

func (h *InterviewHandler) start(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var req dto.StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	view, err := h.service.Start(requestContext(c), userID, req.InterviewID)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("interview_id", req.InterviewID).Msg("failed to start session")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "session started", view)
}

func (h *InterviewHandler) get(c *fiber.Ctx) error {
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid session id")
	}

	view, err := h.service.GetSession(requestContext(c), sessionID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "session", view)
}

func (h *InterviewHandler) advance(c *fiber.Ctx) error {
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid session id")
	}

	var req dto.AdvanceSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	view, err := h.service.Advance(requestContext(c), sessionID, req)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("session_id", sessionID).Msg("failed to advance session")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "message processed", view)
}

func (h *InterviewHandler) end(c *fiber.Ctx) error {
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid session id")
	}

	view, err := h.service.EndByStudent(requestContext(c), sessionID)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("session_id", sessionID).Msg("failed to end session")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "session ended", view)
}

func (h *InterviewHandler) evaluate(c *fiber.Ctx) error {
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid session id")
	}

	if err := h.service.RequestEvaluation(requestContext(c), sessionID); err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("session_id", sessionID).Msg("failed to request evaluation")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "evaluation started", fiber.Map{"session_id": sessionID})
}
