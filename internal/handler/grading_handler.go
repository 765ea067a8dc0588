package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/degun-osint/brainnotfound-go-api/internal/dto"
	"github.com/degun-osint/brainnotfound-go-api/internal/service"
	"github.com/degun-osint/brainnotfound-go-api/internal/utils"
)

// GradingHandler exposes quiz submission and grading endpoints.
type GradingHandler struct {
	service  service.GradingService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewGradingHandler constructs a handler instance.
func NewGradingHandler(gradingService service.GradingService, validate *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service:  gradingService,
		validate: validate,
		logger:   logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register binds the grading routes.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("/submit", h.submit)
	router.Get("/:id", h.get)
	router.Post("/:id/grade", h.startGrading)
	router.Post("/:id/regrade", h.regrade)
}

func (h *GradingHandler) submit(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var req dto.SubmitQuizRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := requestContext(c)
	view, err := h.service.Submit(ctx, userID, req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("quiz_id", req.QuizID).Msg("quiz submission failed")
		return sendServiceError(c, err)
	}

	// Grading starts right away; the response stays pending if it cannot,
	// and the explicit grade endpoint retries it.
	if err := h.service.StartGrading(ctx, view.ID); err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("response_id", view.ID).Msg("grading not started at submission")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "quiz submitted", view)
}

func (h *GradingHandler) get(c *fiber.Ctx) error {
	responseID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid response id")
	}

	view, err := h.service.GetResponse(requestContext(c), responseID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "response", view)
}

func (h *GradingHandler) startGrading(c *fiber.Ctx) error {
	responseID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid response id")
	}

	if err := h.service.StartGrading(requestContext(c), responseID); err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("response_id", responseID).Msg("failed to start grading")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "grading started", fiber.Map{"response_id": responseID})
}

func (h *GradingHandler) regrade(c *fiber.Ctx) error {
	responseID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid response id")
	}

	if err := h.service.Regrade(requestContext(c), responseID); err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("response_id", responseID).Msg("failed to start re-grade")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "re-grade started", fiber.Map{"response_id": responseID})
}
