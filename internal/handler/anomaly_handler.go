package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/degun-osint/brainnotfound-go-api/internal/service"
	"github.com/degun-osint/brainnotfound-go-api/internal/utils"
)

// AnomalyHandler exposes the telemetry statistics and anomaly analysis
// endpoints used by teachers reviewing submissions.
type AnomalyHandler struct {
	service service.AnomalyService
	logger  zerolog.Logger
}

// NewAnomalyHandler constructs a handler instance.
func NewAnomalyHandler(anomalyService service.AnomalyService, logger zerolog.Logger) *AnomalyHandler {
	return &AnomalyHandler{
		service: anomalyService,
		logger:  logger.With().Str("component", "anomaly_handler").Logger(),
	}
}

// Register binds the anomaly routes.
func (h *AnomalyHandler) Register(router fiber.Router) {
	router.Get("/responses/:id/stats", h.stats)
	router.Post("/responses/:id/analyze", h.analyzeResponse)
	router.Post("/quizzes/:id/analyze", h.analyzeQuiz)
}

func (h *AnomalyHandler) stats(c *fiber.Ctx) error {
	responseID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid response id")
	}

	stats, err := h.service.ResponseStats(requestContext(c), responseID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "response statistics", stats)
}

func (h *AnomalyHandler) analyzeResponse(c *fiber.Ctx) error {
	responseID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid response id")
	}

	report, err := h.service.AnalyzeResponse(requestContext(c), responseID)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("response_id", responseID).Msg("response analysis failed")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "analysis complete", report)
}

func (h *AnomalyHandler) analyzeQuiz(c *fiber.Ctx) error {
	quizID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid quiz id")
	}

	if err := h.service.AnalyzeQuiz(requestContext(c), quizID); err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("quiz_id", quizID).Msg("failed to start cohort analysis")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "cohort analysis started", fiber.Map{"quiz_id": quizID})
}
