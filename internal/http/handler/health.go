package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"meddocs/internal/database"
	"meddocs/internal/http/middleware"
)

const healthTimeout = 2 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	Database string `json:"database" example:"connected"`
	Error    string `json:"error,omitempty"`
}

// HealthCheck godoc
//
//	@Summary		Database health
//	@Description	Runs SELECT NOW() against the metadata database.
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		500	{object}	HealthResponse
//	@Router			/health [get]
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()

		if _, err := database.Now(ctx, db); err != nil {
			c.Locals(middleware.ErrorLocalKey, err)
			return c.Status(fiber.StatusInternalServerError).JSON(HealthResponse{
				Status:   "unhealthy",
				Database: "disconnected",
				Error:    err.Error(),
			})
		}
		return c.JSON(HealthResponse{Status: "healthy", Database: "connected"})
	}
}

// LivenessProbe answers 200 without touching any dependency.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// APIInfo godoc
//
//	@Summary	API banner
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	MessageResponse
//	@Router		/api [get]
func APIInfo() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(MessageResponse{Message: "Medical Documents API is running"})
	}
}
