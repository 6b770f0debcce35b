package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/supermarks-api/internal/config"
	"github.com/noah-isme/supermarks-api/internal/handler"
	"github.com/noah-isme/supermarks-api/internal/middleware"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ExamHandler       *handler.ExamHandler
	SubmissionHandler *handler.SubmissionHandler
	PipelineHandler   *handler.PipelineHandler
	AnswerKeyHandler  *handler.AnswerKeyHandler
	HealthProbes      map[string]handler.HealthProbe
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Reads are open to every operator; writes need an examiner
	writeGuard := middleware.RequireRoleForWrites(middleware.RoleAdmin, middleware.RoleExaminer)

	// Exams, questions, answer keys & uploads
	if deps.ExamHandler != nil {
		exams := api.Group("/exams", jwtMiddleware, writeGuard)
		deps.ExamHandler.Register(exams)
		if deps.SubmissionHandler != nil {
			deps.SubmissionHandler.RegisterExamRoutes(exams)
		}
		if deps.AnswerKeyHandler != nil {
			deps.AnswerKeyHandler.Register(exams)
		}

		questions := api.Group("/questions", jwtMiddleware, writeGuard)
		deps.ExamHandler.RegisterQuestions(questions)
	}

	// Submissions & pipeline stages
	submissions := api.Group("/submissions", jwtMiddleware, writeGuard, middleware.RateLimit("stages", cfg.StageRateLimit, time.Minute))
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(submissions)
	}
	if deps.PipelineHandler != nil {
		deps.PipelineHandler.Register(submissions)
	}
}
