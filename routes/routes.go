package routes

import (
	"log"
	"os"

	controller "stayflow/controllers"
	"stayflow/middleware"
	"stayflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

// SetupRoutes wires the engine's HTTP surface: trigger ingestion, the
// cron-invoked dispatch endpoint, the public unsubscribe link and the
// operator/admin API.
func SetupRoutes(app *fiber.App, db *gorm.DB, transport utils.MailTransport) *controller.DispatchController {
	triggerController := controller.NewTriggerController(db, log.New(os.Stdout, "TRIGGER: ", log.LstdFlags))
	dispatchController := controller.NewDispatchController(db, transport, log.New(os.Stdout, "DISPATCH: ", log.LstdFlags))
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	contactController := controller.NewContactController(db, log.New(os.Stdout, "CONTACT: ", log.LstdFlags))
	enrollmentController := controller.NewEnrollmentController(db, log.New(os.Stdout, "ENROLLMENT: ", log.LstdFlags))

	// Cron endpoints, guarded by the shared secret
	cron := app.Group("/cron", middleware.CronProtected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	cron.Post("/dispatch", dispatchController.RunDispatch)

	// Public unsubscribe link embedded in every email
	app.Post("/unsubscribe/:token", contactController.UnsubscribeByToken)
	app.Get("/unsubscribe/:token", contactController.UnsubscribeByToken)

	// API group for the rest of the platform and operators
	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	api.Post("/triggers", middleware.TriggerRateLimiter(), triggerController.NotifyTrigger)

	sequences := api.Group("/sequences")
	sequences.Get("/", sequenceController.ListSequences)
	sequences.Post("/", sequenceController.CreateSequence)
	sequences.Post("/:id/activate", sequenceController.ActivateSequence)
	sequences.Post("/:id/deactivate", sequenceController.DeactivateSequence)
	sequences.Get("/:id/stats", sequenceController.GetSequenceStats)

	contacts := api.Group("/contacts")
	contacts.Get("/:id", contactController.GetContact)
	contacts.Post("/:id/unsubscribe", contactController.Unsubscribe)

	enrollments := api.Group("/enrollments")
	enrollments.Get("/:id", enrollmentController.GetEnrollment)
	enrollments.Patch("/:id", enrollmentController.UpdateEnrollment)

	return dispatchController
}
