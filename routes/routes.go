package routes

import (
	"github.com/Dosada05/tournament-registrations/handlers"
	"github.com/Dosada05/tournament-registrations/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

func SetupRoutes(
	router *chi.Mux,
	authHandler *handlers.AuthHandler,
	registrationHandler *handlers.RegistrationHandler,
	moderationHandler *handlers.ModerationHandler,
	webSocketHandler *handlers.WebSocketHandler,
	jwtSecret []byte,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	router.Post("/auth/login", authHandler.LoginOperator)

	// Публичные маршруты: просмотр турниров и оформление заявки
	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", registrationHandler.ListTournaments)
		r.Get("/{tournamentID}", registrationHandler.GetTournament)
		r.Get("/{tournamentID}/registrations", registrationHandler.ListTournamentRegistrations)
		r.Post("/{tournamentID}/checkout", registrationHandler.StartCheckout)
	})

	router.Route("/checkout", func(r chi.Router) {
		r.Get("/{sessionID}", registrationHandler.GetCheckout)
		r.Post("/{sessionID}/registration", registrationHandler.SubmitRegistration)
		r.Post("/{sessionID}/evidence", registrationHandler.UploadEvidence)
		r.Post("/{sessionID}/confirm", registrationHandler.ConfirmPayment)
	})

	router.Get("/registrations/{registrationID}", registrationHandler.GetRegistration)

	// Realtime-подписки
	router.Get("/ws/registrations", webSocketHandler.ServeAllRegistrations)
	router.Get("/ws/registrations/{tournamentID}", webSocketHandler.ServeRegistrations)

	// Защищённые маршруты модераторской консоли
	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtSecret))
		r.Use(middleware.Authorize("admin"))

		r.Get("/registrations", moderationHandler.ListRegistrations)
		r.Post("/registrations/{registrationID}/approve", moderationHandler.ApproveRegistration)
		r.Post("/registrations/{registrationID}/reject", moderationHandler.RejectRegistration)
		r.Delete("/registrations/{registrationID}", moderationHandler.DeleteRegistration)
		r.Get("/registrations/{registrationID}/evidence", moderationHandler.GetEvidenceURL)
	})
}
