package routes

import (
	"github.com/DiFlector/kgb-pulse/handlers"
	appMiddleware "github.com/DiFlector/kgb-pulse/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

// SetupRoutes настраивает все HTTP-маршруты приложения.
func SetupRoutes(
	router *chi.Mux,
	auth *appMiddleware.Authenticator,
	registrationHandler *handlers.RegistrationHandler,
	crewHandler *handlers.CrewHandler,
	protocolHandler *handlers.ProtocolHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/swagger/*", httpSwagger.Handler())

	router.Route("/events/{eventID}", func(r chi.Router) {
		// Публичные маршруты для просмотра
		r.Get("/registrations", registrationHandler.ListByEventHandler)
		r.Get("/crews", crewHandler.ListByEventHandler)
		r.Get("/protocols", protocolHandler.ListByEventHandler)

		r.Post("/registrations", registrationHandler.CreateHandler)

		// Защищённые маршруты только для администраторов
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(appMiddleware.Authorize("admin"))

			r.Post("/costs/recalculate", registrationHandler.RecalculateCostsHandler)
			r.Post("/protocols", protocolHandler.BuildHandler)
		})
	})

	router.Route("/registrations/{registrationID}", func(r chi.Router) {
		r.Get("/", registrationHandler.GetByIDHandler)
		r.Post("/payment", registrationHandler.ConfirmPaymentHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(appMiddleware.Authorize("admin"))

			r.Patch("/status", registrationHandler.UpdateStatusHandler)
			r.Delete("/crew", crewHandler.RemoveMemberHandler)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(appMiddleware.Authorize("admin"))

		r.Post("/crews/merge", crewHandler.MergeHandler)
		r.Patch("/protocols/{key}/lanes/{lane}", protocolHandler.UpdateLaneHandler)
	})

	router.Get("/protocols/{key}", protocolHandler.GetByKeyHandler)
	router.Get("/ws/protocols/{key}", webSocketHandler.ServeWs)
}
