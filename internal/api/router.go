package api

import (
	"net/http"
	"time"

	"docutalk-backend/internal/config"
	"docutalk-backend/internal/handlers"
	"docutalk-backend/internal/metrics"
	"docutalk-backend/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	AuthHandler        *handlers.AuthHandler
	UserHandler        *handlers.UserHandler
	ChatbotHandler     *handlers.ChatbotHandlers
	DocumentHandler    *handlers.DocumentHandlers
	AccessHandler      *handlers.AccessHandlers
	ChatHandler        *handlers.ChatHandlers
	CredentialsHandler *handlers.CredentialsHandler
	Config             *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		if deps.AuthHandler == nil {
			panic("AuthHandler dependency is nil in router setup")
		}
		r.Use(middleware.Timeout(60 * time.Second))
		r.Post("/signup", deps.AuthHandler.HandleSignup)
		r.Post("/login", deps.AuthHandler.HandleLogin)
		r.Post("/guest", deps.AuthHandler.HandleGuest)
		r.Post("/logout", deps.AuthHandler.HandleLogout)
		r.Get("/oauth/{provider}/login", deps.AuthHandler.HandleOAuthLogin)
		r.Get("/oauth/{provider}/callback", deps.AuthHandler.HandleOAuthCallback)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(JwtAuthMiddleware(deps.Config.Auth.JWTSecret, deps.Config.Auth.CookieName))

		if deps.UserHandler != nil {
			r.Route("/me", func(r chi.Router) {
				r.Get("/", deps.UserHandler.HandleGetMe)
				r.Delete("/", deps.UserHandler.HandleDeleteMe)
				r.Post("/terms-of-use", deps.UserHandler.HandleAcceptTerms)
				r.Get("/credits", deps.UserHandler.HandleCredits)
			})
		} else {
			logger.Warn("[Router] UserHandler dependency is nil, skipping /v1/me routes")
		}

		r.Route("/chatbots", func(r chi.Router) {
			if deps.ChatbotHandler != nil {
				r.Post("/", deps.ChatbotHandler.CreateChatbot)
				r.Get("/", deps.ChatbotHandler.ListChatbots)
				r.Get("/{chatbotID}", deps.ChatbotHandler.GetChatbot)
				r.Patch("/{chatbotID}", deps.ChatbotHandler.UpdateChatbot)
				r.Delete("/{chatbotID}", deps.ChatbotHandler.DeleteChatbot)
				r.Get("/{chatbotID}/icon", deps.ChatbotHandler.GetIcon)
				r.Put("/{chatbotID}/icon", deps.ChatbotHandler.SetIcon)
				r.Put("/{chatbotID}/prompts/{promptID}", deps.ChatbotHandler.UpdatePrompt)
				r.Post("/{chatbotID}/public-request", deps.ChatbotHandler.RequestPublic)
			} else {
				logger.Warn("[Router] ChatbotHandler dependency is nil, skipping chatbot routes")
			}

			if deps.DocumentHandler != nil {
				r.Get("/{chatbotID}/documents", deps.DocumentHandler.ListDocuments)
				r.Post("/{chatbotID}/documents", deps.DocumentHandler.UploadDocuments)
				r.Post("/{chatbotID}/documents/notion", deps.DocumentHandler.ImportNotionPage)
				r.Delete("/{chatbotID}/documents/{filename}", deps.DocumentHandler.DeleteDocument)
			} else {
				logger.Warn("[Router] DocumentHandler dependency is nil, skipping document routes")
			}

			if deps.AccessHandler != nil {
				r.Get("/{chatbotID}/access", deps.AccessHandler.ListAccess)
				r.Post("/{chatbotID}/access", deps.AccessHandler.ShareChatbot)
				r.Delete("/{chatbotID}/access/{email}", deps.AccessHandler.RemoveAccess)
			} else {
				logger.Warn("[Router] AccessHandler dependency is nil, skipping access routes")
			}

			if deps.ChatHandler != nil {
				r.Post("/{chatbotID}/conversations", deps.ChatHandler.HandleStartConversation)
			}
		})

		if deps.ChatHandler != nil {
			r.Route("/conversations/{conversationID}", func(r chi.Router) {
				r.Get("/", deps.ChatHandler.HandleGetConversation)
				r.Post("/ask", deps.ChatHandler.HandleAsk)
				r.Post("/sources", deps.ChatHandler.HandleSources)
				r.Delete("/messages", deps.ChatHandler.HandleResetConversation)
			})
			r.Post("/estimates", deps.ChatHandler.HandleEstimate)
		} else {
			logger.Warn("[Router] ChatHandler dependency is nil, skipping conversation routes")
		}

		if deps.CredentialsHandler != nil {
			r.Route("/credentials", func(r chi.Router) {
				r.Post("/", deps.CredentialsHandler.HandleCreateCredential)
				r.Get("/", deps.CredentialsHandler.HandleListCredentials)
				r.Get("/{credentialID}", deps.CredentialsHandler.HandleGetCredential)
				r.Delete("/{credentialID}", deps.CredentialsHandler.HandleDeleteCredential)
				r.Post("/{credentialID}/test", deps.CredentialsHandler.HandleTestCredential)
			})
		} else {
			logger.Warn("[Router] CredentialsHandler dependency is nil, skipping /v1/credentials routes")
		}
	})

	return r
}
