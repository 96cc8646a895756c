package handlers

import (
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthHandler)

		// operator routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)
			r.Use(httprate.LimitByIP(10, time.Minute))

			r.Post("/tournaments/{id}/cancel", h.CancelTournament)
			r.Post("/tournaments/{id}/close", h.CloseTournament)
		})
	})
}

func InitAuth() *jwtauth.JWTAuth {
	jwtKey := os.Getenv("JWT_SECRET_KEY")
	tokenAuth := jwtauth.New("HS256", []byte(jwtKey), nil)

	if os.Getenv("JWT_DEBUG_TOKEN") == "true" {
		expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()
		_, tokenString, _ := tokenAuth.Encode(map[string]interface{}{
			"service_id": 8003022,
			"exp":        expirationTime,
		})
		log.Infof("DEBUG: JWT for testing expires soon : %s", tokenString)
	}
	return tokenAuth
}
