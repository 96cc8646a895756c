package routes

import (
	"os"

	"github.com/avvvet/ludo-services/internal/socketsvc/handlers"
	"github.com/avvvet/ludo-services/internal/socketsvc/ws"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

func SetRoutes(r chi.Router, s *ws.Ws, tokenAuth *jwtauth.JWTAuth) {
	h := handlers.NewHandler(s)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthHandler)

		r.Group(func(r chi.Router) {
			// browsers cannot set headers on a websocket handshake
			r.Use(jwtauth.Verify(tokenAuth, jwtauth.TokenFromQuery, jwtauth.TokenFromHeader, jwtauth.TokenFromCookie))
			r.Use(jwtauth.Authenticator)

			r.Get("/ws", h.HandleWebSocket)
		})
	})
}

func InitAuth() *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(os.Getenv("JWT_SECRET_KEY")), nil)
}
