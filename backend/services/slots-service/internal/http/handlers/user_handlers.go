package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chargegrid/backend/services/slots-service/internal/models"
	"chargegrid/backend/services/slots-service/internal/service"
)

// UserService is the user lookup and login contract.
type UserService interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
}

// NewLoginHandler handles POST /api/login.
func NewLoginHandler(users UserService) http.HandlerFunc {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	type response struct {
		Status    string `json:"status"`
		Message   string `json:"message"`
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
		Role      string `json:"role"`
		Dashboard string `json:"dashboard"`
		UserID    string `json:"user_id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		session, err := users.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeServiceError(w, err, "failed to login")
			return
		}

		writeJSON(w, http.StatusOK, response{
			Status:    statusSuccess,
			Message:   "Login successful",
			Token:     session.Token,
			TokenType: session.TokenType,
			Role:      session.User.Role,
			Dashboard: session.Dashboard,
			UserID:    session.User.ID,
			FirstName: session.User.FirstName,
			LastName:  session.User.LastName,
		})
	}
}

// NewGetUserHandler handles GET /api/user/{email}.
func NewGetUserHandler(users UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := users.GetByEmail(r.Context(), chi.URLParam(r, "email"))
		if err != nil {
			writeServiceError(w, err, "failed to fetch user")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": statusSuccess, "user": user})
	}
}
