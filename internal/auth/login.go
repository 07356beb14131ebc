package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/custonfe/nfe-cost-service/internal/db"
	"github.com/custonfe/nfe-cost-service/internal/logger"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	EmpresaAlias string `json:"empresa_alias"`
	Email        string `json:"email"`
	Password     string `json:"password"`
}

// LoginResponse represents the successful login response
type LoginResponse struct {
	Token         string `json:"token"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Nombre        string `json:"nombre"`
	Rol           string `json:"rol"`
	EmpresaAlias  string `json:"empresa_alias"`
	EmpresaNombre string `json:"empresa_nombre"`
}

// LoginHandler handles user authentication
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.EmpresaAlias == "" || req.Email == "" || req.Password == "" {
		http.Error(w, `{"error":"empresa_alias, email and password are required"}`, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	user, err := db.VerifyLogin(ctx, req.EmpresaAlias, req.Email, req.Password)
	if errors.Is(err, db.ErrNoDatabase) {
		http.Error(w, `{"error":"authentication service unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		// No user found or wrong password
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	token, err := GenerateToken(user.UserID, user.Email, user.EmpresaAlias, user.EmpresaNombre, user.Rol)
	if err != nil {
		http.Error(w, `{"error":"failed to generate token"}`, http.StatusInternalServerError)
		return
	}

	// Update last login in background
	log := logger.FromContext(r.Context())
	go func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := db.RegisterLogin(ctx2, user.EmpresaAlias, user.UserID); err != nil {
			log.Warn("Failed to register login", zap.String("user_id", user.UserID), zap.Error(err))
		}
	}()

	json.NewEncoder(w).Encode(LoginResponse{
		Token:         token,
		UserID:        user.UserID,
		Email:         user.Email,
		Nombre:        user.Nombre,
		Rol:           user.Rol,
		EmpresaAlias:  user.EmpresaAlias,
		EmpresaNombre: user.EmpresaNombre,
	})
}
