package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/finchat/internal/access"
)

const stateCookie = "finchat_oauth_state"

// LoginAuditor receives successful sign-ins for the audit trail.
type LoginAuditor interface {
	Login(ctx context.Context, userID string, role access.Role, method string)
}

// RegisterRoutes mounts the authentication API. Login and the SSO flow
// are public; logout and me require a session. auditor may be nil.
func RegisterRoutes(r chi.Router, store *Store, google GoogleConfig, auditor LoginAuditor) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", handleLogin(store, auditor))
		r.Get("/google", handleGoogleLogin(google))
		r.Get("/google/callback", handleGoogleCallback(store, google, auditor))

		r.Group(func(r chi.Router) {
			r.Use(Middleware(store))
			r.Post("/logout", handleLogout(store))
			r.Get("/me", handleMe())
		})
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

func handleLogin(store *Store, auditor LoginAuditor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Password == "" {
			http.Error(w, `{"error":"email and password are required"}`, http.StatusBadRequest)
			return
		}

		user, err := store.Authenticate(r.Context(), req.Email, req.Password)
		if errors.Is(err, ErrInvalidCredentials) {
			http.Error(w, `{"error":"invalid email or password"}`, http.StatusUnauthorized)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		sess, err := store.CreateSession(r.Context(), user.ID)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if auditor != nil {
			auditor.Login(r.Context(), user.ID, user.Role, "password")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(loginResponse{
			Token:     sess.Token,
			ExpiresAt: sess.ExpiresAt,
			User:      user,
		})
	}
}

func handleLogout(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteSession(r.Context(), RequestToken(r)); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(user)
	}
}

func handleGoogleLogin(google GoogleConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !google.Enabled() {
			http.Error(w, `{"error":"google sso is not configured"}`, http.StatusNotFound)
			return
		}
		state, err := randomToken()
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookie,
			Value:    state,
			Path:     "/",
			MaxAge:   600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, google.oauthConfig().AuthCodeURL(state), http.StatusFound)
	}
}

func handleGoogleCallback(store *Store, google GoogleConfig, auditor LoginAuditor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !google.Enabled() {
			http.Error(w, `{"error":"google sso is not configured"}`, http.StatusNotFound)
			return
		}

		cookie, err := r.Cookie(stateCookie)
		if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
			http.Error(w, `{"error":"state mismatch"}`, http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

		code := r.URL.Query().Get("code")
		if code == "" {
			msg := r.URL.Query().Get("error")
			if msg == "" {
				msg = "no authorization code received"
			}
			http.Error(w, `{"error":"`+msg+`"}`, http.StatusBadRequest)
			return
		}

		info, err := fetchGoogleUser(r.Context(), google.oauthConfig(), code)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadGateway)
			return
		}
		if !info.VerifiedEmail {
			http.Error(w, `{"error":"email is not verified"}`, http.StatusForbidden)
			return
		}

		// SSO maps onto existing accounts only.
		user, err := store.GetUserByEmail(r.Context(), info.Email)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if user == nil || !user.Active {
			http.Error(w, `{"error":"no account for this email"}`, http.StatusForbidden)
			return
		}

		sess, err := store.CreateSession(r.Context(), user.ID)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if auditor != nil {
			auditor.Login(r.Context(), user.ID, user.Role, "google")
		}

		// The token rides the URL fragment so it never reaches server logs.
		http.Redirect(w, r, "/#token="+sess.Token, http.StatusFound)
	}
}
