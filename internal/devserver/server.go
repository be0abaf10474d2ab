package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"sustainamind/carbontrack/internal/backend"
)

type Config struct {
	Addr            string
	JWTSecret       string
	TokenTTL        time.Duration
	EstimateExpr    string
	RequireToken    bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	httpServer *http.Server
}

func New(cfg Config, store *Store, logger *slog.Logger) (*Server, error) {
	handler, err := NewHandler(cfg, store, logger)
	if err != nil {
		return nil, err
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type api struct {
	store        *Store
	tokens       tokenIssuer
	estimator    *Estimator
	requireToken bool
	nowFunc      func() time.Time
	log          *slog.Logger
}

func NewHandler(cfg Config, store *Store, logger *slog.Logger) (http.Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token TTL must be > 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	est, err := NewEstimator(cfg.EstimateExpr)
	if err != nil {
		return nil, err
	}

	a := &api{
		store:        store,
		tokens:       tokenIssuer{secret: []byte(cfg.JWTSecret), ttl: cfg.TokenTTL, nowFunc: time.Now},
		estimator:    est,
		requireToken: cfg.RequireToken,
		nowFunc:      time.Now,
		log:          logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/signup", a.signUp).Methods(http.MethodPost)
	r.HandleFunc("/login", a.login).Methods(http.MethodPost)
	r.HandleFunc("/forgot-password", a.forgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/change-password", a.changePassword).Methods(http.MethodPost)
	r.HandleFunc("/history/clear/{username}", a.clearHistory).Methods(http.MethodDelete)
	r.HandleFunc("/history/{username}", a.history).Methods(http.MethodGet)
	r.HandleFunc("/predict", a.predict).Methods(http.MethodPost)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.Use(loggingMiddleware(logger))

	return r, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
}

type historyItem struct {
	ID          int     `json:"id"`
	CarbonValue float64 `json:"carbon_value"`
	Details     *string `json:"details"`
	Timestamp   string  `json:"timestamp"`
	UserID      int     `json:"user_id"`
}

func (a *api) signUp(w http.ResponseWriter, r *http.Request) {
	var req backend.SignUpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Signup failed: "+err.Error())
		return
	}
	u, err := a.store.CreateUser(User{
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	})
	switch {
	case errors.Is(err, ErrUsernameTaken):
		writeDetail(w, http.StatusBadRequest, "Username already taken")
		return
	case errors.Is(err, ErrEmailTaken):
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	case err != nil:
		writeDetail(w, http.StatusInternalServerError, "Signup failed: "+err.Error())
		return
	}
	a.writeToken(w, u)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req backend.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := a.store.UserByEmail(req.Email)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	a.writeToken(w, u)
}

func (a *api) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req backend.ForgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := a.store.UserByEmailAndUsername(req.Email, req.Username)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "No account found with this Email and Username")
		return
	}
	if !a.setPassword(w, u.ID, req.NewPassword) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

func (a *api) changePassword(w http.ResponseWriter, r *http.Request) {
	var req backend.ChangePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !a.authorize(w, r, req.Username) {
		return
	}
	u, err := a.store.UserByUsername(req.Username)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.CurrentPassword)) != nil {
		writeDetail(w, http.StatusBadRequest, "Incorrect current password")
		return
	}
	if !a.setPassword(w, u.ID, req.NewPassword) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if !a.authorize(w, r, username) {
		return
	}
	u, err := a.store.UserByUsername(username)
	if err != nil {
		writeJSON(w, http.StatusOK, []historyItem{})
		return
	}
	records := a.store.Records(u.ID)
	out := make([]historyItem, 0, len(records))
	for _, rec := range records {
		out = append(out, historyItem{
			ID:          rec.ID,
			CarbonValue: rec.CarbonValue,
			Details:     rec.Details,
			Timestamp:   rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000000"),
			UserID:      rec.UserID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) clearHistory(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if !a.authorize(w, r, username) {
		return
	}
	u, err := a.store.UserByUsername(username)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	n := a.store.DeleteRecords(u.ID)
	a.log.Info("history cleared", "username", username, "deleted", n)
	writeJSON(w, http.StatusOK, map[string]string{"message": "History cleared successfully"})
}

func (a *api) predict(w http.ResponseWriter, r *http.Request) {
	var req backend.CarbonInput
	if !decodeBody(w, r, &req) {
		return
	}
	value, err := a.estimator.Estimate(req)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.UserID != "" {
		if !a.authorize(w, r, req.UserID) {
			return
		}
		if u, err := a.store.UserByUsername(req.UserID); err == nil {
			inputs := req
			inputs.UserID = ""
			b, err := json.Marshal(inputs)
			if err != nil {
				writeDetail(w, http.StatusInternalServerError, "encode details: "+err.Error())
				return
			}
			details := string(b)
			a.store.AddRecord(Record{
				UserID:      u.ID,
				CarbonValue: value,
				Details:     &details,
				Timestamp:   a.nowFunc().UTC(),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]float64{"predicted_carbon_footprint": value})
}

func (a *api) writeToken(w http.ResponseWriter, u User) {
	token, err := a.tokens.Issue(u.Username)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Name:        u.Name,
		Username:    u.Username,
		Email:       u.Email,
	})
}

func (a *api) setPassword(w http.ResponseWriter, userID int, password string) bool {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "hash password failed")
		return false
	}
	if err := a.store.SetPasswordHash(userID, string(hash)); err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return false
	}
	return true
}

// authorize checks the bearer token belongs to username. It is the server-side
// counterpart of the client's route guard and the only one that matters.
func (a *api) authorize(w http.ResponseWriter, r *http.Request, username string) bool {
	if !a.requireToken {
		return true
	}
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return false
	}
	subject, err := a.tokens.Subject(token)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return false
	}
	if subject != username {
		writeDetail(w, http.StatusForbidden, "Forbidden")
		return false
	}
	return true
}

func extractBearerToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// decodeBody mirrors the backend's request validation: a body that does not
// decode yields 422 with a list-valued detail.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{
				"loc":  []string{"body"},
				"msg":  err.Error(),
				"type": "value_error",
			}},
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", reqID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"rid", reqID,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
