package authtest

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/MrEthical07/authclient/internal"
)

// Default endpoint paths.
const (
	PathLogin    = "/api/auth/login"
	PathRegister = "/api/auth/register"
	PathRefresh  = "/api/auth/refresh"
	PathMe       = "/api/auth/me"
	PathProjects = "/api/projects"
)

// User is a registered account as the backend reports it.
type User struct {
	ID        uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// Pair is an issued token pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Project is the sample protected resource.
type Project struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Owner string    `json:"owner"`
}

// Stats counts requests by endpoint and outcome.
type Stats struct {
	Logins          int64
	LoginFailures   int64
	Registrations   int64
	// RefreshRequests counts arrivals at the refresh endpoint, before any hold or delay.
	RefreshRequests int64
	Refreshes       int64
	RefreshFailures int64
	Protected       int64
	Unauthorized    int64
}

// refreshRecord is what the server keeps per outstanding refresh token: never the token itself.
type refreshRecord struct {
	username string
	hash     [32]byte
}

type account struct {
	user User
	hash string
}

type tokenResponse struct {
	Pair
	User *User `json:"user,omitempty"`
}

// Server is the in-process backend. The zero value is not usable; call NewServer.
type Server struct {
	srv    *httptest.Server
	tokens *tokenIssuer

	mu       sync.Mutex
	accounts map[string]*account
	refresh  map[internal.TokenID]refreshRecord
	projects []Project

	epoch         atomic.Uint64
	rejectRefresh atomic.Bool
	refreshDelay  atomic.Int64
	holdMu        sync.Mutex
	hold          chan struct{}
	lastAuth      atomic.Value

	logins          atomic.Int64
	loginFailures   atomic.Int64
	registrations   atomic.Int64
	refreshRequests atomic.Int64
	refreshes       atomic.Int64
	refreshFailures atomic.Int64
	protected       atomic.Int64
	unauthorized    atomic.Int64
}

// Option configures a Server.
type Option func(*options)

type options struct {
	accessTTL time.Duration
}

// WithAccessTTL sets the access token lifetime. Default 15 minutes.
func WithAccessTTL(d time.Duration) Option {
	return func(o *options) { o.accessTTL = d }
}

// NewServer starts a backend on a loopback listener. Call Close when done.
func NewServer(opts ...Option) *Server {
	o := options{accessTTL: 15 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("authtest: secret: %v", err))
	}
	ti, err := newTokenIssuer(secret, o.accessTTL)
	if err != nil {
		panic(fmt.Sprintf("authtest: %v", err))
	}

	s := &Server{
		tokens:   ti,
		accounts: make(map[string]*account),
		refresh:  make(map[internal.TokenID]refreshRecord),
	}
	s.lastAuth.Store("")
	s.srv = httptest.NewServer(s.Router())
	return s
}

// URL is the base URL of the server.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the listener down.
func (s *Server) Close() {
	s.releaseHold()
	s.srv.Close()
}

// Router returns the mux serving every endpoint, for mounting in another server.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(PathLogin, s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc(PathRegister, s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc(PathRefresh, s.handleRefresh).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireBearer)
	api.HandleFunc(PathMe, s.handleMe).Methods(http.MethodGet)
	api.HandleFunc(PathProjects, s.handleListProjects).Methods(http.MethodGet)
	api.HandleFunc(PathProjects, s.handleCreateProject).Methods(http.MethodPost)
	api.HandleFunc(PathProjects+"/{id}", s.handleGetProject).Methods(http.MethodGet)
	return r
}

/*
====================================
CONTROLS
====================================
*/

// AddUser registers an account directly.
func (s *Server) AddUser(username, password, email string) (User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[username]; ok {
		return User{}, fmt.Errorf("user %q exists", username)
	}
	u := User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
	s.accounts[username] = &account{user: u, hash: hash}
	return u, nil
}

// IssuePair mints a pair for an existing user without a login round-trip.
func (s *Server) IssuePair(username string) (Pair, error) {
	s.mu.Lock()
	acc, ok := s.accounts[username]
	s.mu.Unlock()
	if !ok {
		return Pair{}, fmt.Errorf("unknown user %q", username)
	}
	return s.issue(acc.user)
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.epoch.Add(1)
}

// RevokeRefreshTokens invalidates every outstanding refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	s.refresh = make(map[internal.TokenID]refreshRecord)
	s.mu.Unlock()
}

// SetRejectRefresh makes the refresh endpoint answer 401 regardless of the token.
func (s *Server) SetRejectRefresh(reject bool) {
	s.rejectRefresh.Store(reject)
}

// SetRefreshDelay delays every refresh response by d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// HoldRefresh blocks refresh responses until the returned release func is called.
func (s *Server) HoldRefresh() (release func()) {
	s.holdMu.Lock()
	defer s.holdMu.Unlock()
	if s.hold == nil {
		s.hold = make(chan struct{})
	}
	return s.releaseHold
}

func (s *Server) releaseHold() {
	s.holdMu.Lock()
	defer s.holdMu.Unlock()
	if s.hold != nil {
		close(s.hold)
		s.hold = nil
	}
}

func (s *Server) waitHold() {
	s.holdMu.Lock()
	ch := s.hold
	s.holdMu.Unlock()
	if ch != nil {
		<-ch
	}
}

// LastAuthorization is the Authorization header of the most recent protected request.
func (s *Server) LastAuthorization() string {
	return s.lastAuth.Load().(string)
}

// Stats returns a copy of the request counters.
func (s *Server) Stats() Stats {
	return Stats{
		Logins:          s.logins.Load(),
		LoginFailures:   s.loginFailures.Load(),
		Registrations:   s.registrations.Load(),
		RefreshRequests: s.refreshRequests.Load(),
		Refreshes:       s.refreshes.Load(),
		RefreshFailures: s.refreshFailures.Load(),
		Protected:       s.protected.Load(),
		Unauthorized:    s.unauthorized.Load(),
	}
}

/*
====================================
AUTH ENDPOINTS
====================================
*/

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid form body")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	s.mu.Lock()
	acc, ok := s.accounts[username]
	s.mu.Unlock()

	if ok {
		if match, err := verifyPassword(password, acc.hash); err == nil && match {
			s.logins.Add(1)
			s.respondWithPair(w, http.StatusOK, acc.user)
			return
		}
	}
	s.loginFailures.Add(1)
	writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
}

type registerBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid JSON body")
		return
	}
	if errs := validateRegister(body); len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": errs})
		return
	}

	u, err := s.AddUser(body.Username, body.Password, body.Email)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Username already registered")
		return
	}
	s.registrations.Add(1)
	s.respondWithPair(w, http.StatusOK, u)
}

func validateRegister(b registerBody) []fieldError {
	var errs []fieldError
	if n := len(b.Username); n < 3 || n > 50 {
		errs = append(errs, fieldError{Loc: []string{"body", "username"}, Msg: "Username must be 3-50 characters", Type: "value_error"})
	}
	if n := len(b.Password); n < 6 || n > 100 {
		errs = append(errs, fieldError{Loc: []string{"body", "password"}, Msg: "Password must be 6-100 characters", Type: "value_error"})
	}
	if b.Email != "" {
		if _, err := mail.ParseAddress(b.Email); err != nil {
			errs = append(errs, fieldError{Loc: []string{"body", "email"}, Msg: "Invalid email address", Type: "value_error"})
		}
	}
	return errs
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshRequests.Add(1)
	s.waitHold()
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		time.Sleep(d)
	}

	var body refreshBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		s.refreshFailures.Add(1)
		writeDetail(w, http.StatusUnprocessableEntity, "refresh_token is required")
		return
	}
	if s.rejectRefresh.Load() {
		s.refreshFailures.Add(1)
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	var acc *account
	id, hash, err := internal.DecodeRefreshToken(body.RefreshToken)
	ok := err == nil
	if ok {
		s.mu.Lock()
		rec, found := s.refresh[id]
		ok = found && internal.HashesEqual(rec.hash, hash)
		if ok {
			delete(s.refresh, id)
			acc = s.accounts[rec.username]
		}
		s.mu.Unlock()
	}

	if !ok || acc == nil {
		s.refreshFailures.Add(1)
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	s.refreshes.Add(1)
	s.respondWithPair(w, http.StatusOK, acc.user)
}

func (s *Server) respondWithPair(w http.ResponseWriter, status int, u User) {
	pair, err := s.issue(u)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, status, tokenResponse{Pair: pair, User: &u})
}

func (s *Server) issue(u User) (Pair, error) {
	access, err := s.tokens.createAccess(u.Username, u.ID, s.epoch.Load())
	if err != nil {
		return Pair{}, err
	}
	refresh, err := internal.NewRefreshToken()
	if err != nil {
		return Pair{}, err
	}

	s.mu.Lock()
	s.refresh[refresh.ID] = refreshRecord{username: u.Username, hash: refresh.Hash}
	s.mu.Unlock()

	return Pair{AccessToken: access, RefreshToken: refresh.Token, TokenType: "bearer"}, nil
}

/*
====================================
PROTECTED ENDPOINTS
====================================
*/

type ctxUserKey struct{}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.protected.Add(1)
		header := r.Header.Get("Authorization")
		s.lastAuth.Store(header)

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.unauthorized.Add(1)
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		claims, err := s.tokens.parseAccess(token)
		if err != nil || claims.Epoch != s.epoch.Load() {
			s.unauthorized.Add(1)
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		s.mu.Lock()
		acc, ok := s.accounts[claims.Subject]
		s.mu.Unlock()
		if !ok {
			s.unauthorized.Add(1)
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), acc.user)))
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	owner := userFrom(r.Context()).Username

	s.mu.Lock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		if p.Owner == owner {
			out = append(out, p)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "name is required")
		return
	}

	p := Project{ID: uuid.New(), Name: body.Name, Owner: userFrom(r.Context()).Username}
	s.mu.Lock()
	s.projects = append(s.projects, p)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Project not found")
		return
	}
	owner := userFrom(r.Context()).Username

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == id && p.Owner == owner {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Project not found")
}

// ProjectCount reports how many projects have been created.
func (s *Server) ProjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.projects)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
