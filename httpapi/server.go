package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	exuberant "github.com/exuberant-im/exuberant"
)

// Config controls the HTTP surface around an [exuberant.Engine].
type Config struct {
	// CookieName is the session cookie name. Defaults to "exuberant_session".
	CookieName string
	// CookieMaxAge bounds the cookie lifetime. Defaults to 30 days; keep it
	// aligned with the engine's session lifetime.
	CookieMaxAge time.Duration
	// SecureCookie marks the cookie Secure. On for anything but local dev.
	SecureCookie bool
}

func (c Config) withDefaults() Config {
	if c.CookieName == "" {
		c.CookieName = "exuberant_session"
	}
	if c.CookieMaxAge == 0 {
		c.CookieMaxAge = 30 * 24 * time.Hour
	}
	return c
}

// Server exposes the engine's operations as a one-action-per-call JSON
// API. Every response carries an "ok" flag; failures add a stable error
// code and nothing else.
type Server struct {
	engine *exuberant.Engine
	config Config
	log    *slog.Logger
}

// NewServer wraps engine. A nil logger falls back to slog.Default.
func NewServer(engine *exuberant.Engine, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, config: cfg.withDefaults(), log: logger}
}

// Router builds the gin handler tree.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(s.requestID(), s.accessLog(), gin.CustomRecovery(func(c *gin.Context, err any) {
		s.log.Error("handler panic", "panic", err, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "INTERNAL"})
	}))

	api := r.Group("/api")
	api.POST("/register_send", s.registerSend)
	api.POST("/register_verify", s.registerVerify)
	api.POST("/register_setup", s.registerSetup)
	api.POST("/login", s.login)
	api.POST("/login_2fa", s.loginTwoFactor)
	api.POST("/logout", s.logout)
	api.GET("/profile_get", s.profileGet)
	api.POST("/profile_set", s.profileSet)
	api.GET("/user/:username", s.userLookup)
	api.GET("/dm_init", s.dmInit)
	api.GET("/dm_list", s.dmList)
	api.GET("/dm_fetch", s.dmFetch)
	api.POST("/dm_send", s.dmSend)
	api.POST("/dm_edit", s.dmEdit)
	api.POST("/dm_delete", s.dmDelete)
	api.POST("/dm_pin", s.dmPin)

	return r
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// reqCtx attaches the caller's IP so engine rate buckets key on it.
func reqCtx(c *gin.Context) context.Context {
	return exuberant.WithClientIP(c.Request.Context(), c.ClientIP())
}

func (s *Server) sessionToken(c *gin.Context) string {
	token, err := c.Cookie(s.config.CookieName)
	if err != nil {
		return ""
	}
	return token
}

func (s *Server) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.config.CookieName, token, int(s.config.CookieMaxAge.Seconds()), "/", "", s.config.SecureCookie, true)
}

func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.config.CookieName, "", -1, "/", "", s.config.SecureCookie, true)
}

func ok(c *gin.Context, data any) {
	if data == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

func (s *Server) fail(c *gin.Context, err error) {
	code := exuberant.Code(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "id", c.GetString("request_id"), "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": code})
}

// statusFor maps wire codes to HTTP statuses. Authorization codes never
// reveal whether the underlying resource exists.
func statusFor(code string) int {
	switch code {
	case "BAD_EMAIL", "BAD_PASSWORD", "BAD_USERNAME", "BAD_NAME", "BAD_BIO",
		"BAD_PAYLOAD", "NO_PENDING", "INVALID_CODE", "NOT_VERIFIED", "CAPTCHA_FAILED":
		return http.StatusBadRequest
	case "INVALID_CREDENTIALS", "NO_SESSION", "TICKET_INVALID":
		return http.StatusUnauthorized
	case "BANNED", "FORBIDDEN":
		return http.StatusForbidden
	case "NO_ACCOUNT", "PEER_NOT_FOUND", "THREAD_NOT_FOUND", "MESSAGE_NOT_FOUND":
		return http.StatusNotFound
	case "ACCOUNT_EXISTS", "USERNAME_TAKEN", "MESSAGE_DELETED":
		return http.StatusConflict
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type registerSendRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Captcha  string `json:"captcha"`
}

func (s *Server) registerSend(c *gin.Context) {
	var req registerSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, exuberant.ErrBadPayload)
		return
	}
	if err := s.engine.SendRegistrationCode(reqCtx(c), req.Email, req.Password, req.Captcha); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, nil)
}

type registerVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (s *Server) registerVerify(c *gin.Context) {
	var req registerVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, exuberant.ErrBadPayload)
		return
	}
	if err := s.engine.VerifyRegistrationCode(reqCtx(c), req.Email, req.Code); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, nil)
}

type registerSetupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func (s *Server) registerSetup(c *gin.Context) {
	var req registerSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, exuberant.ErrBadPayload)
		return
	}
	token, err := s.engine.FinalizeRegistration(reqCtx(c), req.Email, req.Username, req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setSessionCookie(c, token)
	ok(c, nil)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, exuberant.ErrBadPayload)
		return
	}
	res, err := s.engine.Login(reqCtx(c), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	if res.TwoFactorRequired {
		ok(c, gin.H{"twofaRequired": true, "ticket": res.TwoFactorTicket})
		return
	}
	s.setSessionCookie(c, res.SessionToken)
	ok(c, nil)
}

type loginTwoFactorRequest struct {
	Ticket string `json:"ticket"`
	Code   string `json:"code"`
}

func (s *Server) loginTwoFactor(c *gin.Context) {
	var req loginTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, exuberant.ErrBadPayload)
		return
	}
	token, err := s.engine.ConfirmTwoFactor(reqCtx(c), req.Ticket, req.Code)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setSessionCookie(c, token)
	ok(c, nil)
}

func (s *Server) logout(c *gin.Context) {
	if err := s.engine.Logout(reqCtx(c), s.sessionToken(c)); err != nil {
		s.fail(c, err)
		return
	}
	s.clearSessionCookie(c)
	ok(c, nil)
}

func (s *Server) profileGet(c *gin.Context) {
	view, err := s.engine.Profile(reqCtx(c), s.sessionToken(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, view)
}

type profileSetRequest struct {
	Name     *string `json:"name"`
	Username *string `json:"username"`
	Bio      *string `json:"bio"`
}

func (s *Server) profileSet(c *gin.Context) {
	var req profileSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, exuberant.ErrBadPayload)
		return
	}
	view, err := s.engine.UpdateProfile(reqCtx(c), s.sessionToken(c), exuberant.ProfileUpdate{
		Name:     req.Name,
		Username: req.Username,
		Bio:      req.Bio,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, view)
}

func (s *Server) userLookup(c *gin.Context) {
	view, err := s.engine.Lookup(reqCtx(c), s.sessionToken(c), c.Param("username"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, view)
}

func (s *Server) dmInit(c *gin.Context) {
	sum, err := s.engine.OpenThread(reqCtx(c), s.sessionToken(c), c.Query("peer"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, sum)
}

func (s *Server) dmList(c *gin.Context) {
	threads, err := s.engine.ListThreads(reqCtx(c), s.sessionToken(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, threads)
}

func (s *Server) dmFetch(c *gin.Context) {
	after, _ := strconv.ParseInt(c.Query("after"), 10, 64)
	msgs, err := s.engine.FetchMessages(reqCtx(c), s.sessionToken(c), c.Query("thread"), after)
	if err != nil {
		s.fail(c, err)
		return
	}
	if msgs == nil {
		msgs = []*exuberant.Message{}
	}
	ok(c, msgs)
}

type dmSendRequest struct {
	Thread  string `json:"thread"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

func (s *Server) dmSend(c *gin.Context) {
	var req dmSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, exuberant.ErrBadPayload)
		return
	}
	msg, err := s.engine.SendMessage(reqCtx(c), s.sessionToken(c), req.Thread, exuberant.MessageType(req.Type), req.Payload)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, msg)
}

type dmEditRequest struct {
	Thread string `json:"thread"`
	ID     int64  `json:"id"`
	Text   string `json:"text"`
}

func (s *Server) dmEdit(c *gin.Context) {
	var req dmEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, exuberant.ErrBadPayload)
		return
	}
	msg, err := s.engine.EditMessage(reqCtx(c), s.sessionToken(c), req.Thread, req.ID, req.Text)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, msg)
}

type dmTargetRequest struct {
	Thread string `json:"thread"`
	ID     int64  `json:"id"`
}

func (s *Server) dmDelete(c *gin.Context) {
	var req dmTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, exuberant.ErrBadPayload)
		return
	}
	if err := s.engine.DeleteMessage(reqCtx(c), s.sessionToken(c), req.Thread, req.ID); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) dmPin(c *gin.Context) {
	var req dmTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, exuberant.ErrBadPayload)
		return
	}
	if err := s.engine.PinMessage(reqCtx(c), s.sessionToken(c), req.Thread, req.ID); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, nil)
}
