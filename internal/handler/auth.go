package handler

import (
    "context"
    "database/sql"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/park-reservation/internal/middleware"
    "github.com/iliyamo/park-reservation/internal/model"
    "github.com/iliyamo/park-reservation/internal/repository"
    "github.com/iliyamo/park-reservation/internal/service"
    "github.com/iliyamo/park-reservation/internal/utils"
)

// Accounts is the user storage the auth endpoints need.
type Accounts interface {
    Create(ctx context.Context, u model.User, password string, cost int) (uint64, error)
    GetByEmail(ctx context.Context, email string) (model.User, error)
    GetByID(ctx context.Context, id uint64) (model.User, error)
    UpdateAddress(ctx context.Context, id uint64, addr model.Address) error
}

// RefreshTokens stores hashed refresh tokens.
type RefreshTokens interface {
    StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
    ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
    RevokeByHash(ctx context.Context, tokenHash string) error
    RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthSettings are the token and hashing parameters.
type AuthSettings struct {
    JWTSecret  string
    AccessTTL  time.Duration
    RefreshTTL time.Duration
    BcryptCost int
}

// AuthHandler serves registration, login and profile endpoints.
type AuthHandler struct {
    users  Accounts
    tokens RefreshTokens
    cfg    AuthSettings
    log    logrus.FieldLogger
    now    func() time.Time
}

func NewAuthHandler(users Accounts, tokens RefreshTokens, cfg AuthSettings, log logrus.FieldLogger) *AuthHandler {
    return &AuthHandler{users: users, tokens: tokens, cfg: cfg, log: log, now: time.Now}
}

type registerReq struct {
    Email     string         `json:"email"`
    Password  string         `json:"password"`
    FirstName string         `json:"firstName"`
    LastName  string         `json:"lastName"`
    Address   *model.Address `json:"address"`
}

type loginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}

type refreshReq struct {
    RefreshToken string `json:"refreshToken"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}

type authResp struct {
    User    model.User `json:"user"`
    Access  tokenPart  `json:"access"`
    Refresh tokenPart  `json:"refresh"`
}

// Register handles POST /v1/auth/register.  New accounts always get the
// USER role.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return badBody(c)
    }
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    req.FirstName = strings.TrimSpace(req.FirstName)
    req.LastName = strings.TrimSpace(req.LastName)
    if err := validateEmail(req.Email); err != nil {
        return writeError(c, h.log, err)
    }
    if err := validatePassword(req.Password); err != nil {
        return writeError(c, h.log, err)
    }
    if req.FirstName == "" {
        return writeError(c, h.log, service.FieldValidation("firstName", service.MsgRequired))
    }
    if req.LastName == "" {
        return writeError(c, h.log, service.FieldValidation("lastName", service.MsgRequired))
    }
    u := model.User{Email: req.Email, FirstName: req.FirstName, LastName: req.LastName, Role: model.RoleUser}
    if req.Address != nil {
        addr := trimAddress(*req.Address)
        if err := validateAddress(addr); err != nil {
            return writeError(c, h.log, err)
        }
        u.Street, u.City, u.State, u.Zip = addr.Street, addr.City, addr.State, addr.Zip
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    uid, err := h.users.Create(ctx, u, req.Password, h.cfg.BcryptCost)
    if errors.Is(err, repository.ErrEmailExists) {
        return writeError(c, h.log, &service.Error{Kind: service.KindConflict, Message: "Email is already registered", Field: "email"})
    }
    if err != nil {
        return writeError(c, h.log, err)
    }
    created, err := h.users.GetByID(ctx, uid)
    if err != nil {
        return writeError(c, h.log, err)
    }
    h.log.WithField("user_id", uid).Info("user registered")
    return h.issue(c, ctx, http.StatusCreated, created)
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return badBody(c)
    }
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    if req.Email == "" {
        return writeError(c, h.log, service.FieldValidation("email", service.MsgRequired))
    }
    if req.Password == "" {
        return writeError(c, h.log, service.FieldValidation("password", service.MsgRequired))
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.users.GetByEmail(ctx, req.Email)
    if errors.Is(err, sql.ErrNoRows) || (err == nil && (!u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password))) {
        return writeError(c, h.log, service.Unauthenticated("Invalid email or password"))
    }
    if err != nil {
        return writeError(c, h.log, err)
    }
    return h.issue(c, ctx, http.StatusOK, u)
}

// Refresh handles POST /v1/auth/refresh.  The presented token is revoked
// and a new pair issued.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil {
        return badBody(c)
    }
    raw := strings.TrimSpace(req.RefreshToken)
    if raw == "" {
        return writeError(c, h.log, service.FieldValidation("refreshToken", service.MsgRequired))
    }
    hash := utils.HashRefreshRaw(raw)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    uid, err := h.tokens.ValidateRefresh(ctx, hash)
    if errors.Is(err, sql.ErrNoRows) {
        return writeError(c, h.log, service.Unauthenticated("Invalid refresh token"))
    }
    if err != nil {
        return writeError(c, h.log, err)
    }
    if err := h.tokens.RevokeByHash(ctx, hash); err != nil {
        return writeError(c, h.log, err)
    }
    u, err := h.users.GetByID(ctx, uid)
    if errors.Is(err, sql.ErrNoRows) {
        return writeError(c, h.log, service.Unauthenticated("Invalid refresh token"))
    }
    if err != nil {
        return writeError(c, h.log, err)
    }
    return h.issue(c, ctx, http.StatusOK, u)
}

// Logout handles POST /v1/auth/logout.  A refreshToken in the body revokes
// that session; a valid bearer token with no body revokes every session of
// its user.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req refreshReq
    _ = c.Bind(&req)
    raw := strings.TrimSpace(req.RefreshToken)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if raw != "" {
        if err := h.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw)); err != nil {
            return writeError(c, h.log, err)
        }
        return c.NoContent(http.StatusNoContent)
    }
    auth := c.Request().Header.Get("Authorization")
    if strings.HasPrefix(auth, "Bearer ") {
        claims, err := middleware.ParseAccessToken(h.cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
        if err == nil {
            if uid, ok := middleware.SubjectID(claims); ok {
                if err := h.tokens.RevokeAllForUser(ctx, uid); err != nil {
                    return writeError(c, h.log, err)
                }
                return c.NoContent(http.StatusNoContent)
            }
        }
    }
    return writeError(c, h.log, service.FieldValidation("refreshToken", service.MsgRequired))
}

// Me handles GET /v1/me.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    u, err := h.users.GetByID(c.Request().Context(), uid)
    if errors.Is(err, sql.ErrNoRows) {
        return writeError(c, h.log, service.NotFound(service.MsgUserNotFound))
    }
    if err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusOK, u)
}

// UpdateAddress handles PUT /v1/me/address.
func (h *AuthHandler) UpdateAddress(c echo.Context) error {
    uid, err := currentUser(c)
    if err != nil {
        return writeError(c, h.log, err)
    }
    var req model.Address
    if err := c.Bind(&req); err != nil {
        return badBody(c)
    }
    addr := trimAddress(req)
    if err := validateAddress(addr); err != nil {
        return writeError(c, h.log, err)
    }
    ctx := c.Request().Context()
    if err := h.users.UpdateAddress(ctx, uid, addr); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return writeError(c, h.log, service.NotFound(service.MsgUserNotFound))
        }
        return writeError(c, h.log, err)
    }
    u, err := h.users.GetByID(ctx, uid)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, http.StatusOK, u)
}

func (h *AuthHandler) issue(c echo.Context, ctx context.Context, status int, u model.User) error {
    now := h.now()
    access, err := utils.NewAccessToken(h.cfg.JWTSecret, u.ID, u.Role, h.cfg.AccessTTL, now)
    if err != nil {
        return writeError(c, h.log, err)
    }
    refresh, err := utils.NewRefreshToken(h.cfg.RefreshTTL, now)
    if err != nil {
        return writeError(c, h.log, err)
    }
    if err := h.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return writeError(c, h.log, err)
    }
    return success(c, status, authResp{
        User:    u,
        Access:  tokenPart{Token: access.Token, Expires: access.Exp},
        Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
    })
}
