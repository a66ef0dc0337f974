package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/config"
	"github.com/iliyamo/certificate-issuance/internal/utils"
)

// AuthHandler logs the administrator in.
type AuthHandler struct {
	Cfg config.Config
	Log *zap.Logger
}

func NewAuthHandler(cfg config.Config, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Cfg: cfg, Log: log}
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type loginResp struct {
	Access tokenPart `json:"access"`
}

// Login checks the configured admin credentials and returns an access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_body", "cuerpo inválido")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return jsonError(c, http.StatusBadRequest, "missing_credentials", "usuario y contraseña son obligatorios")
	}
	if !utils.CheckLogin(h.Cfg.AdminUser, h.Cfg.AdminPasswordHash, req.Username, req.Password) {
		h.Log.Warn("login rejected", zap.String("user", req.Username), zap.String("ip", c.RealIP()))
		return jsonError(c, http.StatusUnauthorized, "invalid_credentials", "credenciales inválidas")
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, req.Username, utils.RoleAdmin, h.Cfg.AccessTTLMin)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, loginResp{Access: tokenPart{Token: access.Token, Expires: access.Exp}})
}
