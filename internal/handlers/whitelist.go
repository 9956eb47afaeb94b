package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/winson8942-oss/line-drive-bot/internal/access"
	"github.com/winson8942-oss/line-drive-bot/internal/auth"
	"github.com/winson8942-oss/line-drive-bot/internal/whitelist"
)

// WhitelistAdmin is the subset of the access gate exposed over HTTP.
type WhitelistAdmin interface {
	List() []whitelist.Entry
	Add(ctx context.Context, e whitelist.Entry) (bool, error)
	Remove(ctx context.Context, p whitelist.Principal) (bool, error)
}

// WhitelistHandler serves /admin/whitelist. Routes are protected by the server's JWT
// middleware.
type WhitelistHandler struct {
	admin  WhitelistAdmin
	logger *slog.Logger
}

type WhitelistEntryRequest struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Label string `json:"label"`
}

type WhitelistListResponse struct {
	Items []whitelist.Entry `json:"items"`
}

func NewWhitelistHandler(log *slog.Logger, admin WhitelistAdmin) *WhitelistHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WhitelistHandler{
		admin:  admin,
		logger: log.With(slog.String("handler", "whitelist")),
	}
}

func (h *WhitelistHandler) Register(e *echo.Echo) {
	group := e.Group("/admin/whitelist")
	group.GET("", h.List)
	group.POST("", h.Add)
	group.DELETE("/:kind/:id", h.Remove)
}

func (h *WhitelistHandler) List(c echo.Context) error {
	items := h.admin.List()
	if items == nil {
		items = []whitelist.Entry{}
	}
	return c.JSON(http.StatusOK, WhitelistListResponse{Items: items})
}

// Add returns 201 for a new entry and 200 when the principal was already listed.
func (h *WhitelistHandler) Add(c echo.Context) error {
	var req WhitelistEntryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	kind, err := whitelist.ParseKind(req.Kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry := whitelist.Entry{
		Principal: whitelist.Principal{Kind: kind, ID: strings.TrimSpace(req.ID)},
		Label:     strings.TrimSpace(req.Label),
	}
	if err := entry.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	added, err := h.admin.Add(c.Request().Context(), entry)
	if err != nil {
		return h.mapError(err)
	}
	h.audit(c, "whitelist entry added", entry.Principal)
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	return c.JSON(status, entry)
}

func (h *WhitelistHandler) Remove(c echo.Context) error {
	kind, err := whitelist.ParseKind(c.Param("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := whitelist.Principal{Kind: kind, ID: strings.TrimSpace(c.Param("id"))}
	if err := p.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	removed, err := h.admin.Remove(c.Request().Context(), p)
	if err != nil {
		return h.mapError(err)
	}
	if !removed {
		return echo.NewHTTPError(http.StatusNotFound, "not whitelisted")
	}
	h.audit(c, "whitelist entry removed", p)
	return c.NoContent(http.StatusNoContent)
}

func (h *WhitelistHandler) mapError(err error) error {
	switch {
	case errors.Is(err, access.ErrAdminProtected):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, whitelist.ErrInvalidPrincipal):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, whitelist.ErrPersist):
		h.logger.Error("whitelist persist failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "whitelist store unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *WhitelistHandler) audit(c echo.Context, msg string, p whitelist.Principal) {
	sub, _ := auth.SubjectFromContext(c)
	h.logger.Info(msg, slog.String("principal", p.String()), slog.String("subject", sub))
}
