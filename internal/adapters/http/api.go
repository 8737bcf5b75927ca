package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/runner"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const profileNameKey = "name"

type Runner interface {
	Run(ctx context.Context, req runner.Request) (runner.Result, error)
}

type API struct {
	Orch   *orch.Orchestrator
	Runner Runner
}

func (h *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *API) ListRooms(c *gin.Context) {
	rooms, err := h.Orch.ListRooms(c.Request.Context())
	if err != nil {
		h.loopError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *API) GetRoom(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, ok, err := h.Orch.RoomDetail(c.Request.Context(), id)
	if err != nil {
		h.loopError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *API) Stats(c *gin.Context) {
	stats, err := h.Orch.Stats(c.Request.Context())
	if err != nil {
		h.loopError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *API) WhoAmI(c *gin.Context) {
	sess := sessions.Default(c)
	name, _ := sess.Get(profileNameKey).(string)
	c.JSON(http.StatusOK, gin.H{
		"client_token": c.GetString("client_token"),
		"name":         name,
	})
}

// UpdateProfile stores the preferred display name in the cookie session.
// The name only pre-fills the join form; joins carry their own name.
func (h *API) UpdateProfile(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}
	name, err := domain.NormalizeUsername(body.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := sessions.Default(c)
	sess.Set(profileNameKey, name)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session not saved"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name})
}

func (h *API) Run(c *gin.Context) {
	var body struct {
		Language string `json:"language"`
		Code     string `json:"code"`
		Stdin    string `json:"stdin"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}
	lang, err := domain.NormalizeLanguage(body.Language)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.Runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "runner disabled"})
		return
	}

	res, err := h.Runner.Run(c.Request.Context(), runner.Request{Language: lang, Code: body.Code, Stdin: body.Stdin})
	switch {
	case errors.Is(err, runner.ErrEmptyCode), errors.Is(err, runner.ErrUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		log.Warn().Err(err).Str("module", "adapters.http").Str("language", lang).Msg("run failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "runner unavailable"})
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (h *API) loopError(c *gin.Context, err error) {
	if errors.Is(err, orch.ErrStopped) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
}
