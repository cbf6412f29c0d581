// Package controller exposes the judge's HTTP surface: status polling, a
// websocket status stream and ad hoc code execution.
package controller

import (
	"net/http"
	"strings"
	"time"

	"gavel/internal/judge/engine"
	"gavel/internal/judge/language"
	"gavel/internal/judge/model"
	"gavel/internal/judge/service"
	appErr "gavel/pkg/errors"
	"gavel/pkg/utils/logger"
	"gavel/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MaxCustomInputBytes caps the input accepted for ad hoc runs.
const MaxCustomInputBytes = 64 * 1024

// JudgeController handles judge status and ad hoc execution requests.
type JudgeController struct {
	svc       *service.Service
	languages *language.Registry
	upgrader  websocket.Upgrader
}

// NewJudgeController creates a new controller.
func NewJudgeController(svc *service.Service, languages *language.Registry) *JudgeController {
	return &JudgeController{
		svc:       svc,
		languages: languages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// GetStatus returns the live status snapshot for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.svc.Status(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

const (
	streamPollInterval = 500 * time.Millisecond
	streamMaxDuration  = 10 * time.Minute
	streamWriteTimeout = 5 * time.Second
)

// StreamStatus upgrades to a websocket and pushes status snapshots until the
// submission reaches a terminal state or the client goes away.
func (h *JudgeController) StreamStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	deadline := time.NewTimer(streamMaxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	var last model.JudgeStatusResponse
	sent := false
	for {
		status, err := h.svc.Status(ctx, submissionID)
		if err == nil && (!sent || status != last) {
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(status); err != nil {
				return
			}
			last = status
			sent = true
		}
		if sent && last.Terminal() {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

type runCodeRequest struct {
	Language      string `json:"language" binding:"required"`
	SourceCode    string `json:"source_code" binding:"required"`
	Input         string `json:"input"`
	TimeLimitMs   int64  `json:"time_limit_ms"`
	MemoryLimitKB int64  `json:"memory_limit_kb"`
}

// RunCode compiles and runs source against caller-supplied input.
func (h *JudgeController) RunCode(c *gin.Context) {
	var req runCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if len(req.Input) > MaxCustomInputBytes {
		response.Error(c, appErr.New(appErr.CustomInputTooLarge).
			WithMessage("custom input exceeds the size limit"))
		return
	}

	lang, err := h.languages.Get(strings.TrimSpace(req.Language))
	if err != nil {
		response.Error(c, appErr.New(appErr.LanguageNotSupported).
			WithMessagef("language %q is not supported", req.Language))
		return
	}

	res, err := h.svc.RunCode(c.Request.Context(), engine.RunCodeRequest{
		Language: &lang,
		Problem: engine.Problem{
			TimeLimitMs:   req.TimeLimitMs,
			MemoryLimitKB: req.MemoryLimitKB,
		},
		SourceCode: req.SourceCode,
		Input:      req.Input,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
