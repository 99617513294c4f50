package httptransport

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/mailbot/internal/domain"
	"tempmail/mailbot/internal/session"
)

// SessionHandler 将会话存储的操作暴露为 JSON 接口，用户标识取自路径。
type SessionHandler struct {
	store  *session.Store
	logger *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(store *session.Store, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{store: store, logger: logger}
}

type createSessionRequest struct {
	Username string `json:"username"`
}

type setExpiryRequest struct {
	Seconds *int `json:"seconds" binding:"required"`
}

type sessionResponse struct {
	Address   string     `json:"address"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type favoriteResponse struct {
	sessionResponse
	SavedAt time.Time `json:"savedAt"`
}

type inboxResponse struct {
	Messages []domain.Message `json:"messages"`
	Count    int              `json:"count"`
}

type expiryResponse struct {
	Seconds int `json:"seconds"`
}

// CreateSession godoc
// @Summary 创建一次性邮箱
// @Description 为用户创建新的一次性邮箱并替换当前邮箱；username 为空时随机生成
// @Tags Sessions
// @Accept json
// @Produce json
// @Param owner path string true "用户标识"
// @Param request body createSessionRequest false "邮箱前缀"
// @Success 201 {object} Response{data=sessionResponse}
// @Failure 400 {object} Response
// @Failure 502 {object} Response
// @Failure 503 {object} Response
// @Router /api/owners/{owner}/session [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	s, err := h.store.CreateSession(c.Request.Context(), c.Param("owner"), req.Username)
	if err != nil {
		respondError(c, err)
		return
	}

	Created(c, toSessionResponse(s))
}

// GetSession godoc
// @Summary 获取当前邮箱
// @Tags Sessions
// @Produce json
// @Param owner path string true "用户标识"
// @Success 200 {object} Response{data=sessionResponse}
// @Failure 404 {object} Response
// @Router /api/owners/{owner}/session [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	s, err := h.store.GetSession(c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toSessionResponse(s))
}

// DeleteSession godoc
// @Summary 删除当前邮箱
// @Description 幂等操作，邮箱不存在时同样返回成功
// @Tags Sessions
// @Produce json
// @Param owner path string true "用户标识"
// @Success 200 {object} Response
// @Router /api/owners/{owner}/session [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.store.DeleteSession(c.Param("owner")); err != nil {
		respondError(c, err)
		return
	}
	SuccessWithMsg(c, MsgSessionDeleted, nil)
}

// RefreshInbox godoc
// @Summary 检查收件箱
// @Description 拉取当前邮箱的邮件列表；邮件服务不可用时返回空列表
// @Tags Sessions
// @Produce json
// @Param owner path string true "用户标识"
// @Success 200 {object} Response{data=inboxResponse}
// @Failure 404 {object} Response
// @Router /api/owners/{owner}/session/inbox [post]
func (h *SessionHandler) RefreshInbox(c *gin.Context) {
	messages, err := h.store.RefreshInboxSnapshot(c.Request.Context(), c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, inboxResponse{Messages: messages, Count: len(messages)})
}

// SaveFavorite godoc
// @Summary 收藏当前邮箱
// @Tags Favorites
// @Produce json
// @Param owner path string true "用户标识"
// @Success 200 {object} Response{data=favoriteResponse}
// @Failure 404 {object} Response
// @Router /api/owners/{owner}/favorite [post]
func (h *SessionHandler) SaveFavorite(c *gin.Context) {
	owner := c.Param("owner")
	if err := h.store.SaveFavorite(owner); err != nil {
		respondError(c, err)
		return
	}

	fav, err := h.store.GetFavorite(owner)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessWithMsg(c, MsgFavoriteSaved, toFavoriteResponse(fav))
}

// GetFavorite godoc
// @Summary 获取收藏的邮箱
// @Tags Favorites
// @Produce json
// @Param owner path string true "用户标识"
// @Success 200 {object} Response{data=favoriteResponse}
// @Failure 404 {object} Response
// @Router /api/owners/{owner}/favorite [get]
func (h *SessionHandler) GetFavorite(c *gin.Context) {
	fav, err := h.store.GetFavorite(c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toFavoriteResponse(fav))
}

// SetExpiry godoc
// @Summary 设置过期时间
// @Description 设置之后创建的邮箱的有效期（秒），0 表示永不过期
// @Tags Preferences
// @Accept json
// @Produce json
// @Param owner path string true "用户标识"
// @Param request body setExpiryRequest true "有效期"
// @Success 200 {object} Response{data=expiryResponse}
// @Failure 400 {object} Response
// @Router /api/owners/{owner}/expiry [put]
func (h *SessionHandler) SetExpiry(c *gin.Context) {
	var req setExpiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidExpiry)
		return
	}

	if err := h.store.SetExpiryPreference(c.Param("owner"), *req.Seconds); err != nil {
		respondError(c, err)
		return
	}
	SuccessWithMsg(c, MsgExpirySet, expiryResponse{Seconds: *req.Seconds})
}

// GetStats godoc
// @Summary 获取统计
// @Tags Preferences
// @Produce json
// @Param owner path string true "用户标识"
// @Success 200 {object} Response{data=domain.Stats}
// @Router /api/owners/{owner}/stats [get]
func (h *SessionHandler) GetStats(c *gin.Context) {
	Success(c, h.store.GetStats(c.Param("owner")))
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		Address:   s.Address,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

func toFavoriteResponse(f *domain.Favorite) favoriteResponse {
	return favoriteResponse{
		sessionResponse: toSessionResponse(&f.Session),
		SavedAt:         f.SavedAt,
	}
}
