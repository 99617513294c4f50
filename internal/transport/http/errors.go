package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tempmail/mailbot/internal/domain"
)

type errorMapping struct {
	err    error
	status int
	msg    string
}

// 业务错误 -> HTTP 状态码与中文消息，按顺序匹配（ErrSessionExpired 必须先于 ErrNotFound）
var errorMappings = []errorMapping{
	{domain.ErrInvalidOwner, http.StatusBadRequest, "用户标识不能为空"},
	{domain.ErrInvalidExpiry, http.StatusBadRequest, "过期时间必须是非负整数（秒）"},
	{domain.ErrLocalPartTooLong, http.StatusBadRequest, "邮箱前缀过长"},
	{domain.ErrInvalidLocalPart, http.StatusBadRequest, "邮箱前缀格式无效"},
	{domain.ErrSessionExpired, http.StatusNotFound, "邮箱已过期，请重新创建"},
	{domain.ErrNoActiveSession, http.StatusNotFound, "当前没有可用的邮箱，请先创建"},
	{domain.ErrNotFound, http.StatusNotFound, "资源不存在"},
	{domain.ErrNoDomainsAvailable, http.StatusServiceUnavailable, "邮件服务暂无可用域名，请稍后重试"},
	{domain.ErrAccountCreationFailed, http.StatusBadGateway, "创建邮箱失败，请稍后重试"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "邮件服务响应超时"},
	{context.Canceled, http.StatusGatewayTimeout, "请求已取消"},
}

// classify 返回错误对应的 HTTP 状态码和中文消息
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.msg
		}
	}
	return http.StatusInternalServerError, MsgInternalError
}

// respondError 按错误类型写出响应，并把原始错误挂到 gin 上下文供请求日志使用
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, msg := classify(err)
	Error(c, status, msg)
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgInvalidExpiry  = "过期时间必须是非负整数（秒）"
	MsgSessionDeleted = "邮箱已删除"
	MsgFavoriteSaved  = "已收藏当前邮箱"
	MsgExpirySet      = "过期时间已更新，将在下次创建邮箱时生效"
	MsgInternalError  = "服务器内部错误，请稍后重试"
)
