// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nexusmind-go/pkg/log"
)

// APIKeyAuth 创建一个 Gin 中间件，用于静态 API Key 认证。
// 它会从 X-API-Key 请求头中提取密钥，并与配置的密钥列表逐一比对。
// 未配置任何密钥时认证被关闭，所有请求直接放行。
func APIKeyAuth(apiKeys []string) gin.HandlerFunc {
	if len(apiKeys) == 0 {
		log.Warnf("未配置任何 API Key, 认证已关闭")
		return func(c *gin.Context) {
			c.Next()
		}
	}

	allowed := make(map[string]struct{}, len(apiKeys))
	for _, key := range apiKeys {
		allowed[key] = struct{}{}
	}

	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含 X-API-Key 头"})
			return
		}
		if _, ok := allowed[key]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "无效的 API Key"})
			return
		}
		c.Next()
	}
}
