package auditapi

import (
	"net/http"
	"strings"
)

// Credentials 为出站请求补充认证信息。
type Credentials interface {
	Apply(req *http.Request)
}

// APIKeyCredentials 使用平台 API Key 认证。
type APIKeyCredentials struct {
	key string
}

// NewAPIKeyCredentials 构造 API Key 凭证。
func NewAPIKeyCredentials(key string) APIKeyCredentials {
	return APIKeyCredentials{key: strings.TrimSpace(key)}
}

// Apply 实现 Credentials。
func (c APIKeyCredentials) Apply(req *http.Request) {
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
}

// BearerCredentials 使用既有的 Bearer 令牌认证，构造时自动补全前缀。
type BearerCredentials struct {
	token string
}

// NewBearerCredentials 构造 Bearer 凭证。
func NewBearerCredentials(token string) BearerCredentials {
	token = strings.TrimSpace(token)
	if token != "" && !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	return BearerCredentials{token: token}
}

// Apply 实现 Credentials。
func (c BearerCredentials) Apply(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
}
