package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"com.duole/query-export-go/internal/services"
)

// AuthController 处理认证相关的 HTTP 请求
type AuthController struct {
	auth *services.AuthService
}

// NewAuthController 创建新的认证控制器
func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{
		auth: auth,
	}
}

// 中间件确保用户已登录，未登录的请求返回 401
func (ac *AuthController) MustLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, role := ac.auth.CurrentUser(c.Request)
		if user == "" {
			respondError(c, http.StatusUnauthorized, "未登录")
			c.Abort()
			return
		}
		c.Set("user", user)
		c.Set("role", role)
		c.Next()
	}
}

// 中间件确保用户具有管理员角色。非管理员用户
// 被禁止访问包装的路由。
func (ac *AuthController) MustAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, role := ac.auth.CurrentUser(c.Request)
		if role != "admin" {
			respondError(c, http.StatusForbidden, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// DoLogin 处理登录请求
func (ac *AuthController) DoLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误")
		return
	}

	role, err := ac.auth.Login(c.Writer, c.Request, req.Username, req.Password)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}
	respondOK(c, gin.H{"username": req.Username, "role": role})
}

// Logout 处理登出
func (ac *AuthController) Logout(c *gin.Context) {
	ac.auth.Logout(c.Writer, c.Request)
	respondOK(c, nil)
}

// Me 返回当前登录用户信息
func (ac *AuthController) Me(c *gin.Context) {
	user, role := ac.auth.CurrentUser(c.Request)
	if user == "" {
		respondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	respondOK(c, gin.H{"username": user, "role": role})
}
