package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"com.duole/query-export-go/internal/database"
	"com.duole/query-export-go/internal/services"
)

// UserController 处理用户管理请求，仅管理员可用
type UserController struct{}

// NewUserController 创建用户控制器
func NewUserController() *UserController {
	return &UserController{}
}

// List 用户列表
func (uc *UserController) List(c *gin.Context) {
	users, err := database.GetDB().User.List()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询用户列表失败: "+err.Error())
		return
	}
	respondOK(c, gin.H{"users": users})
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

// Create 创建用户，密码存 bcrypt 哈希
func (uc *UserController) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误")
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}

	hash, err := services.HashPassword(req.Password)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "密码加密失败")
		return
	}

	if err := database.GetDB().User.Create(req.Username, hash, req.Role); err != nil {
		respondError(c, http.StatusInternalServerError, "创建用户失败: "+err.Error())
		return
	}
	respondOK(c, gin.H{"username": req.Username, "role": req.Role})
}

// Toggle 启用或禁用用户
func (uc *UserController) Toggle(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := database.GetDB().User.Toggle(id); err != nil {
		respondError(c, http.StatusInternalServerError, "更新用户状态失败: "+err.Error())
		return
	}
	respondOK(c, nil)
}
