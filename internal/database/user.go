package database

import (
	"database/sql"
	"errors"
	"fmt"

	"com.duole/query-export-go/internal/entities"
)

// UserDB 用户数据库操作（空结构体）
type UserDB struct{}

// GetCredentials 获取用户的密码哈希、角色和禁用状态，用于登录校验
func (d *UserDB) GetCredentials(username string) (hash, role string, disabled bool, err error) {
	err = db.QueryRow(`SELECT password, role, disabled FROM users WHERE username=?`, username).
		Scan(&hash, &role, &disabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", false, fmt.Errorf("用户不存在")
		}
		return "", "", false, fmt.Errorf("查询用户失败: %w", err)
	}
	return hash, role, disabled, nil
}

// List 获取用户列表
func (d *UserDB) List() ([]entities.User, error) {
	rows, err := db.Query(`SELECT id, username, role, disabled, created_at, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("查询用户列表失败: %w", err)
	}
	defer rows.Close()

	var users []entities.User
	for rows.Next() {
		var u entities.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.Disabled, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("扫描用户数据失败: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// Create 创建用户，password 必须是 bcrypt 哈希
func (d *UserDB) Create(username, passwordHash, role string) error {
	_, err := db.Exec(`INSERT INTO users(username, password, role) VALUES(?,?,?)`, username, passwordHash, role)
	if err != nil {
		return fmt.Errorf("创建用户失败: %w", err)
	}
	return nil
}

// Toggle 切换用户禁用状态
func (d *UserDB) Toggle(id int) error {
	result, err := db.Exec(`UPDATE users SET disabled=NOT disabled WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("更新用户状态失败: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("检查更新结果失败: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("用户不存在")
	}

	return nil
}
