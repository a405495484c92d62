package domain

import "time"

// Role определяет права пользователя.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid проверяет, что роль известна.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User — учётная запись покупателя или администратора.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Identity описывает аутентифицированного вызывающего. Передаётся в операции явно.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin сообщает, есть ли у вызывающего права администратора.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess разрешает доступ владельцу ресурса и администратору.
func (i Identity) CanAccess(ownerID string) bool {
	return i.IsAdmin() || (i.UserID != "" && i.UserID == ownerID)
}
