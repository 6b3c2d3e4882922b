package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleOther   Role = "other"
)

type Permission string

const (
	PermMarkSelf       Permission = "mark_self"
	PermMarkOthers     Permission = "mark_others"
	PermViewOwnStats   Permission = "view_own_stats"
	PermViewDashboard  Permission = "view_dashboard"
	PermManageStudents Permission = "manage_students"
)

// rolePermissions is the single place where roles map to what they may do.
var rolePermissions = map[Role]map[Permission]bool{
	RoleTeacher: {
		PermMarkOthers:     true,
		PermViewDashboard:  true,
		PermManageStudents: true,
	},
	RoleStudent: {
		PermMarkSelf:     true,
		PermViewOwnStats: true,
	},
	RoleOther: {},
}

func (r Role) Can(p Permission) bool {
	return rolePermissions[r][p]
}

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTeacher, RoleStudent, RoleOther:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

type User struct {
	ID           string `db:"id" json:"id"`
	Username     string `db:"username" json:"username" validate:"required"`
	PasswordHash string `db:"password_hash" json:"-"`
	Role         Role   `db:"role" json:"role" validate:"required,oneof=teacher student other"`
	Section      string `db:"section" json:"section"`
	DisplayName  string `db:"display_name" json:"display_name" validate:"required"`
}

func (u *User) Validate() error {
	validate := validator.New()
	return validate.Struct(u)
}

func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	return nil
}

func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}
