package users

import (
	"time"

	"github.com/bloggy/backend/internal/auth"
	"gorm.io/gorm"
)

// Role enumerates account privileges.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a registered account.
type User struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Email     string    `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	Username  string    `gorm:"column:username;size:64;not null;uniqueIndex" json:"username"`
	Password  string    `gorm:"column:password;size:255;not null" json:"-"`
	Name      string    `gorm:"column:name;size:255" json:"name"`
	LastName  string    `gorm:"column:last_name;size:255" json:"lastName"`
	Bio       string    `gorm:"column:bio;type:text" json:"bio"`
	Role      Role      `gorm:"column:role;size:16;not null;default:user" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// BeforeSave hashes the password whenever it is not already a bcrypt hash.
func (u *User) BeforeSave(_ *gorm.DB) error {
	if u.Password == "" || auth.IsHashed(u.Password) {
		return nil
	}
	hashed, err := auth.HashPassword(u.Password)
	if err != nil {
		return err
	}
	u.Password = hashed
	return nil
}

// Summary is the public author/actor projection embedded in other payloads.
type Summary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Summary projects the user to its public summary.
func (u User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username, Email: u.Email}
}
