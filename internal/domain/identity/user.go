package identity

import (
	"net/mail"
	"strings"

	"github.com/promptlab/backend/internal/domain/shared"
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost used for new password hashes
var PasswordCost = bcrypt.DefaultCost

// User is a person who can sign in. Users belong to tenants through memberships.
type User struct {
	shared.BaseEntity
	Email        string `gorm:"type:varchar(200);not null;uniqueIndex" json:"email"`
	Name         string `gorm:"type:varchar(200)" json:"name"`
	PasswordHash string `gorm:"type:varchar(200);not null" json:"-"`
}

// TableName returns the table name for GORM
func (User) TableName() string {
	return "users"
}

// NewUser validates the input and hashes the password
func NewUser(email, name, password string) (*User, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "invalid email address")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return nil, err
	}
	return &User{Email: email, Name: strings.TrimSpace(name), PasswordHash: string(hash)}, nil
}

// NormalizeEmail is the stored form of an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VerifyPassword checks password against the stored hash
func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return shared.NewDomainError("INVALID_INPUT", "password must be at least 8 characters")
	}
	if len(password) > 72 {
		return shared.NewDomainError("INVALID_INPUT", "password cannot exceed 72 characters")
	}
	return nil
}
