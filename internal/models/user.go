package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"column:name;not null" json:"name"`
	Email        string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`
	Phone        string    `gorm:"column:phone" json:"phone,omitempty"`
	About        string    `gorm:"column:about" json:"about,omitempty"`
	Tags         []string  `gorm:"column:tags;serializer:json" json:"tags"`
	Verified     bool      `gorm:"column:verified;default:false" json:"verified"`
	JoinedOn     time.Time `gorm:"column:joined_on;autoCreateTime" json:"joinedOn"`
	UpdatedAt    time.Time `json:"-"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a uuid when the caller did not provide one.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// SetPassword replaces the stored hash with a bcrypt hash of password.
func (u *User) SetPassword(password string, cost int) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

// Profile is the public view of a user. It is what gets embedded in tokens
// and returned to clients; it never carries the password hash.
type Profile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Phone    string    `json:"phone,omitempty"`
	About    string    `json:"about,omitempty"`
	Tags     []string  `json:"tags"`
	Verified bool      `json:"verified"`
	JoinedOn time.Time `json:"joinedOn"`
}

func (u *User) Profile() Profile {
	tags := u.Tags
	if tags == nil {
		tags = []string{}
	}
	return Profile{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Phone:    u.Phone,
		About:    u.About,
		Tags:     tags,
		Verified: u.Verified,
		JoinedOn: u.JoinedOn,
	}
}

// EmailLocalPart returns the part of an address before the '@'.
func EmailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
