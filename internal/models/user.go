package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the locally known profile the desktop app acts as. The backend
// identifies requests by this ID plus the keyring credential.
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:120" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewUser(name string) *User {
	return &User{ID: uuid.NewString(), Name: name}
}
