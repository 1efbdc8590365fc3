package models

import (
	"time"

	"github.com/google/uuid"
)

// User is read from the account system. The engine never writes it.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primarykey" json:"id"`
	Email     string    `gorm:"type:varchar(254)"    json:"email"`
	CreatedAt time.Time `                            json:"created_at"`
}
