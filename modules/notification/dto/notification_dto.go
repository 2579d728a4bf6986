package dto

import "github.com/google/uuid"

type CreateNotificationRequest struct {
	UserID    uuid.UUID
	BookingID *uuid.UUID
	Title     string
	Message   string
	Type      string
	Data      map[string]interface{}
}

type MarkAsReadRequest struct {
	IDs []string `json:"ids"`
}
