package handler

import (
	"time"

	"intake/internal/reviewer/models"
)

// CreateRequest registers a reviewer organization.
type CreateRequest struct {
	ShortLabel  string `json:"short_label"`
	DisplayName string `json:"display_name"`
}

// OrganizationResponse never includes the token hash.
type OrganizationResponse struct {
	ID          string    `json:"id"`
	ShortLabel  string    `json:"short_label"`
	DisplayName string    `json:"display_name"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toOrganizationResponse(org *models.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:          org.ID.String(),
		ShortLabel:  org.ShortLabel,
		DisplayName: org.DisplayName,
		IsActive:    org.IsActive,
		CreatedAt:   org.CreatedAt,
		UpdatedAt:   org.UpdatedAt,
	}
}
