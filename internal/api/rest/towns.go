package rest

import "github.com/Zechen-Wang/covey.town/internal/authority"

type CreateTownRequest struct {
	FriendlyName     string `json:"friendlyName"`
	IsPubliclyListed bool   `json:"isPubliclyListed"`
	Creator          string `json:"creatorName"`
	MaxOccupancy     int    `json:"maxOccupancy"`
}

// UpdateTownRequest leaves fields that are nil untouched
type UpdateTownRequest struct {
	Password         string  `json:"coveyTownPassword"`
	FriendlyName     *string `json:"friendlyName,omitempty"`
	IsPubliclyListed *bool   `json:"isPubliclyListed,omitempty"`
}

type TownsResponse struct {
	Towns []authority.TownListing `json:"towns"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
