package models

import "time"

// CardStatus is the local lifecycle state of an issued card.
type CardStatus string

const (
	CardStatusActive    CardStatus = "active"
	CardStatusFrozen    CardStatus = "frozen"
	CardStatusCancelled CardStatus = "cancelled"
)

// Card is a virtual card issued through the REST API and stored locally.
type Card struct {
	CreatedAt    time.Time  `json:"created_at"`
	ID           string     `json:"id"`
	IssuerCardID string     `json:"issuer_card_id"`
	Nickname     string     `json:"nickname"`
	CardNumber   string     `json:"card_number"`
	CVV          string     `json:"cvv"`
	NameOnCard   string     `json:"name_on_card"`
	Status       CardStatus `json:"status"`
	ExpiryMonth  int        `json:"expiry_month"`
	ExpiryYear   int        `json:"expiry_year"`
}

type CreateCardsRequest struct {
	NicknamePrefix   string  `json:"nicknamePrefix"`
	Count            int     `json:"count" binding:"required,min=1,max=100"`
	TransactionLimit float64 `json:"transactionLimit" binding:"omitempty,min=1"`
}

type CreateCardsResponse struct {
	Cards   []Card `json:"cards"`
	Created int    `json:"created"`
}

// CardListQuery holds paging and ordering for the card list.
type CardListQuery struct {
	SortBy    string     `form:"sortBy" binding:"omitempty,oneof=createdAt nickname expiryYear"`
	SortOrder string     `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
	Status    CardStatus `form:"status" binding:"omitempty,oneof=active frozen cancelled"`
	Page      int        `form:"page" binding:"min=0"`
	PageSize  int        `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

type CardListResponse struct {
	Cards      []Card `json:"cards"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}
