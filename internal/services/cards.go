package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pandeptwidyaop/card-runner/internal/airwallex"
	"github.com/pandeptwidyaop/card-runner/internal/automation"
	"github.com/pandeptwidyaop/card-runner/internal/database"
	"github.com/pandeptwidyaop/card-runner/internal/models"
	"github.com/pandeptwidyaop/card-runner/internal/validation"
)

var ErrCardNotFound = errors.New("card not found")

const (
	defaultCardPageSize       = 50
	defaultCardholderPageSize = 50
)

var cardSortColumns = map[string]string{
	"createdAt":  "created_at",
	"nickname":   "nickname",
	"expiryYear": "expiry_year",
}

// IssuerClient is the part of the issuing API the card service uses.
type IssuerClient interface {
	CreateCard(ctx context.Context, creds airwallex.Credentials, nickname string, limit float64) (*airwallex.CreateCardResponse, error)
	CardDetails(ctx context.Context, creds airwallex.Credentials, cardID string) (*airwallex.SensitiveCardDetails, error)
	ListCardholders(ctx context.Context, creds airwallex.Credentials, page, pageSize int) (*airwallex.ListCardholdersResponse, error)
}

// CardService issues cards through the REST API and keeps a local copy.
// Card numbers and CVVs are encrypted at rest.
type CardService struct {
	db       *database.DB
	crypto   *CryptoService
	settings *SettingsService
	client   IssuerClient
	intn     func(int) int
	namesDir string
}

func NewCardService(db *database.DB, crypto *CryptoService, settings *SettingsService, client IssuerClient, namesDir string) *CardService {
	return &CardService{
		db:       db,
		crypto:   crypto,
		settings: settings,
		client:   client,
		namesDir: namesDir,
	}
}

// CreateCards issues req.Count cards one after another. It stops at the
// first failure; cards issued before it are kept and returned with the error.
func (s *CardService) CreateCards(ctx context.Context, req *models.CreateCardsRequest) (*models.CreateCardsResponse, error) {
	if err := validation.ValidateNicknamePrefix(req.NicknamePrefix); err != nil {
		return nil, err
	}
	creds, err := s.settings.Credentials(true)
	if err != nil {
		return nil, err
	}

	first, last := automation.LoadNameLists(s.namesDir)
	names := automation.NewNameGenerator(first, last, req.NicknamePrefix, s.intn)

	resp := &models.CreateCardsResponse{Cards: make([]models.Card, 0, req.Count)}
	for i := 0; i < req.Count; i++ {
		nickname := names.Next(i)

		card, err := s.issue(ctx, creds, nickname, req.TransactionLimit)
		if err != nil {
			log.Printf("[Cards] Failed to create card %d: %v", i+1, err)
			resp.Created = len(resp.Cards)
			return resp, fmt.Errorf("create card %d: %w", i+1, err)
		}
		resp.Cards = append(resp.Cards, *card)
	}

	resp.Created = len(resp.Cards)
	return resp, nil
}

func (s *CardService) issue(ctx context.Context, creds airwallex.Credentials, nickname string, limit float64) (*models.Card, error) {
	created, err := s.client.CreateCard(ctx, creds, nickname, limit)
	if err != nil {
		return nil, err
	}

	details, err := s.client.CardDetails(ctx, creds, created.CardID)
	if err != nil {
		return nil, err
	}

	number, err := s.crypto.Encrypt(details.CardNumber)
	if err != nil {
		return nil, err
	}
	cvv, err := s.crypto.Encrypt(details.CVV)
	if err != nil {
		return nil, err
	}

	card := &models.Card{
		ID:           uuid.New().String(),
		IssuerCardID: created.CardID,
		Nickname:     nickname,
		CardNumber:   details.CardNumber,
		CVV:          details.CVV,
		ExpiryMonth:  details.ExpiryMonth,
		ExpiryYear:   details.ExpiryYear,
		NameOnCard:   details.NameOnCard,
		Status:       models.CardStatusActive,
		CreatedAt:    time.Now(),
	}

	_, err = s.db.Exec(`
		INSERT INTO cards (id, issuer_card_id, nickname, card_number, cvv, expiry_month, expiry_year, name_on_card, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, card.ID, card.IssuerCardID, card.Nickname, number, cvv,
		card.ExpiryMonth, card.ExpiryYear, card.NameOnCard, card.Status, card.CreatedAt)
	if err != nil {
		return nil, err
	}
	return card, nil
}

const cardColumns = "id, issuer_card_id, nickname, card_number, cvv, expiry_month, expiry_year, name_on_card, status, created_at"

func (s *CardService) scanCard(row rowScanner) (*models.Card, error) {
	var c models.Card
	var number, cvv string
	if err := row.Scan(&c.ID, &c.IssuerCardID, &c.Nickname, &number, &cvv,
		&c.ExpiryMonth, &c.ExpiryYear, &c.NameOnCard, &c.Status, &c.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if c.CardNumber, err = s.crypto.Decrypt(number); err != nil {
		return nil, fmt.Errorf("decrypt card %s: %w", c.ID, err)
	}
	if c.CVV, err = s.crypto.Decrypt(cvv); err != nil {
		return nil, fmt.Errorf("decrypt card %s: %w", c.ID, err)
	}
	return &c, nil
}

// List returns a page of cards. Defaults: page 0, 50 per page, newest first.
func (s *CardService) List(q *models.CardListQuery) (*models.CardListResponse, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultCardPageSize
	}
	column, ok := cardSortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	order := "DESC"
	if q.SortOrder == "asc" {
		order = "ASC"
	}

	where := ""
	args := []any{}
	if q.Status != "" {
		where = " WHERE status = ?"
		args = append(args, q.Status)
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cards"+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		"SELECT "+cardColumns+" FROM cards"+where+" ORDER BY "+column+" "+order+" LIMIT ? OFFSET ?",
		append(args, pageSize, q.Page*pageSize)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &models.CardListResponse{
		Cards:      make([]models.Card, 0),
		Total:      total,
		Page:       q.Page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}
	for rows.Next() {
		card, err := s.scanCard(rows)
		if err != nil {
			return nil, err
		}
		resp.Cards = append(resp.Cards, *card)
	}
	return resp, rows.Err()
}

func (s *CardService) Get(id string) (*models.Card, error) {
	card, err := s.scanCard(s.db.QueryRow("SELECT "+cardColumns+" FROM cards WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrCardNotFound
	}
	return card, err
}

// Delete removes the local copy of a card. The card stays active at the issuer.
func (s *CardService) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM cards WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrCardNotFound
	}
	return nil
}

// ListCardholders helps find the cardholder ID, so it only needs the
// client credentials.
func (s *CardService) ListCardholders(ctx context.Context, page, pageSize int) (*models.CardholderList, error) {
	if pageSize <= 0 {
		pageSize = defaultCardholderPageSize
	}
	creds, err := s.settings.Credentials(false)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.ListCardholders(ctx, creds, page, pageSize)
	if err != nil {
		return nil, err
	}

	list := &models.CardholderList{
		Cardholders: make([]models.Cardholder, 0, len(resp.Items)),
		HasMore:     resp.HasMore,
		Page:        page,
		PageSize:    pageSize,
	}
	for _, ch := range resp.Items {
		holder := models.Cardholder{
			ID:        ch.CardholderID,
			Email:     ch.Email,
			Status:    ch.Status,
			CreatedAt: ch.CreatedAt,
		}
		if ch.Individual != nil {
			holder.FirstName = ch.Individual.FirstName
			holder.LastName = ch.Individual.LastName
		}
		list.Cardholders = append(list.Cardholders, holder)
	}
	return list, nil
}
