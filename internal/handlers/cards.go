package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/card-runner/internal/models"
	"github.com/pandeptwidyaop/card-runner/internal/services"
)

// CardHandler issues cards through the REST API and serves the local copies.
type CardHandler struct {
	cardService  *services.CardService
	auditService *services.AuditService
}

func NewCardHandler(cardService *services.CardService, auditService *services.AuditService) *CardHandler {
	return &CardHandler{
		cardService:  cardService,
		auditService: auditService,
	}
}

// List returns a page of cards.
// GET /api/cards?page=&pageSize=&sortBy=&sortOrder=&status=
func (h *CardHandler) List(c *gin.Context) {
	var q models.CardListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cards, err := h.cardService.List(&q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

// Create issues a batch of cards. When a card fails, the cards issued
// before it are returned along with the error.
// POST /api/cards
func (h *CardHandler) Create(c *gin.Context) {
	var req models.CreateCardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.cardService.CreateCards(c.Request.Context(), &req)
	if resp != nil {
		details := map[string]interface{}{"requested": req.Count, "created": resp.Created}
		if err != nil {
			details["error"] = err.Error()
		}
		audit(c, h.auditService, "create", services.ResourceCard, "", details)
	}

	if err != nil {
		body := gin.H{"error": err.Error()}
		if resp != nil {
			body["cards"] = resp.Cards
			body["created"] = resp.Created
		}
		c.JSON(errorStatus(err), body)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get returns one card.
// GET /api/cards/:id
func (h *CardHandler) Get(c *gin.Context) {
	card, err := h.cardService.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

// Delete removes the local copy of a card.
// DELETE /api/cards/:id
func (h *CardHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.cardService.Delete(id); err != nil {
		respondError(c, err)
		return
	}

	audit(c, h.auditService, "delete", services.ResourceCard, id, nil)
	c.JSON(http.StatusOK, gin.H{"message": "card deleted"})
}
