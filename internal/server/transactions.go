package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/realvest/internal/ledger/domain"
)

type recordTransactionRequest struct {
	Type        string           `json:"type"`
	Category    string           `json:"category"`
	Amount      *decimal.Decimal `json:"amount"`
	OccurredOn  *dateValue       `json:"occurred_on"`
	Description string           `json:"description"`
}

type correctTransactionRequest struct {
	Type        *string          `json:"type"`
	Category    *string          `json:"category"`
	Amount      *decimal.Decimal `json:"amount"`
	OccurredOn  *dateValue       `json:"occurred_on"`
	Description *string          `json:"description"`
}

func (s *Server) ListTransactions(c *gin.Context) {
	ownedID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	txs, err := s.portfolioSvc.ListTransactions(c.Request.Context(), ownedID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": txs})
}

func (s *Server) RecordTransaction(c *gin.Context) {
	ownedID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req recordTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount == nil {
		AbortWithError(c, newValidationError("amount", "required", "amount is required"))
		return
	}
	occurredOn := req.OccurredOn.ptr()
	if occurredOn == nil {
		AbortWithError(c, newValidationError("occurred_on", "required", "occurred_on is required"))
		return
	}

	tx, err := s.portfolioSvc.RecordTransaction(c.Request.Context(), ownedID, ledgerdomain.RecordTransactionRequest{
		OwnedPropertyID: ownedID,
		Type:            strings.ToLower(strings.TrimSpace(req.Type)),
		Category:        strings.TrimSpace(req.Category),
		Amount:          *req.Amount,
		OccurredOn:      *occurredOn,
		Description:     strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tx})
}

// CorrectTransaction edits an entry in place; amounts stay positive and
// the sign is carried by the type.
func (s *Server) CorrectTransaction(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req correctTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Type != nil {
		normalized := strings.ToLower(strings.TrimSpace(*req.Type))
		req.Type = &normalized
	}

	tx, err := s.portfolioSvc.CorrectTransaction(c.Request.Context(), id, ledgerdomain.CorrectTransactionRequest{
		Type:        req.Type,
		Category:    req.Category,
		Amount:      req.Amount,
		OccurredOn:  req.OccurredOn.ptr(),
		Description: req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tx})
}

func (s *Server) DeleteTransaction(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.portfolioSvc.DeleteTransaction(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
