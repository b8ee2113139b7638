package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	pipelinedomain "github.com/smallbiznis/realvest/internal/pipeline/domain"
)

type createDealRequest struct {
	StageID       snowflake.ID     `json:"stage_id"`
	StageName     string           `json:"stage_name"`
	Title         string           `json:"title"`
	PropertyID    *snowflake.ID    `json:"property_id"`
	ExpectedValue *decimal.Decimal `json:"expected_value"`
	Notes         string           `json:"notes"`
}

type updateDealRequest struct {
	Title         *string          `json:"title"`
	Notes         *string          `json:"notes"`
	ExpectedValue *decimal.Decimal `json:"expected_value"`
	PropertyID    *snowflake.ID    `json:"property_id"`
	ClearProperty bool             `json:"clear_property"`
}

type moveDealRequest struct {
	StageID  snowflake.ID `json:"stage_id"`
	Position *int         `json:"position"`
}

func (s *Server) ListStages(c *gin.Context) {
	stages, err := s.pipelineSvc.ListStages(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stages})
}

// ListDeals returns the board: every stage in order with its deals.
func (s *Server) ListDeals(c *gin.Context) {
	columns, err := s.pipelineSvc.ListDeals(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": columns})
}

func (s *Server) CreateDeal(c *gin.Context) {
	var req createDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	deal, err := s.pipelineSvc.CreateDeal(c.Request.Context(), pipelinedomain.CreateDealRequest{
		StageID:       req.StageID,
		StageName:     strings.TrimSpace(req.StageName),
		Title:         strings.TrimSpace(req.Title),
		PropertyID:    req.PropertyID,
		ExpectedValue: req.ExpectedValue,
		Notes:         strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": deal})
}

func (s *Server) UpdateDeal(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	deal, err := s.pipelineSvc.UpdateDeal(c.Request.Context(), id, pipelinedomain.UpdateDealRequest{
		Title:         req.Title,
		Notes:         req.Notes,
		ExpectedValue: req.ExpectedValue,
		PropertyID:    req.PropertyID,
		ClearProperty: req.ClearProperty,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deal})
}

func (s *Server) MoveDeal(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req moveDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.StageID <= 0 {
		AbortWithError(c, newValidationError("stage_id", "required", "stage_id is required"))
		return
	}
	if req.Position == nil {
		AbortWithError(c, newValidationError("position", "required", "position is required"))
		return
	}

	deal, err := s.pipelineSvc.MoveDeal(c.Request.Context(), id, pipelinedomain.MoveDealRequest{
		StageID:  req.StageID,
		Position: *req.Position,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deal})
}

func (s *Server) DeleteDeal(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.pipelineSvc.DeleteDeal(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
