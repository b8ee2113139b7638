package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/realvest/internal/ledger/domain"
	portfoliodomain "github.com/smallbiznis/realvest/internal/portfolio/domain"
)

const defaultCashFlowMonths = 12

type createOwnedPropertyRequest struct {
	PropertyID *snowflake.ID `json:"property_id"`

	CustomAddress      string `json:"custom_address"`
	CustomCity         string `json:"custom_city"`
	CustomState        string `json:"custom_state"`
	CustomZip          string `json:"custom_zip"`
	CustomPropertyType string `json:"custom_property_type"`

	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	PurchaseDate  *dateValue       `json:"purchase_date"`
	DownPayment   *decimal.Decimal `json:"down_payment"`
	LoanAmount    *decimal.Decimal `json:"loan_amount"`
	InterestRate  *decimal.Decimal `json:"interest_rate"`
	LoanTermYears *int             `json:"loan_term_years"`

	CurrentEstimatedValue *decimal.Decimal `json:"current_estimated_value"`
	MonthlyRent           *decimal.Decimal `json:"monthly_rent"`
	ManagementFeePercent  *decimal.Decimal `json:"management_fee_percent"`
	Notes                 string           `json:"notes"`
}

type updateOwnedPropertyRequest struct {
	CustomAddress      *string `json:"custom_address"`
	CustomCity         *string `json:"custom_city"`
	CustomState        *string `json:"custom_state"`
	CustomZip          *string `json:"custom_zip"`
	CustomPropertyType *string `json:"custom_property_type"`

	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	PurchaseDate  *dateValue       `json:"purchase_date"`
	DownPayment   *decimal.Decimal `json:"down_payment"`
	LoanAmount    *decimal.Decimal `json:"loan_amount"`
	InterestRate  *decimal.Decimal `json:"interest_rate"`
	LoanTermYears *int             `json:"loan_term_years"`

	CurrentEstimatedValue *decimal.Decimal `json:"current_estimated_value"`
	MonthlyRent           *decimal.Decimal `json:"monthly_rent"`
	ManagementFeePercent  *decimal.Decimal `json:"management_fee_percent"`
	Notes                 *string          `json:"notes"`
}

type refreshValuationRequest struct {
	CurrentValue *decimal.Decimal `json:"current_value"`
}

func (s *Server) ListOwnedProperties(c *gin.Context) {
	owned, err := s.portfolioSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": owned})
}

func (s *Server) CreateOwnedProperty(c *gin.Context) {
	var req createOwnedPropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.PurchasePrice == nil {
		AbortWithError(c, newValidationError("purchase_price", "required", "purchase_price is required"))
		return
	}
	purchaseDate := req.PurchaseDate.ptr()
	if purchaseDate == nil {
		AbortWithError(c, newValidationError("purchase_date", "required", "purchase_date is required"))
		return
	}

	owned, err := s.portfolioSvc.Create(c.Request.Context(), portfoliodomain.CreateOwnedPropertyRequest{
		PropertyID:            req.PropertyID,
		CustomAddress:         strings.TrimSpace(req.CustomAddress),
		CustomCity:            strings.TrimSpace(req.CustomCity),
		CustomState:           strings.TrimSpace(req.CustomState),
		CustomZip:             strings.TrimSpace(req.CustomZip),
		CustomPropertyType:    strings.TrimSpace(req.CustomPropertyType),
		PurchasePrice:         *req.PurchasePrice,
		PurchaseDate:          *purchaseDate,
		DownPayment:           req.DownPayment,
		LoanAmount:            req.LoanAmount,
		InterestRate:          req.InterestRate,
		LoanTermYears:         req.LoanTermYears,
		CurrentEstimatedValue: req.CurrentEstimatedValue,
		MonthlyRent:           req.MonthlyRent,
		ManagementFeePercent:  req.ManagementFeePercent,
		Notes:                 strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": owned})
}

func (s *Server) GetOwnedProperty(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	owned, err := s.portfolioSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": owned})
}

func (s *Server) UpdateOwnedProperty(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateOwnedPropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	owned, err := s.portfolioSvc.Update(c.Request.Context(), id, portfoliodomain.UpdateOwnedPropertyRequest{
		CustomAddress:         req.CustomAddress,
		CustomCity:            req.CustomCity,
		CustomState:           req.CustomState,
		CustomZip:             req.CustomZip,
		CustomPropertyType:    req.CustomPropertyType,
		PurchasePrice:         req.PurchasePrice,
		PurchaseDate:          req.PurchaseDate.ptr(),
		DownPayment:           req.DownPayment,
		LoanAmount:            req.LoanAmount,
		InterestRate:          req.InterestRate,
		LoanTermYears:         req.LoanTermYears,
		CurrentEstimatedValue: req.CurrentEstimatedValue,
		MonthlyRent:           req.MonthlyRent,
		ManagementFeePercent:  req.ManagementFeePercent,
		Notes:                 req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": owned})
}

// DeleteOwnedProperty also removes the holding's ledger entries.
func (s *Server) DeleteOwnedProperty(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.portfolioSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RefreshValuation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req refreshValuationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	owned, err := s.portfolioSvc.RefreshValuation(c.Request.Context(), id, portfoliodomain.RefreshValuationRequest{
		CurrentValue: req.CurrentValue,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": owned})
}

func (s *Server) GetPortfolioMetrics(c *gin.Context) {
	metrics, err := s.portfolioSvc.GetMetrics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": metrics})
}

func (s *Server) RecalculatePortfolioMetrics(c *gin.Context) {
	metrics, err := s.portfolioSvc.RecalculateMetrics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": metrics})
}

func (s *Server) GetCashFlow(c *gin.Context) {
	months, err := parseOptionalInt(c.Query("months"))
	if err != nil || (months != nil && (*months <= 0 || *months > ledgerdomain.MaxSeriesMonths)) {
		AbortWithError(c, newValidationError("months", "invalid_months",
			fmt.Sprintf("months must be between 1 and %d", ledgerdomain.MaxSeriesMonths)))
		return
	}
	n := defaultCashFlowMonths
	if months != nil {
		n = *months
	}

	series, err := s.portfolioSvc.CashFlowSeries(c.Request.Context(), n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": series})
}
