package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"github.com/smallbiznis/realvest/pkg/db/pagination"
)

type upsertPropertyRequest struct {
	ExternalID   string           `json:"external_id"`
	ZillowID     string           `json:"zillow_id"`
	MLSID        string           `json:"mls_id"`
	Address      string           `json:"address"`
	City         string           `json:"city"`
	State        string           `json:"state"`
	ZipCode      string           `json:"zip_code"`
	Latitude     *decimal.Decimal `json:"latitude"`
	Longitude    *decimal.Decimal `json:"longitude"`
	PropertyType string           `json:"property_type"`
	Bedrooms     *int             `json:"bedrooms"`
	Bathrooms    *decimal.Decimal `json:"bathrooms"`
	SquareFeet   *int             `json:"square_feet"`
	LotSize      *decimal.Decimal `json:"lot_size"`
	YearBuilt    *int             `json:"year_built"`

	CurrentPrice   *decimal.Decimal `json:"current_price"`
	EstimatedValue *decimal.Decimal `json:"estimated_value"`
	TaxAssessment  *decimal.Decimal `json:"tax_assessment"`
	AnnualTaxes    *decimal.Decimal `json:"annual_taxes"`
	EstimatedRent  *decimal.Decimal `json:"estimated_rent"`
	DaysOnMarket   *int             `json:"days_on_market"`
}

// UpsertProperty ingests one record of the property feed.
func (s *Server) UpsertProperty(c *gin.Context) {
	var req upsertPropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.propertySvc.Upsert(c.Request.Context(), propertydomain.UpsertPropertyRequest{
		ExternalID:     strings.TrimSpace(req.ExternalID),
		ZillowID:       strings.TrimSpace(req.ZillowID),
		MLSID:          strings.TrimSpace(req.MLSID),
		Address:        strings.TrimSpace(req.Address),
		City:           strings.TrimSpace(req.City),
		State:          strings.TrimSpace(req.State),
		ZipCode:        strings.TrimSpace(req.ZipCode),
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		PropertyType:   strings.TrimSpace(req.PropertyType),
		Bedrooms:       req.Bedrooms,
		Bathrooms:      req.Bathrooms,
		SquareFeet:     req.SquareFeet,
		LotSize:        req.LotSize,
		YearBuilt:      req.YearBuilt,
		CurrentPrice:   req.CurrentPrice,
		EstimatedValue: req.EstimatedValue,
		TaxAssessment:  req.TaxAssessment,
		AnnualTaxes:    req.AnnualTaxes,
		EstimatedRent:  req.EstimatedRent,
		DaysOnMarket:   req.DaysOnMarket,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) ListProperties(c *gin.Context) {
	var query struct {
		pagination.Pagination
		City         string `form:"city"`
		State        string `form:"state"`
		ZipCode      string `form:"zip_code"`
		PropertyType string `form:"property_type"`
		Sort         string `form:"sort"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := propertydomain.ListPropertyRequest{
		City:         strings.TrimSpace(query.City),
		State:        strings.TrimSpace(query.State),
		ZipCode:      strings.TrimSpace(query.ZipCode),
		PropertyType: strings.TrimSpace(query.PropertyType),
		Sort:         strings.TrimSpace(query.Sort),
		Pagination:   query.Pagination,
	}

	ranges := []struct {
		key    string
		target *propertydomain.DecimalRange
	}{
		{"price", &req.Price},
		{"estimated_value", &req.EstimatedValue},
		{"rent", &req.Rent},
		{"bedrooms", &req.Bedrooms},
		{"bathrooms", &req.Bathrooms},
		{"square_feet", &req.SquareFeet},
		{"year_built", &req.YearBuilt},
		{"investment_score", &req.InvestmentScore},
		{"cap_rate", &req.CapRate},
		{"gross_rental_yield", &req.GrossRentalYield},
		{"noi", &req.NOI},
		{"estimated_profit", &req.EstimatedProfit},
		{"price_to_rent_ratio", &req.PriceToRentRatio},
		{"risk_score", &req.RiskScore},
	}
	for _, r := range ranges {
		value, err := queryRange(c, r.key)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		*r.target = value
	}

	flags := []struct {
		key    string
		target **bool
	}{
		{"has_metrics", &req.HasMetrics},
		{"is_profitable", &req.IsProfitable},
		{"high_cap_rate", &req.HighCapRate},
		{"good_cash_flow", &req.GoodCashFlow},
	}
	for _, f := range flags {
		value, err := queryBool(c, f.key)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		*f.target = value
	}

	resp, err := s.propertySvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetProperty(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	listing, err := s.propertySvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": listing})
}

func (s *Server) GetPropertyMetrics(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	metrics, err := s.propertySvc.GetMetrics(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": metrics})
}

func (s *Server) RecalculatePropertyMetrics(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	metrics, err := s.propertySvc.RecalculateMetrics(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": metrics})
}

func (s *Server) ListValuations(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	valuations, err := s.propertySvc.ListValuations(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": valuations})
}

type recordValuationRequest struct {
	Successful   bool             `json:"successful"`
	FairValue    *decimal.Decimal `json:"fair_value"`
	ROIPercent   *decimal.Decimal `json:"roi_percent"`
	HorizonYears *int             `json:"horizon_years"`
	ErrorMessage string           `json:"error_message"`
	Source       string           `json:"source"`
	Payload      json.RawMessage  `json:"payload"`
	ValuedAt     *dateValue       `json:"valued_at"`
}

// RecordValuation stores an outcome reported by the valuation source,
// successful or not.
func (s *Server) RecordValuation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req recordValuationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	valuation, err := s.propertySvc.RecordValuation(c.Request.Context(), propertydomain.RecordValuationRequest{
		PropertyID:   id,
		Successful:   req.Successful,
		FairValue:    req.FairValue,
		ROIPercent:   req.ROIPercent,
		HorizonYears: req.HorizonYears,
		ErrorMessage: strings.TrimSpace(req.ErrorMessage),
		Source:       strings.TrimSpace(req.Source),
		Payload:      req.Payload,
		ValuedAt:     req.ValuedAt.ptr(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": valuation})
}

type setProfitPredictionRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Source string           `json:"source"`
}

func (s *Server) SetProfitPrediction(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setProfitPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount == nil {
		AbortWithError(c, newValidationError("amount", "required", "amount is required"))
		return
	}

	prediction, err := s.propertySvc.SetProfitPrediction(c.Request.Context(), propertydomain.SetProfitPredictionRequest{
		PropertyID: id,
		Amount:     *req.Amount,
		Source:     strings.TrimSpace(req.Source),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": prediction})
}

func (s *Server) ClearProfitPrediction(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.propertySvc.ClearProfitPrediction(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetDashboardStats(c *gin.Context) {
	stats, err := s.propertySvc.DashboardStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
