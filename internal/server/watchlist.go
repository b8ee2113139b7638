package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	watchlistdomain "github.com/smallbiznis/realvest/internal/watchlist/domain"
)

type addToWatchlistRequest struct {
	PropertyID snowflake.ID `json:"property_id"`
	Notes      string       `json:"notes"`
}

func (s *Server) ListWatchlist(c *gin.Context) {
	entries, err := s.watchlistSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// AddToWatchlist is idempotent per property; a repeated add returns the
// existing item with 200.
func (s *Server) AddToWatchlist(c *gin.Context) {
	var req addToWatchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.PropertyID <= 0 {
		AbortWithError(c, newValidationError("property_id", "required", "property_id is required"))
		return
	}

	resp, err := s.watchlistSvc.Add(c.Request.Context(), watchlistdomain.AddRequest{
		PropertyID: req.PropertyID,
		Notes:      strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp.Item})
}

func (s *Server) RemoveFromWatchlist(c *gin.Context) {
	propertyID, err := pathID(c, "property_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.watchlistSvc.Remove(c.Request.Context(), propertyID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
