package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalDecimal(value string) (*decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
		} else {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// pathID reads a snowflake path parameter. A malformed id is a validation
// error on that field.
func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Param(name))
	if err != nil || id == nil {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return *id, nil
}

// queryRange reads min_<key> and max_<key>.
func queryRange(c *gin.Context, key string) (propertydomain.DecimalRange, error) {
	minValue, err := parseOptionalDecimal(c.Query("min_" + key))
	if err != nil {
		return propertydomain.DecimalRange{}, newValidationError("min_"+key, "invalid_min_"+key, "invalid min_"+key)
	}
	maxValue, err := parseOptionalDecimal(c.Query("max_" + key))
	if err != nil {
		return propertydomain.DecimalRange{}, newValidationError("max_"+key, "invalid_max_"+key, "invalid max_"+key)
	}
	return propertydomain.DecimalRange{Min: minValue, Max: maxValue}, nil
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	value, err := parseOptionalBool(c.Query(key))
	if err != nil {
		return nil, newValidationError(key, "invalid_"+key, "invalid "+key)
	}
	return value, nil
}

// dateValue is a JSON date accepting both YYYY-MM-DD and RFC3339.
type dateValue struct {
	time.Time
}

func (d *dateValue) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	parsed, err := parseOptionalTime(raw, false)
	if err != nil {
		return err
	}
	d.Time = *parsed
	return nil
}

func (d *dateValue) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}
