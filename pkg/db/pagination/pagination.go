package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Limit normalizes the requested page size into [1, MaxPageSize].
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Offset decodes the page token; an empty token starts at 0.
func (p Pagination) Offset() (int, error) {
	if p.PageToken == "" {
		return 0, nil
	}
	cursor, err := DecodeCursor(p.PageToken)
	if err != nil || cursor.Offset < 0 {
		return 0, ErrInvalidPageToken
	}
	return cursor.Offset, nil
}

type Cursor struct {
	Offset int `json:"o"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// BuildPageInfo trims a limit+1 result set fetched at offset and derives the
// token of the following page.
func BuildPageInfo[T any](data []*T, limit, offset int) ([]*T, PageInfo) {
	if len(data) <= limit {
		return data, PageInfo{}
	}
	token, err := EncodeCursor(Cursor{Offset: offset + limit})
	if err != nil {
		return data[:limit], PageInfo{}
	}
	return data[:limit], PageInfo{NextPageToken: token, HasMore: true}
}
