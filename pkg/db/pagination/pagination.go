// Package pagination implements keyset paging over (created_at, id). Page
// tokens are opaque to clients.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid_cursor")

// Pagination is bound from the page_token and page_size query parameters.
type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50" binding:"omitempty,gte=1,lte=250"`
}

// Cursor is the last row of the previous page.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Keyset parses the cursor into comparable values.
func (c Cursor) Keyset() (time.Time, int64, error) {
	at, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
	if err != nil {
		return time.Time{}, 0, ErrInvalidCursor
	}
	id, err := strconv.ParseInt(strings.TrimSpace(c.ID), 10, 64)
	if err != nil || id <= 0 {
		return time.Time{}, 0, ErrInvalidCursor
	}
	return at, id, nil
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, ErrInvalidCursor
	}
	c := &Cursor{}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, ErrInvalidCursor
	}
	return c, nil
}

// CursorFor builds the token for a row ordered by (created_at, id).
func CursorFor(id string, createdAt time.Time) string {
	token, _ := EncodeCursor(Cursor{ID: id, CreatedAt: createdAt.UTC().Format(time.RFC3339Nano)})
	return token
}

// BuildCursorPageInfo expects rows fetched with limit+1. The extra row only
// signals another page; the token points at the last row returned.
func BuildCursorPageInfo[T any](rows []*T, limit int32, cursorOf func(*T) string) *PageInfo {
	if limit <= 0 || len(rows) <= int(limit) {
		return &PageInfo{}
	}
	return &PageInfo{HasMore: true, NextPageToken: cursorOf(rows[limit-1])}
}
