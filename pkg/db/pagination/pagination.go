package pagination

import (
	"encoding/base64"
	"encoding/json"
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50" validate:"gte=1,lte=250"` // Min 1, Max 250
}

// Limit normalizes the requested page size into the allowed range.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize < 1:
		return 50
	case p.PageSize > 250:
		return 250
	default:
		return p.PageSize
	}
}

// Cursor points at the last row of the previous page. Ordering is
// (created_at, id) descending, so both fields are required to resume.
type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// TrimPage expects rows fetched with limit+1 and returns the visible page
// plus its PageInfo. cursorOf renders the resume token for the last row.
func TrimPage[T any](rows []T, limit int, cursorOf func(T) string) ([]T, *PageInfo) {
	if len(rows) <= limit {
		return rows, &PageInfo{HasMore: false}
	}

	page := rows[:limit]
	return page, &PageInfo{
		HasMore:       true,
		NextPageToken: cursorOf(page[len(page)-1]),
	}
}
