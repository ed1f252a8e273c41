// Package pagination implements opaque cursor pagination for MCP list
// operations. Cursors are base64url-encoded JSON and carry only an offset;
// clients must treat them as opaque.
package pagination

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	// DefaultPageSize is used when the caller does not specify one.
	DefaultPageSize = 50

	// MaxPageSize is the hard clamp on any requested page size.
	MaxPageSize = 200

	cursorVersion = 1
)

// cursorPayload is the JSON body of a cursor. Offset is a pointer so a
// payload that omits it entirely can be told apart from offset zero.
type cursorPayload struct {
	Offset *int `json:"offset"`
	V      int  `json:"v"`
}

// ParsedCursor is the result of parsing a client-supplied cursor.
type ParsedCursor struct {
	Valid  bool
	Offset int
	Err    error
}

// CreateCursor encodes an offset into an opaque cursor string.
func CreateCursor(offset int) string {
	data, _ := json.Marshal(cursorPayload{Offset: &offset, V: cursorVersion})
	return base64.RawURLEncoding.EncodeToString(data)
}

// ParseCursor decodes a client-supplied cursor.
//
// Rejects non-base64url input, payloads that are not JSON objects, and
// missing or negative offsets. Invalid cursors never panic; the caller is
// expected to surface them as invalid-params.
func ParseCursor(cursor string) ParsedCursor {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		// Tolerate padded cursors from older clients.
		raw, err = base64.URLEncoding.DecodeString(cursor)
		if err != nil {
			return ParsedCursor{Err: fmt.Errorf("cursor is not base64url: %w", err)}
		}
	}

	var payload cursorPayload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return ParsedCursor{Err: fmt.Errorf("cursor payload is not a valid object: %w", err)}
	}
	if payload.V != cursorVersion {
		return ParsedCursor{Err: fmt.Errorf("unsupported cursor version %d", payload.V)}
	}
	if payload.Offset == nil {
		return ParsedCursor{Err: fmt.Errorf("cursor payload has no offset")}
	}
	if *payload.Offset < 0 {
		return ParsedCursor{Err: fmt.Errorf("cursor offset must be non-negative, got %d", *payload.Offset)}
	}

	return ParsedCursor{Valid: true, Offset: *payload.Offset}
}

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items      []T
	NextCursor string // empty when this is the last page
}

// Paginate slices items according to an optional cursor and page size.
//
// The page size is clamped to [1, MaxPageSize]; zero or negative values fall
// back to DefaultPageSize. An out-of-range cursor offset yields an error so
// the caller can reject stale cursors instead of returning an empty page.
func Paginate[T any](items []T, cursor string, pageSize int) (Page[T], error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	offset := 0
	if cursor != "" {
		parsed := ParseCursor(cursor)
		if !parsed.Valid {
			return Page[T]{}, fmt.Errorf("invalid cursor: %w", parsed.Err)
		}
		if parsed.Offset > len(items) {
			return Page[T]{}, fmt.Errorf("cursor offset %d beyond end of list (%d items)", parsed.Offset, len(items))
		}
		offset = parsed.Offset
	}

	end := offset + pageSize
	if end > len(items) {
		end = len(items)
	}

	page := Page[T]{Items: items[offset:end]}
	if end < len(items) {
		page.NextCursor = CreateCursor(end)
	}
	return page, nil
}
