package session

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// pageCursor encodes {serverIndex, innerCursor}: when enablePagination is
// set, tools/list (and the resources/prompts equivalents) return one
// server's items per page.
type pageCursor struct {
	ServerIndex int
	Inner       string
}

func encodeCursor(c pageCursor) string {
	raw := strconv.Itoa(c.ServerIndex) + "|" + c.Inner
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (pageCursor, error) {
	if s == "" {
		return pageCursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return pageCursor{}, fmt.Errorf("session: invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return pageCursor{}, fmt.Errorf("session: malformed cursor")
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil {
		return pageCursor{}, fmt.Errorf("session: malformed cursor: %w", err)
	}
	return pageCursor{ServerIndex: idx, Inner: parts[1]}, nil
}
