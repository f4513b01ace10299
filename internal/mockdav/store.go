// Package mockdav is an in-memory CalDAV server for tests. It covers
// exactly the protocol surface the probe exercises: MKCALENDAR,
// PROPFIND, GET, PUT and DELETE with conditional headers, and the
// calendar-query, calendar-multiget and sync-collection REPORTs.
package mockdav

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

type object struct {
	data []byte
	etag string
}

type change struct {
	seq     int
	path    string
	deleted bool
}

type calendar struct {
	displayName string
	components  []string
	objects     map[string]*object // key: full object path
	seq         int
	changes     []change
}

func (c *calendar) syncToken() string {
	return fmt.Sprintf("http://mockdav.local/sync/%d", c.seq)
}

func (c *calendar) recordChange(path string, deleted bool) {
	c.seq++
	c.changes = append(c.changes, change{seq: c.seq, path: path, deleted: deleted})
}

// parseSyncToken extracts the sequence number from a token issued by
// syncToken. Returns false for tokens this server never issued.
func parseSyncToken(token string) (int, bool) {
	const prefix = "http://mockdav.local/sync/"
	if !strings.HasPrefix(token, prefix) {
		return 0, false
	}
	var seq int
	if _, err := fmt.Sscanf(strings.TrimPrefix(token, prefix), "%d", &seq); err != nil {
		return 0, false
	}
	return seq, true
}

type store struct {
	mu        sync.RWMutex
	calendars map[string]*calendar // key: calendar path with trailing slash
}

func newStore() *store {
	return &store{calendars: make(map[string]*calendar)}
}

func generateETag(data []byte) string {
	hash := sha1.Sum(data)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}

// calendarFor returns the calendar containing the given object path.
func (s *store) calendarFor(objectPath string) (*calendar, bool) {
	idx := strings.LastIndex(objectPath, "/")
	if idx < 0 {
		return nil, false
	}
	cal, ok := s.calendars[objectPath[:idx+1]]
	return cal, ok
}
