// Package model holds the in-memory picture of the resources the
// probe created on the server under test, synchronized from responses.
package model

import (
	"fmt"
	"net/url"
	"time"
)

// Target identifies the server under test. Immutable for a run.
type Target struct {
	BaseURL     url.URL
	Username    string
	Password    string
	BearerToken string
	InsecureTLS bool
	Timeout     time.Duration
}

// Calendar is a calendar collection known to the probe.
type Calendar struct {
	URL         string
	DisplayName string
	Components  []string
	// SyncToken is the most recent token reported by the server.
	SyncToken string
}

// Object is a calendar object inside a Calendar.
type Object struct {
	URL  string
	ETag string
	UID  string
}

// SyncState snapshots a calendar's change history position: the token
// and the object URL -> ETag set known as of that token.
type SyncState struct {
	Token   string
	Objects map[string]string
}

// Clone returns a deep copy, so a later delta can be diffed against it.
func (s SyncState) Clone() SyncState {
	objects := make(map[string]string, len(s.Objects))
	for href, etag := range s.Objects {
		objects[href] = etag
	}
	return SyncState{Token: s.Token, Objects: objects}
}

// CalendarState tracks the live objects of one calendar and enforces
// the model invariants after every transition.
type CalendarState struct {
	Calendar Calendar
	objects  map[string]Object // keyed by URL
	tokens   []string          // every sync token seen, in order
}

// NewCalendarState creates tracking state for a calendar the probe owns.
func NewCalendarState(cal Calendar) *CalendarState {
	return &CalendarState{
		Calendar: cal,
		objects:  make(map[string]Object),
	}
}

// ApplyCreate records a newly created object. Fails when the UID is
// already live in this calendar or the ETag is missing.
func (s *CalendarState) ApplyCreate(obj Object) error {
	if obj.ETag == "" {
		return fmt.Errorf("created object %s has no ETag", obj.URL)
	}
	if _, ok := s.objects[obj.URL]; ok {
		return fmt.Errorf("object %s already exists", obj.URL)
	}
	for _, existing := range s.objects {
		if existing.UID == obj.UID {
			return fmt.Errorf("UID %q already live at %s", obj.UID, existing.URL)
		}
	}
	s.objects[obj.URL] = obj
	return nil
}

// ApplyUpdate records a successful mutation. The UID must be stable
// and the ETag must differ from the previous one.
func (s *CalendarState) ApplyUpdate(obj Object) error {
	prev, ok := s.objects[obj.URL]
	if !ok {
		return fmt.Errorf("object %s is not known", obj.URL)
	}
	if prev.UID != obj.UID {
		return fmt.Errorf("UID changed on update of %s: %q -> %q", obj.URL, prev.UID, obj.UID)
	}
	if obj.ETag == "" || obj.ETag == prev.ETag {
		return fmt.Errorf("update of %s did not change the ETag (%q)", obj.URL, prev.ETag)
	}
	s.objects[obj.URL] = obj
	return nil
}

// ApplyDelete removes an object from the known set.
func (s *CalendarState) ApplyDelete(objectURL string) error {
	if _, ok := s.objects[objectURL]; !ok {
		return fmt.Errorf("object %s is not known", objectURL)
	}
	delete(s.objects, objectURL)
	return nil
}

// Object returns the live object at the URL, if known.
func (s *CalendarState) Object(objectURL string) (Object, bool) {
	obj, ok := s.objects[objectURL]
	return obj, ok
}

// Live returns the current object set as a URL -> ETag map.
func (s *CalendarState) Live() map[string]string {
	live := make(map[string]string, len(s.objects))
	for href, obj := range s.objects {
		live[href] = obj.ETag
	}
	return live
}

// Snapshot captures the current sync position.
func (s *CalendarState) Snapshot() SyncState {
	return SyncState{Token: s.Calendar.SyncToken, Objects: s.Live()}
}

// RecordSyncToken stores a token the server issued. Tokens must be
// monotonically non-decreasing for the life of the run: reissuing an
// older token after changes is an error.
func (s *CalendarState) RecordSyncToken(token string) error {
	if token == "" {
		return fmt.Errorf("empty sync token")
	}
	// A repeat of the current token is fine (no changes since); a
	// repeat of an older token means the server went backwards.
	for i, seen := range s.tokens {
		if seen == token && i != len(s.tokens)-1 {
			return fmt.Errorf("sync token %q reissued after newer token %q", token, s.tokens[len(s.tokens)-1])
		}
	}
	if len(s.tokens) == 0 || s.tokens[len(s.tokens)-1] != token {
		s.tokens = append(s.tokens, token)
	}
	s.Calendar.SyncToken = token
	return nil
}
