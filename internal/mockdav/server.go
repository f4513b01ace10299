package mockdav

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/beevik/etree"
)

// HomePath is the calendar home collection every test server exposes.
const HomePath = "/calendars/probe/"

// Server is an in-memory CalDAV server implementing http.Handler.
type Server struct {
	store  *store
	logger *slog.Logger

	// Username/Password enforce basic auth when non-empty.
	Username string
	Password string
}

// New creates an empty test server.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{store: newStore(), logger: logger}
}

// CalendarCount reports how many calendars currently exist, so tests
// can assert teardown happened.
func (s *Server) CalendarCount() int {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	return len(s.store.calendars)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.Username != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="mockdav"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	s.logger.Debug("mockdav request", "method", r.Method, "path", r.URL.Path)

	switch r.Method {
	case http.MethodOptions:
		s.handleOptions(w, r)
	case "MKCALENDAR":
		s.handleMkcalendar(w, r)
	case "PROPFIND":
		s.handlePropfind(w, r)
	case "REPORT":
		s.handleReport(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodPut:
		s.handlePut(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOptions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("DAV", "1, 3, calendar-access, sync-collection")
	w.Header().Set("Allow", "OPTIONS, GET, PUT, DELETE, PROPFIND, REPORT, MKCALENDAR")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMkcalendar(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	if !strings.HasPrefix(path, HomePath) || path == HomePath {
		http.Error(w, "calendars live under the home collection", http.StatusForbidden)
		return
	}

	displayName := strings.Trim(strings.TrimPrefix(path, HomePath), "/")
	components := []string{"VEVENT"}
	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(body); err != nil {
			http.Error(w, "malformed MKCALENDAR body", http.StatusBadRequest)
			return
		}
		if name := findDescendant(doc.Root(), "displayname"); name != nil {
			displayName = name.Text()
		}
		if compSet := findDescendant(doc.Root(), "supported-calendar-component-set"); compSet != nil {
			components = nil
			for _, comp := range compSet.ChildElements() {
				if name := comp.SelectAttrValue("name", ""); name != "" {
					components = append(components, name)
				}
			}
		}
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, exists := s.store.calendars[path]; exists {
		http.Error(w, "calendar already exists", http.StatusMethodNotAllowed)
		return
	}
	s.store.calendars[path] = &calendar{
		displayName: displayName,
		components:  components,
		objects:     make(map[string]*object),
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	cal, ok := s.store.calendarFor(r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	obj, ok := cal.objects[r.URL.Path]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("ETag", obj.etag)
	w.WriteHeader(http.StatusOK)
	w.Write(obj.data)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	cal, ok := s.store.calendarFor(r.URL.Path)
	if !ok {
		http.Error(w, "no such calendar", http.StatusConflict)
		return
	}

	existing, exists := cal.objects[r.URL.Path]
	if r.Header.Get("If-None-Match") == "*" && exists {
		http.Error(w, "resource exists", http.StatusPreconditionFailed)
		return
	}
	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
		if !exists || existing.etag != ifMatch {
			http.Error(w, "etag mismatch", http.StatusPreconditionFailed)
			return
		}
	}

	etag := generateETag(data)
	cal.objects[r.URL.Path] = &object{data: data, etag: etag}
	cal.recordChange(r.URL.Path, false)

	w.Header().Set("ETag", etag)
	if exists {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	path := r.URL.Path
	calPath := path
	if !strings.HasSuffix(calPath, "/") {
		calPath += "/"
	}
	if _, ok := s.store.calendars[calPath]; ok {
		delete(s.store.calendars, calPath)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	cal, ok := s.store.calendarFor(path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	obj, ok := cal.objects[path]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" && obj.etag != ifMatch {
		http.Error(w, "etag mismatch", http.StatusPreconditionFailed)
		return
	}

	delete(cal.objects, path)
	cal.recordChange(path, true)
	w.WriteHeader(http.StatusNoContent)
}

// findDescendant walks the element tree for the first element with the
// given local tag, ignoring namespace prefixes.
func findDescendant(elem *etree.Element, tag string) *etree.Element {
	if elem == nil {
		return nil
	}
	if elem.Tag == tag {
		return elem
	}
	for _, child := range elem.ChildElements() {
		if found := findDescendant(child, tag); found != nil {
			return found
		}
	}
	return nil
}
