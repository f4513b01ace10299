package mockdav

import (
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil {
		http.Error(w, "malformed REPORT body", http.StatusBadRequest)
		return
	}

	calPath := r.URL.Path
	if !strings.HasSuffix(calPath, "/") {
		calPath += "/"
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	cal, ok := s.store.calendars[calPath]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch doc.Root().Tag {
	case "calendar-query":
		s.reportQuery(w, cal)
	case "calendar-multiget":
		s.reportMultiget(w, cal, doc)
	case "sync-collection":
		s.reportSync(w, cal, doc)
	default:
		http.Error(w, "unsupported report", http.StatusForbidden)
	}
}

func (s *Server) reportQuery(w http.ResponseWriter, cal *calendar) {
	doc, ms := newMultistatus()
	for _, objPath := range sortedObjectPaths(cal) {
		obj := cal.objects[objPath]
		prop := addResponse(ms, objPath)
		prop.CreateElement("D:getetag").SetText(obj.etag)
		prop.CreateElement("C:calendar-data").SetText(string(obj.data))
	}
	writeMultistatus(w, doc)
}

func (s *Server) reportMultiget(w http.ResponseWriter, cal *calendar, req *etree.Document) {
	doc, ms := newMultistatus()
	for _, hrefElem := range req.Root().ChildElements() {
		if hrefElem.Tag != "href" {
			continue
		}
		href := strings.TrimSpace(hrefElem.Text())
		obj, ok := cal.objects[href]
		if !ok {
			addStatusResponse(ms, href, "HTTP/1.1 404 Not Found")
			continue
		}
		prop := addResponse(ms, href)
		prop.CreateElement("D:getetag").SetText(obj.etag)
		prop.CreateElement("C:calendar-data").SetText(string(obj.data))
	}
	writeMultistatus(w, doc)
}

func (s *Server) reportSync(w http.ResponseWriter, cal *calendar, req *etree.Document) {
	var token string
	if tokenElem := findDescendant(req.Root(), "sync-token"); tokenElem != nil {
		token = strings.TrimSpace(tokenElem.Text())
	}

	since := 0
	if token != "" {
		seq, ok := parseSyncToken(token)
		if !ok {
			http.Error(w, "unknown sync token", http.StatusForbidden)
			return
		}
		since = seq
	}

	doc, ms := newMultistatus()

	if since == 0 {
		// Initial sync: every live object counts as changed.
		for _, objPath := range sortedObjectPaths(cal) {
			prop := addResponse(ms, objPath)
			prop.CreateElement("D:getetag").SetText(cal.objects[objPath].etag)
		}
	} else {
		// Collapse the change log to the latest entry per path.
		latest := make(map[string]change)
		for _, ch := range cal.changes {
			if ch.seq > since {
				latest[ch.path] = ch
			}
		}
		for _, objPath := range sortedKeys(latest) {
			ch := latest[objPath]
			if ch.deleted {
				addStatusResponse(ms, ch.path, "HTTP/1.1 404 Not Found")
				continue
			}
			if obj, ok := cal.objects[ch.path]; ok {
				prop := addResponse(ms, ch.path)
				prop.CreateElement("D:getetag").SetText(obj.etag)
			}
		}
	}

	ms.CreateElement("D:sync-token").SetText(cal.syncToken())
	writeMultistatus(w, doc)
}

func sortedKeys(m map[string]change) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
