package mockdav

import (
	"net/http"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

func newMultistatus() (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("D:multistatus")
	root.CreateAttr("xmlns:D", "DAV:")
	root.CreateAttr("xmlns:C", "urn:ietf:params:xml:ns:caldav")
	root.CreateAttr("xmlns:CS", "http://calendarserver.org/ns/")
	return doc, root
}

// addResponse appends a response with one 200 propstat and returns the
// prop element to fill.
func addResponse(ms *etree.Element, href string) *etree.Element {
	resp := ms.CreateElement("D:response")
	resp.CreateElement("D:href").SetText(href)
	propstat := resp.CreateElement("D:propstat")
	prop := propstat.CreateElement("D:prop")
	propstat.CreateElement("D:status").SetText("HTTP/1.1 200 OK")
	return prop
}

func addStatusResponse(ms *etree.Element, href, status string) {
	resp := ms.CreateElement("D:response")
	resp.CreateElement("D:href").SetText(href)
	resp.CreateElement("D:status").SetText(status)
}

func writeMultistatus(w http.ResponseWriter, doc *etree.Document) {
	body, err := doc.WriteToBytes()
	if err != nil {
		http.Error(w, "failed to serialize response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(body)
}

func (s *Server) addCalendarProps(prop *etree.Element, cal *calendar) {
	rt := prop.CreateElement("D:resourcetype")
	rt.CreateElement("D:collection")
	rt.CreateElement("C:calendar")
	prop.CreateElement("D:displayname").SetText(cal.displayName)
	prop.CreateElement("D:sync-token").SetText(cal.syncToken())
	prop.CreateElement("CS:getctag").SetText(cal.syncToken())
	compSet := prop.CreateElement("C:supported-calendar-component-set")
	for _, name := range cal.components {
		comp := compSet.CreateElement("C:comp")
		comp.CreateAttr("name", name)
	}
}

func (s *Server) addObjectProps(prop *etree.Element, obj *object) {
	prop.CreateElement("D:resourcetype")
	prop.CreateElement("D:getetag").SetText(obj.etag)
	prop.CreateElement("D:getcontenttype").SetText("text/calendar; charset=utf-8")
}

func (s *Server) handlePropfind(w http.ResponseWriter, r *http.Request) {
	depth := r.Header.Get("Depth")
	if depth == "" {
		depth = "0"
	}
	path := r.URL.Path
	collectionPath := path
	if !strings.HasSuffix(collectionPath, "/") {
		collectionPath += "/"
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	doc, ms := newMultistatus()

	switch {
	case collectionPath == HomePath:
		prop := addResponse(ms, HomePath)
		prop.CreateElement("D:resourcetype").CreateElement("D:collection")
		prop.CreateElement("D:displayname").SetText("probe home")
		if depth == "1" {
			for _, calPath := range sortedCalendarPaths(s.store) {
				s.addCalendarProps(addResponse(ms, calPath), s.store.calendars[calPath])
			}
		}

	case s.store.calendars[collectionPath] != nil:
		cal := s.store.calendars[collectionPath]
		s.addCalendarProps(addResponse(ms, collectionPath), cal)
		if depth == "1" {
			for _, objPath := range sortedObjectPaths(cal) {
				s.addObjectProps(addResponse(ms, objPath), cal.objects[objPath])
			}
		}

	default:
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
		s.addObjectProps(addResponse(ms, path), obj)
	}

	writeMultistatus(w, doc)
}

func sortedCalendarPaths(st *store) []string {
	paths := make([]string, 0, len(st.calendars))
	for path := range st.calendars {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func sortedObjectPaths(cal *calendar) []string {
	paths := make([]string, 0, len(cal.objects))
	for path := range cal.objects {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
