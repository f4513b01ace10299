package xmlbody

import "github.com/beevik/etree"

// Namespace definitions for CalDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// CalendarServer is the Calendar Server namespace (used by some implementations)
	CalendarServer = "http://calendarserver.org/ns/"
)

// Prefixes used when serializing request bodies. Parsing accepts any
// prefix the server chose; only local tags are compared.
const (
	prefixDAV            = "D"
	prefixCalDAV         = "C"
	prefixCalendarServer = "CS"
)

// namespacePrefix maps a namespace URI to the serialization prefix.
var namespacePrefix = map[string]string{
	DAV:            prefixDAV,
	CalDAV:         prefixCalDAV,
	CalendarServer: prefixCalendarServer,
}

// declareNamespaces adds xmlns attributes for the given namespace URIs
// to the document root.
func declareNamespaces(doc *etree.Document, namespaces ...string) {
	root := doc.Root()
	if root == nil {
		return
	}
	for _, ns := range namespaces {
		root.CreateAttr("xmlns:"+namespacePrefix[ns], ns)
	}
}

// createRoot creates the document root element with the prefix for ns.
func createRoot(doc *etree.Document, ns, tag string) *etree.Element {
	return doc.CreateElement(namespacePrefix[ns] + ":" + tag)
}

// createChild creates a child element with the prefix for ns.
func createChild(parent *etree.Element, ns, tag string) *etree.Element {
	return parent.CreateElement(namespacePrefix[ns] + ":" + tag)
}

// findChild returns the first child element with the given local tag,
// ignoring the namespace prefix.
func findChild(parent *etree.Element, tag string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

// findChildren returns all child elements with the given local tag,
// ignoring the namespace prefix.
func findChildren(parent *etree.Element, tag string) []*etree.Element {
	var elems []*etree.Element
	for _, child := range parent.ChildElements() {
		if child.Tag == tag {
			elems = append(elems, child)
		}
	}
	return elems
}
