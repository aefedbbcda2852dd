// Package testutil provides testing utilities for the XOG migration tooling.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"
)

// DefaultXOGPath is the servlet path the mock answers XOG calls on.
const DefaultXOGPath = "/niku/xog"

// MockXOG is a configurable in-process XOG endpoint for testing.
//
// It understands Login, Logout, paged NikuDataBus reads and NikuDataBus
// writes. Read pages are served by the "skip" header argument: page i is
// returned for skip == i*PageSize, and every page but the last carries a Skip
// element pointing at the next one.
type MockXOG struct {
	server *httptest.Server

	mu        sync.RWMutex
	handlers  map[string]http.HandlerFunc
	users     map[string]string
	pages     map[string][]string
	pageSize  int
	sessionID string
	failWrite map[int]string
	status    int

	// Tracking
	RequestCount int
	Logins       int
	Logouts      int
	Reads        []int
	Writes       []string
	LastHeader   http.Header
}

// NewMockXOG creates a mock XOG server accepting username/password pairs in users.
func NewMockXOG(users map[string]string) *MockXOG {
	mock := &MockXOG{
		handlers:  make(map[string]http.HandlerFunc),
		users:     users,
		pages:     make(map[string][]string),
		pageSize:  50,
		sessionID: "mock-session-1",
		failWrite: make(map[int]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastHeader = r.Header.Clone()
		status := mock.status
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}
		if exists {
			handler(w, r)
			return
		}
		if r.URL.Path != DefaultXOGPath {
			http.NotFound(w, r)
			return
		}

		mock.serveXOG(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockXOG) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockXOG) Close() {
	m.server.Close()
}

// SessionID returns the session ID handed out on login.
func (m *MockXOG) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// SetHandler sets a custom handler for a specific path.
func (m *MockXOG) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetStatus forces every response to carry an HTTP status code. Zero restores normal behavior.
func (m *MockXOG) SetStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = code
}

// SetPages configures the read pages served for objectType. Each page is the
// inner XML placed inside the response NikuDataBus.
func (m *MockXOG) SetPages(objectType string, pages ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[objectType] = pages
}

// FailWrite makes the n-th write (1-based) fail with a classified error.
func (m *MockXOG) FailWrite(n int, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite[n] = description
}

// GetWrites returns the NikuDataBus documents received as writes.
func (m *MockXOG) GetWrites() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Writes...)
}

// GetReads returns the skip offsets of all reads received, in order.
func (m *MockXOG) GetReads() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.Reads...)
}

// GetLogouts returns the number of logout calls received.
func (m *MockXOG) GetLogouts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Logouts
}

// GetLastHeader returns the headers of the most recent request.
func (m *MockXOG) GetLastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastHeader
}

func (m *MockXOG) serveXOG(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil || doc.Root() == nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}

	body := doc.Root().FindElement("./Body")
	if body == nil || len(body.ChildElements()) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}
	request := body.ChildElements()[0]

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")

	switch request.Tag {
	case "Login":
		m.serveLogin(w, request)
	case "Logout":
		m.mu.Lock()
		m.Logouts++
		m.mu.Unlock()
		io.WriteString(w, Envelope(`<xog:LogoutResponse xmlns:xog="http://www.niku.com/xog"/>`))
	case "NikuDataBus":
		if !m.authorized(doc, r) {
			io.WriteString(w, FailureEnvelope("FATAL", "Invalid session"))
			return
		}
		header := request.SelectElement("Header")
		if header != nil && header.SelectAttrValue("action", "read") == "write" {
			m.serveWrite(w, request)
			return
		}
		m.serveRead(w, request)
	default:
		io.WriteString(w, FailureEnvelope("FATAL", "Unknown request "+request.Tag))
	}
}

func (m *MockXOG) serveLogin(w http.ResponseWriter, request *etree.Element) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logins++

	user := textOf(request, "Username")
	pass := textOf(request, "Password")
	if want, ok := m.users[user]; !ok || want != pass {
		io.WriteString(w, FailureEnvelope("FATAL", "Invalid username or password"))
		return
	}

	io.WriteString(w, Envelope(fmt.Sprintf(
		`<xog:SessionID xmlns:xog="http://www.niku.com/xog">%s</xog:SessionID>`, m.sessionID)))
}

func (m *MockXOG) serveRead(w http.ResponseWriter, request *etree.Element) {
	objectType := ""
	skip := 0
	if header := request.SelectElement("Header"); header != nil {
		objectType = header.SelectAttrValue("objectType", "")
		for _, arg := range header.SelectElements("args") {
			if arg.SelectAttrValue("name", "") == "skip" {
				skip, _ = strconv.Atoi(arg.SelectAttrValue("value", "0"))
			}
		}
	}

	m.mu.Lock()
	m.Reads = append(m.Reads, skip)
	pages := m.pages[objectType]
	pageSize := m.pageSize
	m.mu.Unlock()

	index := skip / pageSize
	content := ""
	if index < len(pages) {
		content = pages[index]
	}

	output := `<XOGOutput><Object type="` + objectType + `"/><Status state="SUCCESS"/>`
	if index+1 < len(pages) {
		output += fmt.Sprintf(`<Records><Skip value="%d"/></Records>`, (index+1)*pageSize)
	}
	output += `</XOGOutput>`

	io.WriteString(w, Envelope(fmt.Sprintf(
		`<NikuDataBus><Header action="write" externalSource="NIKU" objectType="%s" version="8.0"/>%s%s</NikuDataBus>`,
		objectType, content, output)))
}

func (m *MockXOG) serveWrite(w http.ResponseWriter, request *etree.Element) {
	written := etree.NewDocument()
	written.SetRoot(request.Copy())
	text, _ := written.WriteToString()

	m.mu.Lock()
	m.Writes = append(m.Writes, text)
	n := len(m.Writes)
	description, fail := m.failWrite[n]
	m.mu.Unlock()

	if fail {
		io.WriteString(w, FailureEnvelope("FATAL", description))
		return
	}

	io.WriteString(w, Envelope(`<XOGOutput><Object type="write"/><Status state="SUCCESS"/>`+
		`<Statistics totalNumberOfRecords="1" insertedRecords="1" updatedRecords="0" failureRecords="0"/></XOGOutput>`))
}

func (m *MockXOG) authorized(doc *etree.Document, r *http.Request) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if el := doc.Root().FindElement("./Header/Auth/SessionID"); el != nil && el.Text() == m.sessionID {
		return r.Header.Get("Authtoken") == m.sessionID
	}
	return false
}

func textOf(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

// Envelope wraps inner XML in a SOAP response envelope.
func Envelope(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<soapenv:Body>` + inner + `</soapenv:Body></soapenv:Envelope>`
}

// FailureEnvelope builds a response with a FAILURE status and ErrorInformation.
func FailureEnvelope(severity, description string) string {
	return Envelope(`<XOGOutput><Status state="FAILURE"/><ErrorInformation>` +
		`<Severity>` + severity + `</Severity><Description>` + description + `</Description>` +
		`</ErrorInformation></XOGOutput>`)
}

// ReadPage builds a read response holding content, pointing at skip when next is true.
func ReadPage(content string, skip int, next bool) string {
	output := `<XOGOutput><Status state="SUCCESS"/>`
	if next {
		output += fmt.Sprintf(`<Records><Skip value="%d"/></Records>`, skip)
	}
	return Envelope(`<NikuDataBus>` + content + output + `</XOGOutput></NikuDataBus>`)
}
