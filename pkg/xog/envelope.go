// Package xog implements the XML Open Gateway wire format: the SOAP envelope
// wrapped around every call, scalar value encoding, and classification of
// responses into payloads, pagination cursors, and protocol errors.
package xog

import (
	"fmt"

	"github.com/beevik/etree"
)

// Namespace URIs declared on every envelope.
const (
	NamespaceSOAP = "http://schemas.xmlsoap.org/soap/envelope/"
	NamespaceXOG  = "http://www.niku.com/xog"
	NamespaceXSI  = "http://www.w3.org/2001/XMLSchema-instance"
)

// ContentType is the Content-Type header sent with every XOG call.
const ContentType = "text/xml; charset=utf-8"

// Credential authenticates an envelope. A nil Credential produces an
// anonymous envelope with an empty header.
type Credential interface {
	writeAuth(auth *etree.Element)
}

// SessionToken is the opaque session ID issued by a successful login.
type SessionToken string

func (t SessionToken) writeAuth(auth *etree.Element) {
	auth.CreateElement("xog:SessionID").SetText(string(t))
}

// UserPassword carries plain credentials inside the envelope header.
type UserPassword struct {
	Username string
	Password string
}

func (c UserPassword) writeAuth(auth *etree.Element) {
	auth.CreateElement("xog:Username").SetText(c.Username)
	auth.CreateElement("xog:Password").SetText(c.Password)
}

// Wrap builds the Envelope/Header/Body document around body.
// The body element is copied, so the caller's tree is left untouched.
func Wrap(body *etree.Element, cred Credential) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("soapenv:Envelope")
	root.CreateAttr("xmlns:soapenv", NamespaceSOAP)
	root.CreateAttr("xmlns:xog", NamespaceXOG)
	root.CreateAttr("xmlns:xsi", NamespaceXSI)

	header := root.CreateElement("soapenv:Header")
	if cred != nil {
		cred.writeAuth(header.CreateElement("xog:Auth"))
	}

	bodyEl := root.CreateElement("soapenv:Body")
	if body != nil {
		bodyEl.AddChild(body.Copy())
	}

	return doc
}

// Encode serializes an envelope to bytes, indented, with an XML declaration.
func Encode(doc *etree.Document) ([]byte, error) {
	doc.Indent(2)
	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// LoginElement builds the xog:Login request element.
func LoginElement(username, password string) *etree.Element {
	login := etree.NewElement("xog:Login")
	login.CreateElement("xog:Username").SetText(username)
	login.CreateElement("xog:Password").SetText(password)
	return login
}

// LogoutElement builds the xog:Logout request element.
func LogoutElement() *etree.Element {
	return etree.NewElement("xog:Logout")
}
