package xog

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
)

func TestWrap_Anonymous(t *testing.T) {
	doc := Wrap(LogoutElement(), nil)
	root := doc.Root()

	if root.Space != "soapenv" || root.Tag != "Envelope" {
		t.Fatalf("root = %s:%s, want soapenv:Envelope", root.Space, root.Tag)
	}
	for prefix, uri := range map[string]string{"soapenv": NamespaceSOAP, "xog": NamespaceXOG, "xsi": NamespaceXSI} {
		if got := root.SelectAttrValue("xmlns:"+prefix, ""); got != uri {
			t.Errorf("xmlns:%s = %q, want %q", prefix, got, uri)
		}
	}

	header := root.SelectElement("soapenv:Header")
	if header == nil {
		t.Fatal("missing soapenv:Header")
	}
	if len(header.ChildElements()) != 0 {
		t.Errorf("anonymous header has %d children, want 0", len(header.ChildElements()))
	}

	if root.FindElement("./soapenv:Body/xog:Logout") == nil {
		t.Error("body does not contain xog:Logout")
	}
}

func TestWrap_SessionToken(t *testing.T) {
	doc := Wrap(etree.NewElement("NikuDataBus"), SessionToken("abc123"))

	auth := doc.Root().FindElement("./soapenv:Header/xog:Auth")
	if auth == nil {
		t.Fatal("missing xog:Auth")
	}
	if got := auth.SelectElement("xog:SessionID"); got == nil || got.Text() != "abc123" {
		t.Errorf("SessionID element = %v, want abc123", got)
	}
	if auth.SelectElement("xog:Username") != nil || auth.SelectElement("xog:Password") != nil {
		t.Error("session auth must not carry username/password")
	}
}

func TestWrap_UserPassword(t *testing.T) {
	doc := Wrap(etree.NewElement("NikuDataBus"), UserPassword{Username: "admin", Password: "secret"})

	auth := doc.Root().FindElement("./soapenv:Header/xog:Auth")
	if auth == nil {
		t.Fatal("missing xog:Auth")
	}
	if auth.SelectElement("xog:SessionID") != nil {
		t.Error("password auth must not carry a session ID")
	}
	if got := auth.SelectElement("xog:Username").Text(); got != "admin" {
		t.Errorf("Username = %q, want admin", got)
	}
	if got := auth.SelectElement("xog:Password").Text(); got != "secret" {
		t.Errorf("Password = %q, want secret", got)
	}
}

func TestWrap_DoesNotReparentBody(t *testing.T) {
	parent := etree.NewElement("Holder")
	body := parent.CreateElement("NikuDataBus")

	Wrap(body, nil)

	if body.Parent() != parent {
		t.Error("Wrap moved the caller's element out of its tree")
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(Wrap(LoginElement("admin", "secret"), nil))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := string(data)
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<soapenv:Envelope`,
		`<xog:Login>`,
		`<xog:Username>admin</xog:Username>`,
		`<xog:Password>secret</xog:Password>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("encoded envelope missing %q:\n%s", want, out)
		}
	}
}

func TestLoginLogoutElements(t *testing.T) {
	login := LoginElement("admin", "secret")
	if login.Space != "xog" || login.Tag != "Login" {
		t.Errorf("login element = %s:%s, want xog:Login", login.Space, login.Tag)
	}
	if got := login.SelectElement("Username").Text(); got != "admin" {
		t.Errorf("Username = %q, want admin", got)
	}
	if got := login.SelectElement("Password").Text(); got != "secret" {
		t.Errorf("Password = %q, want secret", got)
	}

	logout := LogoutElement()
	if logout.FullTag() != "xog:Logout" || len(logout.ChildElements()) != 0 {
		t.Errorf("logout element = %s with %d children", logout.FullTag(), len(logout.ChildElements()))
	}
}
