package xog

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// Status states reported by XOGOutput/Status.
const (
	StateOK      = "OK"
	StateFailure = "FAILURE"
)

// Response is a successfully classified XOG response.
type Response struct {
	// Doc is the full parsed response document.
	Doc *etree.Document

	// Payload is Body/NikuDataBus when present, otherwise the document root.
	Payload *etree.Element

	// Skip is the offset for the next page of a read, nil on the last page.
	Skip *int
}

// HasMore reports whether the response points at a further page.
func (r *Response) HasMore() bool {
	return r.Skip != nil
}

// Parse reads a raw response body into a document.
func Parse(body []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedResponse)
	}
	return doc, nil
}

// ClassifyBytes parses body and classifies it.
func ClassifyBytes(body []byte) (*Response, error) {
	doc, err := Parse(body)
	if err != nil {
		return nil, err
	}
	return Classify(doc)
}

// Classify inspects a response document and returns its payload and
// pagination cursor, or the protocol error it carries.
//
// The XOGOutput element nests at different depths depending on the call, so it
// is searched for across the whole document. A document without one (logout
// acknowledgements, for instance) is a success without a cursor.
func Classify(doc *etree.Document) (*Response, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedResponse)
	}

	resp := &Response{Doc: doc, Payload: payloadOf(root)}

	output := root.FindElement(".//XOGOutput")
	if output == nil {
		return resp, nil
	}

	if status := output.SelectElement("Status"); status != nil {
		if status.SelectAttrValue("state", StateOK) == StateFailure {
			info := output.SelectElement("ErrorInformation")
			if info == nil {
				return nil, &FailureError{Doc: doc}
			}
			return nil, &ProtocolError{
				Severity:    childText(info, "Severity", DefaultSeverity),
				Description: childText(info, "Description", DefaultDescription),
				Doc:         doc,
			}
		}
	}

	if skip := output.FindElement(".//Skip[@value]"); skip != nil {
		raw := skip.SelectAttrValue("value", "")
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: skip value %q: %v", ErrMalformedResponse, raw, err)
		}
		resp.Skip = &n
	}

	return resp, nil
}

// payloadOf returns the NikuDataBus directly under the SOAP body, or root.
func payloadOf(root *etree.Element) *etree.Element {
	if databus := root.FindElement("./Body/NikuDataBus"); databus != nil {
		return databus
	}
	return root
}

func childText(el *etree.Element, tag, dflt string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return dflt
	}
	return child.Text()
}
