package analyzer

import (
	"bytes"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// noVersionLabel is reported when a page declares no doctype.
const noVersionLabel = "No html version information"

// DocType is the <!DOCTYPE ...> declaration of a page.
type DocType struct {
	Name     string
	PublicID string
	SystemID string
}

// PageStructure is what the parser extracts from one HTML document.
type PageStructure struct {
	Title        string
	HasTitle     bool
	DocType      *DocType       // nil when the document declares none
	Headings     map[string]int // always holds h1..h6
	RawLinks     []string       // href of every <a href>, in document order
	HasLoginForm bool
}

// PageParser turns an HTML body into a PageStructure.
type PageParser struct{}

// Parse extracts the page structure from body. contentType is the response
// Content-Type header and only serves to pick the character set.
//
// Parsing is permissive and never fails: whatever cannot be read maps to a
// zero value.
func (PageParser) Parse(body []byte, contentType string) PageStructure {
	page := PageStructure{Headings: make(map[string]int, len(headingTags))}
	for _, tag := range headingTags {
		page.Headings[tag] = 0
	}

	doc, err := goquery.NewDocumentFromReader(decodeBody(body, contentType))
	if err != nil {
		return page
	}

	if len(doc.Nodes) > 0 {
		page.DocType = findDocType(doc.Nodes[0])
	}

	if title := doc.Find("title").First(); title.Length() > 0 {
		page.Title = strings.TrimSpace(title.Text())
		page.HasTitle = true
	}

	for _, tag := range headingTags {
		page.Headings[tag] = doc.Find(tag).Length()
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		page.RawLinks = append(page.RawLinks, href)
	})

	page.HasLoginForm = hasInputType(doc, "password") && hasInputType(doc, "text")
	return page
}

// decodeBody converts body to UTF-8 based on the header and <meta> hints.
// Unknown encodings fall back to the raw bytes.
func decodeBody(body []byte, contentType string) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return bytes.NewReader(body)
	}
	return r
}

// findDocType returns the doctype if it is the first significant node of the
// document. Comments and whitespace may precede it; an element may not.
func findDocType(root *html.Node) *DocType {
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		switch n.Type {
		case html.CommentNode:
			continue
		case html.TextNode:
			if strings.TrimSpace(n.Data) == "" {
				continue
			}
			return nil
		case html.DoctypeNode:
			dt := &DocType{Name: n.Data}
			for _, attr := range n.Attr {
				switch attr.Key {
				case "public":
					dt.PublicID = attr.Val
				case "system":
					dt.SystemID = attr.Val
				}
			}
			return dt
		default:
			return nil
		}
	}
	return nil
}

// hasInputType reports whether doc holds an <input> with the given type.
func hasInputType(doc *goquery.Document, typ string) bool {
	found := false
	doc.Find("input[type]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(s.AttrOr("type", "")), typ) {
			found = true
			return false
		}
		return true
	})
	return found
}

// HTMLVersion maps a doctype to a human readable version label.
func HTMLVersion(dt *DocType) string {
	if dt == nil {
		return noVersionLabel
	}

	public := strings.ToLower(dt.PublicID)
	switch {
	case public == "" && strings.EqualFold(dt.Name, "html"):
		return "HTML5"
	case strings.Contains(public, "xhtml 1.1"):
		return "XHTML 1.1"
	case strings.Contains(public, "xhtml 1.0"):
		return "XHTML 1.0"
	case strings.Contains(public, "html 4.01"):
		return "HTML 4.01"
	case strings.Contains(public, "html 4.0"):
		return "HTML 4.0"
	case strings.Contains(public, "html 3.2"):
		return "HTML 3.2"
	case strings.Contains(public, "html 2.0"):
		return "HTML 2.0"
	}
	return "Unknown (" + dt.Name + ")"
}
