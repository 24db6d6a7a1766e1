package htmlutil

import (
	"bytes"
	"net/url"
	"strings"

	"gamefeed-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

type Anchor struct {
	Name string
	Href string
}

// GetAnchors pulls (text, href) pairs out of a selection of <a> nodes,
// dropping anchors whose href does not parse.
func GetAnchors(sel *goquery.Selection) []Anchor {
	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}

		link, err := url.Parse(href)
		if err != nil {
			continue
		}

		anchors = append(anchors, Anchor{
			Name: textutil.Clean(GetText(n)),
			Href: link.String(),
		})
	}

	return anchors
}

// AnchorNames is GetAnchors for callers that only care about the link
// labels, storefront detail pages list genres and companies this way.
func AnchorNames(sel *goquery.Selection) []string {
	var names []string
	for _, anchor := range GetAnchors(sel) {
		if anchor.Name != "" {
			names = append(names, anchor.Name)
		}
	}
	return names
}

// JSONLDBlocks returns the raw contents of every
// <script type="application/ld+json"> block in the document. Storefront
// product pages embed release metadata there.
func JSONLDBlocks(doc *goquery.Document) []string {
	var blocks []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			blocks = append(blocks, text)
		}
	})
	return blocks
}
