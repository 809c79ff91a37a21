package parser

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/andrestor94/pliegos-ai/internal/doctree"
)

// extractHTML keeps the visible text of block elements, one block per
// paragraph. Table rows become " | "-joined lines.
func extractHTML(data []byte) (doctree.Document, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return doctree.Document{}, fmt.Errorf("parse html: %w", err)
	}

	var blocks []string
	add := func(t string) {
		t = strings.Join(strings.Fields(t), " ")
		if t != "" {
			blocks = append(blocks, t)
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "noscript", "head":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "blockquote", "pre", "dt", "dd":
				add(textContent(n))
				return
			case "tr":
				var cells []string
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
						cells = append(cells, strings.Join(strings.Fields(textContent(c)), " "))
					}
				}
				add(strings.Join(cells, " | "))
				return
			}
		}
		if n.Type == html.TextNode && n.Parent != nil && n.Parent.Data == "body" {
			add(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	return singlePage(strings.Join(blocks, "\n\n"), doctree.OriginNative), nil
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
