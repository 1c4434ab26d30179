package catalog

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

type nodeFunc func(node *html.Node)

// walkNodeTree visits root and its descendants depth first.
func walkNodeTree(root *html.Node, nodeFn nodeFunc) {
	nodeFn(root)
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		walkNodeTree(c, nodeFn)
	}
}

// ExtractAnchors returns the trimmed text of every <a> element of an HTML
// document, in document order.
func ExtractAnchors(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html failed, err:%w", err)
	}
	var anchors []string
	walkNodeTree(doc, func(node *html.Node) {
		if node.Type != html.ElementNode || node.Data != "a" {
			return
		}
		var sb strings.Builder
		walkNodeTree(node, func(n *html.Node) {
			if n.Type == html.TextNode {
				sb.WriteString(n.Data)
			}
		})
		anchors = append(anchors, strings.TrimSpace(sb.String()))
	})
	return anchors, nil
}
