// Package page exposes a read-only snapshot of an HTML page: selector queries,
// attribute reads and a computed-style approximation for background images.
package page

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/urlutil"
)

// Element is a single node of a page snapshot
type Element interface {
	// Tag returns the lower-case tag name
	Tag() string
	// Attr returns the attribute value, or "" when absent
	Attr(name string) string
	// Text returns the trimmed text content
	Text() string
	// Style returns the computed value of a CSS property, or ""
	Style(property string) string
}

// Snapshot is the query surface the scanner runs against
type Snapshot interface {
	// URL is the address the document was loaded from; relative references
	// resolve against it.
	URL() string
	// Query returns the elements matching a CSS selector in document order.
	Query(selector string) []Element
}

var (
	ruleSet     = regexp.MustCompile(`([^{}]+)\{([^{}]*)\}`)
	cssComments = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Document is a Snapshot backed by a parsed HTML tree
type Document struct {
	url    string
	doc    *goquery.Document
	styles map[*html.Node]map[string]string
}

// Parse reads an HTML document. baseURL is the address it was served from; a
// <base href> in the document takes precedence when present.
func Parse(r io.Reader, baseURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	d := &Document{
		url:    baseURL,
		doc:    doc,
		styles: make(map[*html.Node]map[string]string),
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && href != "" {
		if resolved, ok := resolveBase(href, baseURL); ok {
			d.url = resolved
		}
	}

	d.applyStyleSheets()
	d.applyInlineStyles()
	return d, nil
}

func resolveBase(href, baseURL string) (string, bool) {
	if urlutil.IsHTTP(href) {
		return href, true
	}
	return urlutil.Resolve(href, baseURL)
}

// URL implements Snapshot
func (d *Document) URL() string {
	return d.url
}

// Query implements Snapshot. Invalid selectors match nothing.
func (d *Document) Query(selector string) []Element {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		logger.Debugf("Ignoring invalid selector %q: %v", selector, err)
		return nil
	}

	var out []Element
	d.doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &node{sel: s, doc: d})
	})
	return out
}

// applyStyleSheets cascades declarations from <style> blocks in document order.
// Specificity is not computed; a later rule wins over an earlier one.
func (d *Document) applyStyleSheets() {
	d.doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		css := cssComments.ReplaceAllString(s.Text(), "")
		for _, m := range ruleSet.FindAllStringSubmatch(css, -1) {
			decls := parseDeclarations(m[2])
			if len(decls) == 0 {
				continue
			}
			selector := strings.TrimSpace(m[1])
			if strings.HasPrefix(selector, "@") {
				continue
			}
			group, err := cascadia.Compile(selector)
			if err != nil {
				logger.Debugf("Skipping stylesheet rule %q: %v", selector, err)
				continue
			}
			for _, n := range group.MatchAll(d.doc.Get(0)) {
				d.setStyles(n, decls)
			}
		}
	})
}

func (d *Document) applyInlineStyles() {
	d.doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		if decls := parseDeclarations(style); len(decls) > 0 {
			d.setStyles(s.Get(0), decls)
		}
	})
}

func (d *Document) setStyles(n *html.Node, decls map[string]string) {
	current, ok := d.styles[n]
	if !ok {
		current = make(map[string]string)
		d.styles[n] = current
	}
	for prop, value := range decls {
		current[prop] = value
	}
}

// parseDeclarations splits "a: b; c: d" into a property map. The background
// shorthand is folded into background-image when it carries an image.
func parseDeclarations(block string) map[string]string {
	decls := make(map[string]string)
	for _, decl := range splitDeclarations(block) {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important"))
		if prop == "" || value == "" {
			continue
		}
		decls[prop] = value
		if prop == "background" && strings.Contains(strings.ToLower(value), "url(") {
			decls["background-image"] = value
		}
	}
	return decls
}

// splitDeclarations splits on semicolons outside parentheses so data: URLs
// inside url(...) stay intact.
func splitDeclarations(block string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range block {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				parts = append(parts, block[start:i])
				start = i + 1
			}
		}
	}
	if start < len(block) {
		parts = append(parts, block[start:])
	}
	return parts
}

type node struct {
	sel *goquery.Selection
	doc *Document
}

func (n *node) Tag() string {
	return strings.ToLower(goquery.NodeName(n.sel))
}

func (n *node) Attr(name string) string {
	v, _ := n.sel.Attr(name)
	return v
}

func (n *node) Text() string {
	return strings.TrimSpace(n.sel.Text())
}

func (n *node) Style(property string) string {
	styles := n.doc.styles[n.sel.Get(0)]
	if styles == nil {
		return ""
	}
	return styles[strings.ToLower(property)]
}
