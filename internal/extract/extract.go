package extract

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/nao1215/onioncrawl/internal/model"
)

// DefaultBodyLimit bounds the extracted visible-text length in bytes.
const DefaultBodyLimit = 64 * 1024

// emailRegex is permissive rather than strict RFC 5322; correlation
// artifacts favor recall, and rejected candidates are counted anyway.
var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Engine is the extraction engine. One instance is shared by all crawl
// workers in a process.
type Engine struct {
	bodyLimit int
}

// Option configures an Engine.
type Option func(*Engine)

// WithBodyLimit overrides the extracted-body length bound.
func WithBodyLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.bodyLimit = limit
		}
	}
}

// NewEngine creates an extraction engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{bodyLimit: DefaultBodyLimit}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the output of one extraction pass.
type Result struct {
	// Title is the page title from the first <title> element.
	Title string

	// Body is the visible text, whitespace normalized and bounded.
	Body string

	// Artifacts holds the structured artifact classes.
	Artifacts model.Artifacts
}

// Extract parses HTML content fetched from base and returns the page's
// artifacts. base must be an absolute URL; relative links are resolved
// against it. Parse errors on the content itself are returned, but
// malformed individual candidates only increment the rejected count.
func (e *Engine) Extract(base string, content io.Reader) (*Result, error) {
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}

	doc, err := html.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content: %w", err)
	}

	result := &Result{
		Artifacts: model.Artifacts{Metadata: make(map[string]string)},
	}

	var text strings.Builder
	seenLinks := make(map[string]bool)
	seenImages := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			e.processElement(n, baseURL, result, seenLinks, seenImages)
			// Script and style text is not page content.
			if n.Data == "script" || n.Data == "style" {
				return
			}
		case html.TextNode:
			text.WriteString(n.Data)
			text.WriteString(" ")
		case html.CommentNode:
			// Comments carry addresses and keys often enough to scan.
			text.WriteString(n.Data)
			text.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	full := text.String()
	result.Body = e.normalizeBody(full)
	result.Artifacts.Emails = extractEmails(full)
	result.Artifacts.CryptoAddresses = extractCryptoAddresses(full)

	fingerprints, rejectedKeys := extractKeyFingerprints(full)
	result.Artifacts.KeyFingerprints = fingerprints
	result.Artifacts.Rejected += rejectedKeys

	return result, nil
}

// processElement handles one HTML element node.
func (e *Engine) processElement(n *html.Node, base *url.URL, result *Result, seenLinks, seenImages map[string]bool) {
	switch n.Data {
	case "title":
		if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			result.Title = strings.TrimSpace(n.FirstChild.Data)
		}

	case "a":
		href := getAttr(n, "href")
		if href == "" {
			return
		}
		resolved, ok := resolveURL(base, href)
		if !ok {
			if !isNonNavigational(href) {
				result.Artifacts.Rejected++
			}
			return
		}
		if seenLinks[resolved] {
			return
		}
		seenLinks[resolved] = true
		result.Artifacts.Links = append(result.Artifacts.Links, classifyLink(base, resolved))

	case "img":
		src := getAttr(n, "src")
		if src == "" {
			return
		}
		resolved, ok := resolveURL(base, src)
		if !ok {
			result.Artifacts.Rejected++
			return
		}
		if !seenImages[resolved] {
			seenImages[resolved] = true
			result.Artifacts.Images = append(result.Artifacts.Images, resolved)
		}

	case "meta":
		name := getAttr(n, "name")
		if name == "" {
			name = getAttr(n, "property") // OpenGraph uses property
		}
		content := getAttr(n, "content")
		if name != "" && content != "" {
			result.Artifacts.Metadata[name] = content
		}
	}
}

// isNonNavigational reports whether an href is a scheme we deliberately
// skip rather than a malformed candidate.
func isNonNavigational(href string) bool {
	href = strings.TrimSpace(href)
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") ||
		href == "#" || href == ""
}

// resolveURL resolves href against base and reports whether the result
// is a usable absolute http(s) URL.
func resolveURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if isNonNavigational(href) {
		return "", false
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if resolved.Host == "" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

// classifyLink tags a resolved link with its onion and scope flags.
func classifyLink(base *url.URL, link string) model.Link {
	u, err := url.Parse(link)
	if err != nil {
		return model.Link{URL: link}
	}
	host := strings.ToLower(u.Hostname())
	return model.Link{
		URL:     link,
		Onion:   strings.HasSuffix(host, ".onion"),
		InScope: strings.EqualFold(host, base.Hostname()),
	}
}

// normalizeBody collapses whitespace runs and bounds the result.
func (e *Engine) normalizeBody(text string) string {
	body := strings.Join(strings.Fields(text), " ")
	if len(body) > e.bodyLimit {
		// Cut at a space when one exists; otherwise back up to a rune
		// boundary so the bound never splits a multibyte character.
		cut := strings.LastIndexByte(body[:e.bodyLimit], ' ')
		if cut <= 0 {
			cut = e.bodyLimit
			for cut > 0 && !utf8.RuneStart(body[cut]) {
				cut--
			}
		}
		body = body[:cut]
	}
	return body
}

// extractEmails returns unique lowercased addresses in first-seen order.
func extractEmails(text string) []string {
	matches := emailRegex.FindAllString(text, -1)
	seen := make(map[string]bool)
	var unique []string
	for _, email := range matches {
		lower := strings.ToLower(email)
		if !seen[lower] {
			seen[lower] = true
			unique = append(unique, lower)
		}
	}
	return unique
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
