package linkverify

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Link represents an extracted link from HTML content.
type Link struct {
	URL        string // The URL or path
	Tag        string // HTML tag (a, img, script, link, etc.)
	Attribute  string // Attribute containing the link (href, src)
	IsInternal bool   // True if link points into the site
}

// linkAttrs maps elements to the attribute holding their link.
var linkAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"area":   "href",
	"img":    "src",
	"script": "src",
	"iframe": "src",
	"video":  "src",
	"audio":  "src",
	"source": "src",
	"embed":  "src",
}

// ExtractLinks extracts all links from an HTML file.
func ExtractLinks(htmlPath string, baseURL string) ([]*Link, error) {
	file, err := os.Open(filepath.Clean(htmlPath))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to open HTML file").WithContext("html_path", htmlPath).Build()
	}
	defer func() {
		_ = file.Close()
	}()

	return ExtractLinksFromReader(file, baseURL)
}

// ExtractLinksFromReader extracts all links from an HTML reader.
func ExtractLinksFromReader(r io.Reader, baseURL string) ([]*Link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "failed to parse HTML").Build()
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "invalid base URL").WithContext("base_url", baseURL).Build()
	}

	var links []*Link
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr, ok := linkAttrs[n.Data]; ok {
				if v := strings.TrimSpace(getAttr(n, attr)); v != "" {
					links = append(links, &Link{
						URL:        v,
						Tag:        n.Data,
						Attribute:  attr,
						IsInternal: isInternalLink(v, base),
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}

	extract(doc)
	return links, nil
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

// isInternalLink determines if a URL points into the site: root-relative,
// relative, or absolute under the base URL's host.
func isInternalLink(linkURL string, baseURL *url.URL) bool {
	if skipScheme(linkURL) || strings.HasPrefix(linkURL, "#") {
		return false
	}

	u, err := url.Parse(linkURL)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return true
	}
	return baseURL != nil && baseURL.Host != "" && strings.EqualFold(u.Host, baseURL.Host)
}

func skipScheme(linkURL string) bool {
	lower := strings.ToLower(linkURL)
	for _, p := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
