package crawler

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// cleanURL resolves a reference against the base URL and canonicalizes it by
// stripping the query and fragment.
func cleanURL(ref, base *url.URL) *url.URL {
	u := base.ResolveReference(ref)
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u
}

// ExtractLinks returns the canonicalized targets of all <a href> elements in
// the document, deduplicated, resolved relative to base.
func ExtractLinks(doc string, base *url.URL) []*url.URL {
	var links []*url.URL
	seen := make(map[string]struct{})

	tokenizer := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return links
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := tokenizer.TagName()
		if len(name) != 1 || name[0] != 'a' || !hasAttr {
			continue
		}
		for {
			key, val, more := tokenizer.TagAttr()
			if string(key) == "href" {
				ref, err := url.Parse(string(val))
				if err != nil {
					break
				}
				u := cleanURL(ref, base)
				if _, dup := seen[u.String()]; !dup {
					seen[u.String()] = struct{}{}
					links = append(links, u)
				}
				break
			}
			if !more {
				break
			}
		}
	}
}
