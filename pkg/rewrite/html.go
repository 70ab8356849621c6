package rewrite

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/chr33s/workerstack/pkg/assets"
)

// RewriteAttrs is the closed, fixed set of attributes eligible for mount
// rewriting. Treat it as closed: never generalize to "any attribute
// starting with /".
var RewriteAttrs = []string{
	"href", "src", "poster", "content", "action", "cite", "formaction",
	"manifest", "ping", "archive", "code", "codebase", "data", "url",
	"srcset", "data-src", "data-href", "data-url", "data-srcset",
	"data-background", "data-image", "data-link", "data-poster",
	"data-video", "data-audio", "component-url", "astro-component-url",
	"sveltekit-url", "renderer-url", "background", "xlink:href",
}

const fetchWrapperScript = `(function(){
  var __base = window.__BASE_PATH__;
  var __scheme = "workerstack://";
  var __origFetch = globalThis.fetch;
  globalThis.fetch = function(input, init) {
    function rewritten(u) {
      var rest = u.slice(__scheme.length);
      return (__base === "/" ? "/" : __base + "/") + rest;
    }
    if (typeof input === "string" && input.indexOf(__scheme) === 0) {
      input = rewritten(input);
    } else if (input instanceof Request && input.url.indexOf(__scheme) === 0) {
      input = new Request(rewritten(input.url), input);
    }
    return __origFetch.call(this, input, init);
  };
})();`

const smoothTransitionsCSS = `@supports (view-transition-name: none) {
  ::view-transition-old(root),
  ::view-transition-new(root) {
    animation-duration: 0.3s;
    animation-timing-function: ease-in-out;
  }
  main { view-transition-name: main-content; }
  nav { view-transition-name: navigation; }
}`

// HTMLOptions configures one response's HTML rewrite pass.
type HTMLOptions struct {
	Mount             string
	AssetPrefixes     *assets.Set
	SmoothTransitions bool
	PreloadMounts     []string
	UserAgent         string
}

// mountScoped reports whether path already begins with mount, per the
// scoping test: always true at the root mount.
func mountScoped(path, mount string) bool {
	if mount == "/" {
		return true
	}
	return strings.HasPrefix(path, mount+"/")
}

// RewriteHTML parses body as an HTML document and applies, in order: the
// attribute rewriter, the head base/script injector, the optional
// smooth-transitions injector, and the optional preload injector — then
// re-serializes the document. Each injector fires at most once.
func RewriteHTML(body string, opts HTMLOptions) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	rewriteAttributes(doc, opts.Mount, opts.AssetPrefixes)
	injectHead(doc, opts.Mount)

	if opts.SmoothTransitions {
		injectSmoothTransitions(doc)
	}

	if len(opts.PreloadMounts) > 0 {
		injectPreload(doc, opts.Mount, opts.PreloadMounts, opts.UserAgent)
	}

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("serialize html: %w", err)
	}
	return out, nil
}

func rewriteAttributes(doc *goquery.Document, mount string, set *assets.Set) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "link" {
			rewriteIconLink(s, mount)
		}

		for _, attr := range RewriteAttrs {
			val, ok := s.Attr(attr)
			if !ok {
				continue
			}

			if attr == "srcset" {
				s.SetAttr(attr, rewriteSrcset(val, mount, set))
				continue
			}

			if strings.HasPrefix(val, "/") && !mountScoped(val, mount) && set.HasPrefix(val) {
				s.SetAttr(attr, mount+val)
			}
		}
	})
}

func rewriteIconLink(s *goquery.Selection, mount string) {
	rel, _ := s.Attr("rel")
	rel = strings.ToLower(rel)
	if !strings.Contains(rel, "icon") && !strings.Contains(rel, "shortcut") {
		return
	}
	href, ok := s.Attr("href")
	if !ok || !strings.HasPrefix(href, "/") || mountScoped(href, mount) {
		return
	}
	s.SetAttr("href", mount+href)
}

func rewriteSrcset(val, mount string, set *assets.Set) string {
	candidates := strings.Split(val, ",")
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		fields := strings.Fields(c)
		if len(fields) == 0 {
			continue
		}
		u := fields[0]
		if strings.HasPrefix(u, "/") && !mountScoped(u, mount) && set.HasPrefix(u) {
			fields[0] = mount + u
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, ", ")
}

func injectHead(doc *goquery.Document, mount string) {
	head := doc.Find("head").First()
	if head.Length() == 0 {
		return
	}

	baseJSON, _ := json.Marshal(mount)
	script := fmt.Sprintf("<script>window.__BASE_PATH__=%s;%s</script>", baseJSON, fetchWrapperScript)

	href := "/"
	if mount != "/" {
		href = mount + "/"
	}
	base := fmt.Sprintf("<base href=%q>", href)

	// Call order matters: PrependHtml(base) first, then
	// PrependHtml(script), so the final head order is script, base, ...
	head.PrependHtml(base)
	head.PrependHtml(script)
}

func injectSmoothTransitions(doc *goquery.Document) {
	head := doc.Find("head").First()
	if head.Length() == 0 {
		return
	}
	head.AppendHtml("<style>" + smoothTransitionsCSS + "</style>")
}

func injectPreload(doc *goquery.Document, mount string, preloadMounts []string, userAgent string) {
	if isChromium(userAgent) {
		urls, _ := json.Marshal(preloadMounts)
		head := doc.Find("head").First()
		if head.Length() == 0 {
			return
		}
		payload := fmt.Sprintf(`{"prefetch":[{"urls":%s}]}`, urls)
		head.AppendHtml(fmt.Sprintf(`<script type="speculationrules">%s</script>`, payload))
		return
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return
	}
	path := "/__mf-preload.js"
	if mount != "/" {
		path = mount + path
	}
	body.AppendHtml(fmt.Sprintf("<script src=%q defer></script>", path))
}

// isChromium reports Chromium iff one of chrome/edg//opr//brave is
// present, firefox is absent, and Safari without Chrome (Apple's real
// Safari) is absent.
func isChromium(ua string) bool {
	l := strings.ToLower(ua)

	signal := strings.Contains(l, "chrome") ||
		strings.Contains(l, "edg/") ||
		strings.Contains(l, "opr/") ||
		strings.Contains(l, "brave")
	if !signal {
		return false
	}
	if strings.Contains(l, "firefox") {
		return false
	}
	if strings.Contains(l, "safari") && !strings.Contains(l, "chrome") {
		return false
	}
	return true
}
