package rewrite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chr33s/workerstack/pkg/assets"
)

func TestRewriteCSSURLRule(t *testing.T) {
	set := assets.New(nil)
	body := `body { background: url(/assets/bg.png); }`
	got := RewriteCSS(body, "/app", set)
	require.Equal(t, `body { background: url(/app/assets/bg.png); }`, got)
}

func TestRewriteCSSURLRuleQuoted(t *testing.T) {
	set := assets.New(nil)
	body := `body { background: url("/assets/bg.png"); }`
	got := RewriteCSS(body, "/app", set)
	require.Equal(t, `body { background: url("/app/assets/bg.png"); }`, got)
}

func TestRewriteCSSImportRule(t *testing.T) {
	set := assets.New(nil)
	body := `@import "/static/theme.css";`
	got := RewriteCSS(body, "/app", set)
	require.Equal(t, `@import "/app/static/theme.css";`, got)
}

func TestRewriteCSSRootMountNoop(t *testing.T) {
	set := assets.New(nil)
	body := `body { background: url(/assets/bg.png); }`
	got := RewriteCSS(body, "/", set)
	require.Equal(t, body, got)
}

func TestRewriteCSSUnknownPrefixUnchanged(t *testing.T) {
	set := assets.New(nil)
	body := `body { background: url(/unknown/bg.png); }`
	got := RewriteCSS(body, "/app", set)
	require.Equal(t, body, got)
}

func TestRewriteCSSCustomPrefix(t *testing.T) {
	set := assets.New([]string{"/cdn/"})
	body := `.hero { background: url(/cdn/hero.jpg); }`
	got := RewriteCSS(body, "/app", set)
	require.Equal(t, `.hero { background: url(/app/cdn/hero.jpg); }`, got)
}
