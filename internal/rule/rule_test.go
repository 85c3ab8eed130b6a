package rule

import (
	"slices"
	"testing"
	"testing/fstest"

	"github.com/nao1215/linkproof/internal/extract"
	"github.com/nao1215/linkproof/internal/htmldoc"
	"github.com/nao1215/linkproof/internal/model"
)

const validOnion = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion"

type finding struct {
	rule   string
	raw    string
	reason string
}

// findings extracts the references of src and applies every reference rule
// with an ok existence verdict.
func findings(t *testing.T, e *Engine, src string) []finding {
	t.Helper()
	doc := htmldoc.ParseBytes("index.html", []byte(src))

	var out []finding
	for ref := range extract.Extract(doc, extract.Options{}) {
		existence := model.NewCheckResult(ref, model.RuleExistence, model.OK(""))
		for _, r := range e.Apply(ref, existence) {
			out = append(out, finding{r.Rule, r.Reference.Raw, r.Reason})
		}
	}
	return out
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// TestReferenceRules tests each reference rule against small documents.
func TestReferenceRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		src    string
		want   []finding
	}{
		{
			name: "empty href",
			src:  `<a href="">x</a><a href="  ">y</a>`,
			want: []finding{{"empty-href", "", "empty href"}, {"empty-href", "  ", "empty href"}},
		},
		{
			name:   "empty href allowed",
			modify: func(c *Config) { c.AllowMissingHref = true },
			src:    `<a href="">x</a>`,
		},
		{
			name: "empty src is reported even when empty href is allowed",
			modify: func(c *Config) {
				c.AllowMissingHref = true
			},
			src:  `<script src=""></script>`,
			want: []finding{{"empty-href", "", "empty src"}},
		},
		{
			name: "hash href",
			src:  `<a href="#">top</a><a href="#main">main</a>`,
			want: []finding{{"hash-href", "#", "hash href"}},
		},
		{
			name:   "hash href allowed",
			modify: func(c *Config) { c.AllowHashHref = true },
			src:    `<a href="#">top</a>`,
		},
		{
			name: "missing alt",
			src:  `<img src="a.png"><img src="b.png" alt="b"><img src="c.png" alt="">`,
			want: []finding{{"image-alt", "a.png", "missing alt text"}},
		},
		{
			name:   "empty alt reported when not ignored",
			modify: func(c *Config) { c.IgnoreEmptyAlt = false },
			src:    `<img src="c.png" alt=" ">`,
			want:   []finding{{"image-alt", "c.png", "empty alt text"}},
		},
		{
			name: "alt reported once per image",
			src:  `<img src="a.png" srcset="a1.png 1x, a2.png 2x"><img srcset="b1.png 1x, b2.png 2x">`,
			want: []finding{
				{"image-alt", "a.png", "missing alt text"},
				{"image-alt", "b1.png", "missing alt text"},
			},
		},
		{
			name: "srcset-only image without alt is one finding",
			src:  `<img srcset="a.png 1x, b.png 2x">`,
			want: []finding{{"image-alt", "a.png", "missing alt text"}},
		},
		{
			name: "aria-hidden images need no alt",
			src:  `<img src="deco.png" aria-hidden="true">`,
		},
		{
			name:   "alt check disabled",
			modify: func(c *Config) { c.CheckImagesHaveAlt = false },
			src:    `<img src="a.png">`,
		},
		{
			name: "disallowed protocol",
			src:  `<a href="ftp://files.example.com/x">ftp</a><a href="javascript:void(0)">js</a>`,
			want: []finding{{"scheme", "ftp://files.example.com/x", "disallowed protocol"}},
		},
		{
			name:   "custom allowed protocols",
			modify: func(c *Config) { c.AllowedSchemes = []string{"https", "FTP"} },
			src:    `<a href="ftp://files.example.com/x">ftp</a><a href="http://example.com/">http</a>`,
			want:   []finding{{"scheme", "http://example.com/", "disallowed protocol"}},
		},
		{
			name: "blank mailto and tel",
			src:  `<a href="mailto:">m</a><a href="mailto:?subject=hi">m2</a><a href="mailto:a@example.com">ok</a><a href="tel:">t</a>`,
			want: []finding{
				{"blank-mailto", "mailto:", "blank mailto"},
				{"blank-mailto", "mailto:?subject=hi", "blank mailto"},
				{"blank-tel", "tel:", "blank tel"},
			},
		},
		{
			name:   "enforce https",
			modify: func(c *Config) { c.EnforceHTTPS = true },
			src:    `<a href="http://example.com/">a</a><a href="https://example.com/">b</a><a href="http://localhost:8080/">c</a>`,
			want:   []finding{{"enforce-https", "http://example.com/", "insecure http link"}},
		},
		{
			name:   "subresource integrity",
			modify: func(c *Config) { c.CheckSRI = true },
			src: `<script src="https://cdn.example.com/a.js"></script>
<script src="https://cdn.example.com/b.js" integrity="sha384-x"></script>
<script src="https://cdn.example.com/c.js" integrity="sha384-x" crossorigin="anonymous"></script>
<link rel="stylesheet" href="//cdn.example.com/d.css">
<script src="local.js"></script>`,
			want: []finding{
				{"sri", "https://cdn.example.com/a.js", "missing integrity"},
				{"sri", "https://cdn.example.com/b.js", "missing crossorigin"},
				{"sri", "//cdn.example.com/d.css", "missing integrity"},
			},
		},
		{
			name: "onion addresses",
			src: `<a href="http://` + validOnion + `/">ok</a>
<a href="http://expyuzz4wqqyqhjn.onion/">v2</a>
<a href="http://broken.onion/">bad</a>`,
			want: []finding{
				{"onion-address", "http://expyuzz4wqqyqhjn.onion/", "deprecated v2 onion address"},
				{"onion-address", "http://broken.onion/", "invalid onion address"},
			},
		},
		{
			name: "ignored elements are not evaluated",
			src:  `<div data-proofer-ignore><a href="">x</a><img src="a.png"></div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			if tt.modify != nil {
				tt.modify(&cfg)
			}
			got := findings(t, newEngine(t, cfg), tt.src)
			if !slices.Equal(got, tt.want) {
				t.Errorf("got  %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

// TestApplyDocument tests the duplicate-id and favicon rules.
func TestApplyDocument(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CheckFavicon = true
	e := newEngine(t, cfg)

	doc := htmldoc.ParseBytes("page.html", []byte("<html><head></head><body>\n<h1 id=\"a\">A</h1>\n<h2 id=\"a\">B</h2></body></html>"))
	dups := []htmldoc.Anchor{{ID: "a", Element: "h2", Position: model.Position{Line: 3, Column: 1}}}

	results := e.ApplyDocument(doc, dups)
	if len(results) != 2 {
		t.Fatalf("got %d results, expected 2: %+v", len(results), results)
	}
	if results[0].Rule != string(DuplicateID) || results[0].Reason != "duplicate id" || results[0].Reference.Position.Line != 3 {
		t.Errorf("unexpected duplicate result: %+v", results[0])
	}
	if results[0].Reference.Target != "page.html#a" || results[0].Reference.Element != "h2" {
		t.Errorf("got target %q on element %q", results[0].Reference.Target, results[0].Reference.Element)
	}
	if results[1].Rule != string(Favicon) || results[1].Reason != "missing favicon" {
		t.Errorf("unexpected favicon result: %+v", results[1])
	}

	withIcon := htmldoc.ParseBytes("b.html", []byte(`<html><head><link rel="shortcut icon" href="/f.ico"></head></html>`))
	if got := e.ApplyDocument(withIcon, nil); len(got) != 0 {
		t.Errorf("expected no findings, got %+v", got)
	}

	upperRel := htmldoc.ParseBytes("c.html", []byte(`<html><head><link rel="ICON" href="/f.png"></head></html>`))
	if got := e.ApplyDocument(upperRel, nil); len(got) != 0 {
		t.Errorf("expected rel to match case-insensitively, got %+v", got)
	}

	redirect := htmldoc.ParseBytes("old.html", []byte(`<html><head><meta http-equiv="Refresh" content="0; url=new.html"></head></html>`))
	if got := e.ApplyDocument(redirect, nil); len(got) != 0 {
		t.Errorf("expected redirect pages to skip the favicon rule, got %+v", got)
	}

	off := newEngine(t, Config{})
	if got := off.ApplyDocument(doc, dups); len(got) != 0 {
		t.Errorf("expected disabled document rules, got %+v", got)
	}
}

// TestIgnoredURL tests ignore pattern matching on raw and normalized targets.
func TestIgnoredURL(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.IgnoreURLs = []string{"/^https://twitter\\.com/", "https://example.com/private/*", "assets/skip.png"}
	e := newEngine(t, cfg)

	doc := htmldoc.ParseBytes("index.html", []byte(`<a href="https://twitter.com/x">t</a>
<a href="HTTPS://EXAMPLE.com/private/a/b">p</a>
<img src="assets/skip.png" alt="">
<a href="https://example.com/public">ok</a>`))

	var ignored []string
	for ref := range extract.Extract(doc, extract.Options{}) {
		if e.IgnoredURL(ref) {
			ignored = append(ignored, ref.Raw)
		}
	}
	want := []string{"https://twitter.com/x", "HTTPS://EXAMPLE.com/private/a/b", "assets/skip.png"}
	if !slices.Equal(ignored, want) {
		t.Errorf("got %v, want %v", ignored, want)
	}

	if _, err := New(Config{IgnoreURLs: []string{"/[/"}}, nil); err == nil {
		t.Error("expected an error for an invalid regular expression")
	}
}

// TestActive tests the list of enabled rules.
func TestActive(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CheckImageMetadata = true
	cfg.CheckFavicon = true
	e, err := New(cfg, fstest.MapFS{})
	if err != nil {
		t.Fatal(err)
	}

	active := e.Active()
	for _, id := range []ID{EmptyHref, ImageAlt, Scheme, OnionAddress, ImageMetadata, DuplicateID, Favicon} {
		if !slices.Contains(active, id) {
			t.Errorf("expected %s to be active in %v", id, active)
		}
	}
	for _, id := range []ID{EnforceHTTPS, SRI} {
		if slices.Contains(active, id) {
			t.Errorf("expected %s to be inactive", id)
		}
	}
}
