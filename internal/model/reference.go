package model

import (
	"fmt"
	"path"
	"strings"
)

// Kind classifies a reference by what its target points at.
type Kind int

const (
	// KindGeneric is a target with a scheme linkproof does not check
	// (javascript:, data:, ftp:, ...).
	KindGeneric Kind = iota

	// KindInternalAnchor is a fragment-only target within the same document.
	KindInternalAnchor

	// KindInternalFile is a relative or root-relative path inside the site.
	KindInternalFile

	// KindExternalURL is an http, https, mailto or tel target.
	KindExternalURL

	// KindEmpty is an attribute that is present but blank.
	KindEmpty
)

// String returns the kebab-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInternalAnchor:
		return "internal-anchor"
	case KindInternalFile:
		return "internal-file"
	case KindExternalURL:
		return "external-url"
	case KindEmpty:
		return "empty"
	default:
		return "generic"
	}
}

// MarshalText implements encoding.TextMarshaler so JSON reports carry names.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ElementType groups link-bearing elements by the role of the linked resource.
type ElementType int

const (
	// TypeLink is a navigational link (a, area, link without a special rel).
	TypeLink ElementType = iota
	// TypeImage is an image resource (img, input type=image, picture source, icons).
	TypeImage
	// TypeScript is a script resource.
	TypeScript
	// TypeStylesheet is a stylesheet resource.
	TypeStylesheet
	// TypeMedia is an audio, video, track or embed resource.
	TypeMedia
	// TypeFrame is an iframe source.
	TypeFrame
	// TypeMeta is an OpenGraph meta content URL.
	TypeMeta
)

// String returns the lowercase name of the element type.
func (t ElementType) String() string {
	switch t {
	case TypeImage:
		return "image"
	case TypeScript:
		return "script"
	case TypeStylesheet:
		return "stylesheet"
	case TypeMedia:
		return "media"
	case TypeFrame:
		return "frame"
	case TypeMeta:
		return "meta"
	default:
		return "link"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ElementType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Position is a 1-based line and column inside a source document.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// String formats the position as "line:column".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Less orders positions by line, then column.
func (p Position) Less(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// Reference is one link-bearing attribute found in a document.
// References are created once by the extractor and never mutated afterwards.
type Reference struct {
	// Document is the slash-separated path of the source document relative
	// to the site root.
	Document string `json:"document"`

	// Position is where the owning element starts in the source.
	Position Position `json:"position"`

	Kind Kind        `json:"kind"`
	Type ElementType `json:"type"`

	// Element and Attribute name the tag and attribute the target came from.
	Element   string `json:"element"`
	Attribute string `json:"attribute"`

	// Raw is the attribute value exactly as written.
	Raw string `json:"raw"`

	// Target is the normalized form used for de-duplication and display.
	// External URLs have a lowercase scheme and host and no fragment.
	// Internal targets are cleaned site-relative paths, with the fragment
	// appended when present.
	Target string `json:"target"`

	// Fragment is the part after '#', without the '#'.
	Fragment string `json:"fragment,omitempty"`

	// Candidate is the index of a srcset candidate within its attribute,
	// and 0 for every other reference.
	Candidate int `json:"-"`

	// Attrs is a snapshot of the owning element's attributes, used by rules
	// such as image-alt and sri.
	Attrs map[string]string `json:"-"`

	// Ignored is set when the element sits under data-proofer-ignore or
	// matches a configured ignore selector.
	Ignored bool `json:"ignored,omitempty"`
}

// Attr returns the snapshot value of the named attribute of the owning element.
func (r Reference) Attr(name string) (string, bool) {
	v, ok := r.Attrs[name]
	return v, ok
}

// Scheme returns the lowercase scheme of the raw target, or "" when the
// target has none.
func (r Reference) Scheme() string {
	return SchemeOf(strings.TrimSpace(r.Raw))
}

// DisplayTarget returns the normalized target, falling back to the raw value.
func (r Reference) DisplayTarget() string {
	if r.Target != "" {
		return r.Target
	}
	return r.Raw
}

// SchemeOf returns the lowercase URL scheme of s, or "" if s has none.
// A scheme is letters followed by letters, digits, '+', '-' or '.', ended by
// ':' before any '/', '?' or '#'.
func SchemeOf(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' || c == '+' || c == '-' || c == '.':
			if i == 0 {
				return ""
			}
		case c == ':':
			if i == 0 {
				return ""
			}
			return strings.ToLower(s[:i])
		default:
			return ""
		}
	}
	return ""
}

// SplitTarget splits a raw internal target into its path, query and
// fragment parts. None of the parts carry their delimiters.
func SplitTarget(raw string) (pathPart, query, fragment string) {
	pathPart = strings.TrimSpace(raw)
	if i := strings.IndexByte(pathPart, '#'); i >= 0 {
		fragment = pathPart[i+1:]
		pathPart = pathPart[:i]
	}
	if i := strings.IndexByte(pathPart, '?'); i >= 0 {
		query = pathPart[i+1:]
		pathPart = pathPart[:i]
	}
	return pathPart, query, fragment
}

// JoinSitePath resolves target against the directory of document, both
// slash-separated and relative to the site root. A target starting with '/'
// is resolved against the root. The result is lexically cleaned and starts
// with "../" when it escapes the root.
func JoinSitePath(document, target string) string {
	if target == "" {
		return path.Clean(document)
	}
	if strings.HasPrefix(target, "/") {
		cleaned := path.Clean(target)
		if cleaned == "/" {
			return "."
		}
		return strings.TrimPrefix(cleaned, "/")
	}
	return path.Join(path.Dir(document), target)
}

// EscapesRoot reports whether a site path produced by JoinSitePath points
// outside the site root.
func EscapesRoot(sitePath string) bool {
	return sitePath == ".." || strings.HasPrefix(sitePath, "../")
}
