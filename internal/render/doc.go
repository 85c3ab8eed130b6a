// Package render turns a tree of Markdown files into the HTML site that
// the checker validates. Rendering is delegated to goldmark with GitHub
// Flavored Markdown and automatic heading IDs, so "## Install" becomes
// <h2 id="install"> and fragment links into rendered pages resolve.
//
// Relative links to .md files are rewritten to .html while the AST is
// built. Files that are not Markdown are copied unchanged, keeping images
// and stylesheets next to the pages that reference them.
package render
