// Package main provides the entry point for the linkproof CLI.
//
// linkproof checks a directory of rendered HTML for broken internal links,
// missing anchors, dead external URLs and markup rule violations.
//
// Usage:
//
//	linkproof check [dir]
//	linkproof render [src] [out] --check
//
// See --help for all available options.
package main

func main() {
	Execute()
}
