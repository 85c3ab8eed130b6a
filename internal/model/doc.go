// Package model defines the core data structures shared by every stage of a
// linkproof run.
//
// This package contains the following main types:
//   - Reference: a link-bearing attribute found in a document
//   - CheckResult: the verdict on one reference for one rule
//   - CachedCheck: a remembered external URL verdict
//   - Report: the aggregated, deterministic outcome of a run
//
// The models live in their own package because the extractor, resolver,
// checker, rule engine and report writers all exchange them, and keeping them
// here prevents import cycles between those packages.
package model
