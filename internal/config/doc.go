// Package config holds the options of a linkproof run: their defaults,
// the .linkproof.yaml file format and validation.
//
// Values are resolved in three layers. NewConfig provides the defaults, a
// configuration file overrides the keys it sets, and command line flags the
// user changed override both.
package config
