// Package tor lets linkproof check links to onion services.
//
// It offers three things:
//   - onion address validation (v3 checksum, v2 detection) for the
//     onion-address rule
//   - a SOCKS5 Client whose Transport routes .onion probes through Tor
//   - EmbeddedTor, a tornago-managed daemon for machines without Tor
//
// Clearnet URLs never pass through this package.
package tor
