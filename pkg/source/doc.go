// Package source implements the pack source abstraction: a local directory
// of packs, a generic HTTP tarball endpoint, and the GitHub API. The remote
// shapes share a composable TTL cache with checksum verification rather
// than inheriting each other's transport.
package source
