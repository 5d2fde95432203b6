// Package storage provides durable key/value backends for harvested credentials.
//
// A Storage only knows string keys and string values; the token layer decides
// what goes under which key. Available backends trade durability for setup cost:
//   - Memory: process-local map, the default when nothing else is configured
//   - File: one file per key with atomic writes and 0600 permissions
//   - Env: read-only environment variables, for seeding credentials in CI
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Redis: shared storage for several hosts behind one credential scope
//
// Backends are externally owned and may be shared; callers only ever touch the
// keys they write.
package storage
