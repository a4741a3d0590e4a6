// Package api implements the HTTP client for the qchat server API.
//
// It handles request plumbing only: JSON encoding, bearer session tokens,
// retry with exponential backoff, and typed error responses. All
// cryptographic work happens in internal/crypto before payloads reach this
// package; the server never sees anything but public keys and envelope
// text.
package api
