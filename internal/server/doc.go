// Package server implements the qchat service: account registration with
// published public keys, bearer-token sessions, room membership, envelope
// storage and real-time fan-out.
//
// The server is deliberately blind. It validates the wire shape of
// envelopes on ingest and stores their base64 fields verbatim; it holds no
// key material that could open them, and plaintext never appears on this
// side of the API.
package server
