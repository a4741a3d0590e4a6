// Package delivery implements real-time message delivery strategies for
// the qchat client: a Server-Sent Events stream with automatic reconnection
// as the default, and adaptive-interval polling as a fallback for
// environments where long-lived connections are not viable.
package delivery
