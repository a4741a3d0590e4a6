package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Register creates a new user account with its public encryption key.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	var result RegisterResponse
	if err := c.do(ctx, "POST", "/api/register", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Login authenticates a user and returns a session token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var result LoginResponse
	req := &LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, "POST", "/api/login", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUserKey retrieves a user's public encryption key.
func (c *Client) GetUserKey(ctx context.Context, username string) (*UserKey, error) {
	path := fmt.Sprintf("/api/users/%s/key", url.PathEscape(username))
	var result UserKey
	if err := c.do(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateRoom creates a new room with the caller as its first member.
func (c *Client) CreateRoom(ctx context.Context, name string) (*Room, error) {
	var result Room
	if err := c.do(ctx, "POST", "/api/rooms", &CreateRoomRequest{Name: name}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRooms returns the rooms the caller is a member of.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var result RoomsResponse
	if err := c.do(ctx, "GET", "/api/rooms", nil, &result); err != nil {
		return nil, err
	}
	return result.Rooms, nil
}

// JoinRoom adds the caller to a room.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (*Room, error) {
	path := fmt.Sprintf("/api/rooms/%s/join", url.PathEscape(roomID))
	var result Room
	if err := c.do(ctx, "POST", path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LeaveRoom removes the caller from a room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	path := fmt.Sprintf("/api/rooms/%s/leave", url.PathEscape(roomID))
	return c.do(ctx, "POST", path, nil, nil)
}

// RoomMembers returns the members of a room with their public keys.
func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]Member, error) {
	path := fmt.Sprintf("/api/rooms/%s/members", url.PathEscape(roomID))
	var result MembersResponse
	if err := c.do(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Members, nil
}

// PostMessage stores a message's per-recipient envelopes and fans them out.
func (c *Client) PostMessage(ctx context.Context, roomID string, req *PostMessageRequest) (*PostMessageResponse, error) {
	path := fmt.Sprintf("/api/rooms/%s/messages", url.PathEscape(roomID))
	var result PostMessageResponse
	if err := c.do(ctx, "POST", path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListMessages returns the caller's envelopes for a room, oldest first.
// sinceID, when non-empty, restricts the result to messages after that ID.
func (c *Client) ListMessages(ctx context.Context, roomID, sinceID string) ([]RawMessage, error) {
	path := fmt.Sprintf("/api/rooms/%s/messages", url.PathEscape(roomID))
	if sinceID != "" {
		path += "?since=" + url.QueryEscape(sinceID)
	}
	var result MessagesResponse
	if err := c.do(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// OpenEventStream opens an SSE connection for real-time message events
// addressed to the authenticated user.
func (c *Client) OpenEventStream(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/events", nil)
	if err != nil {
		return nil, err
	}

	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseErrorResponse(resp)
	}
	return resp, nil
}
