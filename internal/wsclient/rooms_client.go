package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"marketchat/backend/internal/models"
)

// RoomsClient fetches the authoritative room list over HTTP.
type RoomsClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// ListRooms implements roomlist.Fetcher.
func (c *RoomsClient) ListRooms(ctx context.Context) ([]models.Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+"/api/rooms", nil)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: unexpected status %d", resp.StatusCode)
	}
	var rooms []models.Room
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
