package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"chatpro/internal/models"
	"chatpro/internal/resolver"
	"chatpro/internal/transport"
)

// Registry owns the authenticated user's chatroom list. Every Load is a
// full re-fetch plus re-enrichment; there is no cache beyond the
// in-memory list for the current session.
type Registry struct {
	client   *transport.Client
	resolver *resolver.Resolver
	log      *slog.Logger

	mu    sync.RWMutex
	rooms []models.EnrichedChatroom
}

func New(client *transport.Client, res *resolver.Resolver) *Registry {
	return &Registry{
		client:   client,
		resolver: res,
		log:      slog.Default().With("component", "registry"),
	}
}

// Load fetches the raw chatroom list and enriches every entry
// concurrently. The result preserves the remote's list order.
func (g *Registry) Load(ctx context.Context, userID int64) ([]models.EnrichedChatroom, error) {
	raw, err := g.client.Call(ctx, http.MethodGet,
		fmt.Sprintf("/users/%d/chatrooms", userID), nil,
		&transport.Identity{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chatrooms: %w", err)
	}

	var rooms []models.Chatroom
	if err := json.Unmarshal(raw, &rooms); err != nil {
		return nil, fmt.Errorf("failed to decode chatrooms: %w", err)
	}

	enriched := g.resolver.EnrichAll(ctx, userID, rooms)

	g.mu.Lock()
	g.rooms = enriched
	g.mu.Unlock()

	return slices.Clone(enriched), nil
}

// Rooms returns a snapshot of the last loaded list.
func (g *Registry) Rooms() []models.EnrichedChatroom {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.rooms)
}

// Create creates a chatroom. DM rooms ignore the name and require exactly
// one participant; group rooms require a non-empty name. Constraint
// violations fail locally before any network call.
func (g *Registry) Create(ctx context.Context, userID int64, name string, typ models.ChatroomType, participantIDs []int64) (models.Chatroom, error) {
	switch typ {
	case models.ChatroomTypeDM:
		if len(participantIDs) != 1 {
			return models.Chatroom{}, &models.ValidationError{Reason: "a DM requires exactly one participant"}
		}
		// The remote does not use the name for DM identity.
		name = ""
	case models.ChatroomTypeGroup:
		if strings.TrimSpace(name) == "" {
			return models.Chatroom{}, &models.ValidationError{Reason: "a group requires a name"}
		}
	default:
		return models.Chatroom{}, &models.ValidationError{Reason: fmt.Sprintf("unknown chatroom type %q", typ)}
	}

	body := struct {
		Name           string              `json:"name"`
		Type           models.ChatroomType `json:"type"`
		ParticipantIDs []int64             `json:"participantIds"`
	}{Name: name, Type: typ, ParticipantIDs: participantIDs}

	raw, err := g.client.Call(ctx, http.MethodPost, "/chatrooms", body,
		&transport.Identity{UserID: userID})
	if err != nil {
		return models.Chatroom{}, fmt.Errorf("failed to create chatroom: %w", err)
	}

	var room models.Chatroom
	if err := json.Unmarshal(raw, &room); err != nil {
		return models.Chatroom{}, fmt.Errorf("failed to decode created chatroom: %w", err)
	}

	g.log.Info("created chatroom", "chatroomId", room.ID, "type", room.Type)

	return room, nil
}

// Join joins a chatroom. Joining a room the user already belongs to is
// not a hard error here; whatever the remote reports is surfaced as-is.
func (g *Registry) Join(ctx context.Context, userID, chatroomID int64) error {
	_, err := g.client.Call(ctx, http.MethodPost,
		fmt.Sprintf("/chatrooms/%d/join", chatroomID), nil,
		&transport.Identity{UserID: userID})
	if err != nil {
		return fmt.Errorf("failed to join chatroom %d: %w", chatroomID, err)
	}
	return nil
}

// Delete removes a chatroom. The local list changes only after remote
// confirmation; a failed delete leaves local state untouched.
func (g *Registry) Delete(ctx context.Context, userID, chatroomID int64) error {
	_, err := g.client.Call(ctx, http.MethodDelete,
		fmt.Sprintf("/delete/chatroom/%d", chatroomID), nil,
		&transport.Identity{UserID: userID})
	if err != nil {
		return fmt.Errorf("failed to delete chatroom %d: %w", chatroomID, err)
	}

	g.mu.Lock()
	g.rooms = slices.DeleteFunc(g.rooms, func(r models.EnrichedChatroom) bool {
		return r.ID == chatroomID
	})
	g.mu.Unlock()

	return nil
}

// SearchRooms searches chatrooms by name. Empty queries short-circuit to
// an empty result without a network call.
func (g *Registry) SearchRooms(ctx context.Context, userID int64, query string) ([]models.Chatroom, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	raw, err := g.client.Call(ctx, http.MethodGet,
		"/chatrooms/search?query="+url.QueryEscape(query), nil,
		&transport.Identity{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to search chatrooms: %w", err)
	}

	var rooms []models.Chatroom
	if err := json.Unmarshal(raw, &rooms); err != nil {
		return nil, fmt.Errorf("failed to decode chatroom search results: %w", err)
	}

	return rooms, nil
}
