package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"chatpro/internal/models"
	"chatpro/internal/transport"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent bounds how many participant fetches run at once
// during a full list enrichment.
const DefaultMaxConcurrent = 8

// Resolver derives display-ready fields for chatrooms: the counterpart's
// username for DM rooms and the participant count for group rooms.
type Resolver struct {
	client *transport.Client
	sem    *semaphore.Weighted
	log    *slog.Logger
}

func New(client *transport.Client, maxConcurrent int64) *Resolver {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Resolver{
		client: client,
		sem:    semaphore.NewWeighted(maxConcurrent),
		log:    slog.Default().With("component", "resolver"),
	}
}

// ResolveForRoom enriches one chatroom. A fetch failure degrades the room
// (zero count, Degraded flag) instead of failing; enrichment is never a
// hard error.
func (r *Resolver) ResolveForRoom(ctx context.Context, requesterID int64, room models.Chatroom) models.EnrichedChatroom {
	enriched := models.EnrichedChatroom{
		Chatroom:    room,
		DisplayName: room.Name,
	}

	if room.Type == models.ChatroomTypeDM {
		if enriched.DisplayName == "" {
			enriched.DisplayName = "DM"
		}

		participants, err := r.fetchParticipants(ctx, requesterID, room.ID)
		if err != nil {
			r.log.Warn("participant fetch failed for DM", "chatroomId", room.ID, "error", err)
			enriched.Degraded = true
			return enriched
		}

		enriched.ParticipantCount = len(participants)
		if len(participants) != 2 {
			// Data-integrity anomaly: a DM should have exactly two
			// members. Degrade the display, do not fail.
			r.log.Warn("DM has unexpected participant count",
				"chatroomId", room.ID, "count", len(participants))
		}

		for _, p := range participants {
			if p.ID != requesterID {
				enriched.DisplayName = p.Username
				break
			}
		}

		return enriched
	}

	// Group rooms never need individual identities here, only the count.
	count, err := r.fetchParticipantCount(ctx, requesterID, room.ID)
	if err != nil {
		r.log.Warn("participant count fetch failed", "chatroomId", room.ID, "error", err)
		enriched.Degraded = true
		return enriched
	}

	enriched.ParticipantCount = count

	return enriched
}

// EnrichAll runs ResolveForRoom over every room concurrently and returns
// the enriched rooms in the input order. One room's failure never aborts
// its siblings.
func (r *Resolver) EnrichAll(ctx context.Context, requesterID int64, rooms []models.Chatroom) []models.EnrichedChatroom {
	enriched := make([]models.EnrichedChatroom, len(rooms))

	var wg sync.WaitGroup
	for i, room := range rooms {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			// Context canceled mid fan-out: degrade the remainder.
			enriched[i] = models.EnrichedChatroom{Chatroom: room, DisplayName: room.Name, Degraded: true}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.sem.Release(1)
			enriched[i] = r.ResolveForRoom(ctx, requesterID, room)
		}()
	}
	wg.Wait()

	return enriched
}

func (r *Resolver) fetchParticipants(ctx context.Context, requesterID, chatroomID int64) ([]models.UserIdentity, error) {
	raw, err := r.client.Call(ctx, http.MethodGet,
		fmt.Sprintf("/chatrooms/%d/participants", chatroomID), nil,
		&transport.Identity{UserID: requesterID})
	if err != nil {
		return nil, err
	}

	var participants []models.UserIdentity
	if err := json.Unmarshal(raw, &participants); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}

	return participants, nil
}

func (r *Resolver) fetchParticipantCount(ctx context.Context, requesterID, chatroomID int64) (int, error) {
	raw, err := r.client.Call(ctx, http.MethodGet,
		fmt.Sprintf("/chatrooms/%d/participants/count", chatroomID), nil,
		&transport.Identity{UserID: requesterID})
	if err != nil {
		return 0, err
	}

	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, fmt.Errorf("failed to decode participant count: %w", err)
	}

	return count, nil
}
