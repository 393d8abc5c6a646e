package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chatpro/internal/models"
	"chatpro/internal/resolver"
	"chatpro/internal/transport"
)

func newTestRegistry(t *testing.T, handler http.Handler) *Registry {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := transport.New(srv.URL, time.Second)
	return New(client, resolver.New(client, 4))
}

func TestLoad_EnrichesAndPreservesOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/1/chatrooms", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":5,"type":"GROUP","name":"Team"},
			{"id":3,"type":"DM","name":""},
			{"id":9,"type":"GROUP","name":"Ops"}
		]`))
	})
	mux.HandleFunc("GET /chatrooms/3/participants", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"username":"alice"},{"id":2,"username":"bob"}]`))
	})
	mux.HandleFunc("GET /chatrooms/{id}/participants/count", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`4`))
	})
	g := newTestRegistry(t, mux)

	rooms, err := g.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(rooms) != 3 {
		t.Fatalf("expected 3 rooms, got %d", len(rooms))
	}
	if rooms[0].ID != 5 || rooms[1].ID != 3 || rooms[2].ID != 9 {
		t.Errorf("remote order not preserved: %+v", rooms)
	}
	if rooms[1].DisplayName != "bob" || rooms[1].ParticipantCount != 2 {
		t.Errorf("DM not enriched: %+v", rooms[1])
	}
	if rooms[0].DisplayName != "Team" || rooms[0].ParticipantCount != 4 {
		t.Errorf("group not enriched: %+v", rooms[0])
	}

	// The snapshot matches the load result.
	held := g.Rooms()
	if len(held) != 3 || held[1].DisplayName != "bob" {
		t.Errorf("held list does not match load result: %+v", held)
	}
}

func TestCreate_ValidationFailsBeforeNetwork(t *testing.T) {
	var calls atomic.Int64
	g := newTestRegistry(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	tests := []struct {
		name           string
		roomName       string
		typ            models.ChatroomType
		participantIDs []int64
	}{
		{"DM with no participants", "", models.ChatroomTypeDM, nil},
		{"DM with two participants", "", models.ChatroomTypeDM, []int64{2, 3}},
		{"group without name", "", models.ChatroomTypeGroup, []int64{2}},
		{"group with blank name", "   ", models.ChatroomTypeGroup, []int64{2}},
		{"unknown type", "x", "BROADCAST", []int64{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Create(context.Background(), 1, tt.roomName, tt.typ, tt.participantIDs)
			var vErr *models.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	if calls.Load() != 0 {
		t.Errorf("validation failures must not reach the network, got %d calls", calls.Load())
	}
}

func TestCreate_DMIgnoresName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chatrooms", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name           string              `json:"name"`
			Type           models.ChatroomType `json:"type"`
			ParticipantIDs []int64             `json:"participantIds"`
		}
		if err := decodeJSON(r, &body); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if body.Name != "" {
			t.Errorf("DM creation must not send a name, got %q", body.Name)
		}
		if len(body.ParticipantIDs) != 1 || body.ParticipantIDs[0] != 2 {
			t.Errorf("unexpected participant ids: %v", body.ParticipantIDs)
		}
		_, _ = w.Write([]byte(`{"id":7,"type":"DM","name":""}`))
	})
	g := newTestRegistry(t, mux)

	room, err := g.Create(context.Background(), 1, "ignored", models.ChatroomTypeDM, []int64{2})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if room.ID != 7 || room.Type != models.ChatroomTypeDM {
		t.Errorf("unexpected created room: %+v", room)
	}
}

func TestJoin_SurfacesRemoteRejection(t *testing.T) {
	g := newTestRegistry(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"already a member"}`))
	}))

	err := g.Join(context.Background(), 1, 5)
	var reqErr *models.RequestFailed
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestFailed, got %v", err)
	}
	if reqErr.Message != "already a member" {
		t.Errorf("remote message not surfaced: %q", reqErr.Message)
	}
}

func TestDelete_RemovesOnlyAfterConfirmation(t *testing.T) {
	var fail atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/1/chatrooms", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":5,"type":"GROUP","name":"Team"}]`))
	})
	mux.HandleFunc("GET /chatrooms/5/participants/count", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`2`))
	})
	mux.HandleFunc("DELETE /delete/chatroom/5", func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, `{"message":"nope"}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	g := newTestRegistry(t, mux)

	if _, err := g.Load(context.Background(), 1); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	fail.Store(true)
	if err := g.Delete(context.Background(), 1, 5); err == nil {
		t.Fatal("expected delete to fail")
	}
	if len(g.Rooms()) != 1 {
		t.Error("failed delete must leave the local list unchanged")
	}

	fail.Store(false)
	if err := g.Delete(context.Background(), 1, 5); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(g.Rooms()) != 0 {
		t.Error("confirmed delete must remove the room locally")
	}
}

func TestSearchRooms_EmptyQueryShortCircuits(t *testing.T) {
	var calls atomic.Int64
	g := newTestRegistry(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))

	rooms, err := g.SearchRooms(context.Background(), 1, "  ")
	if err != nil {
		t.Fatalf("SearchRooms failed: %v", err)
	}
	if len(rooms) != 0 || calls.Load() != 0 {
		t.Error("empty query must short-circuit without a network call")
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}
