package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFromServerPayload(t *testing.T) {
	before := time.Now()
	p := ServerMessage{
		Content: "salut", DateEmis: "2024-05-01T10:00:00.000Z", RoomName: "general",
		Category: CategoryMessage, ServerID: "abc", Pseudo: "Alice",
	}
	m := FromServerPayload(p)

	if m.Content != "salut" || m.DateEmis != p.DateEmis || m.RoomName != "general" || m.ServerID != "abc" {
		t.Errorf("server fields not copied: %+v", m)
	}
	if m.Category != CategoryMessage {
		t.Errorf("category = %q, want MESSAGE", m.Category)
	}
	if m.Author != "Alice" {
		t.Errorf("author = %q, want Alice", m.Author)
	}
	if m.LocalID == "" {
		t.Error("local id not assigned")
	}
	if m.ReceivedAt.Before(before) {
		t.Errorf("receivedAt = %v, want >= %v", m.ReceivedAt, before)
	}
}

func TestFromServerPayloadIgnoresWireLocalFields(t *testing.T) {
	var p ServerMessage
	raw := `{"content":"x","dateEmis":"d","roomName":"r","category":"MESSAGE","serverId":"s","localId":"forged","receivedAt":"1999-01-01T00:00:00Z"}`
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatal(err)
	}
	m := FromServerPayload(p)
	if m.LocalID == "forged" {
		t.Error("local id taken from the wire")
	}
	if m.ReceivedAt.Year() == 1999 {
		t.Error("receivedAt taken from the wire")
	}
}

func TestServerMessageLegacyCategorie(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Category
	}{
		{"category", `{"content":"a","category":"NEW_IMAGE"}`, CategoryImage},
		{"categorie", `{"content":"a","categorie":"INFO"}`, CategoryInfo},
		{"both prefer category", `{"content":"a","category":"NEW_GEO","categorie":"MESSAGE"}`, CategoryGeo},
		{"neither", `{"content":"a"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m ServerMessage
			if err := json.Unmarshal([]byte(tt.raw), &m); err != nil {
				t.Fatal(err)
			}
			if m.Category != tt.want {
				t.Errorf("category = %q, want %q", m.Category, tt.want)
			}
			if m.Content != "a" {
				t.Errorf("content = %q, want a", m.Content)
			}
		})
	}
}

func TestPeerLeftMessage(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := PeerLeftMessage(PeerLeft{ID: "42", Pseudo: "Bob", RoomName: "general"}, now)

	if m.Content != "Bob s'est déconnecté" {
		t.Errorf("content = %q", m.Content)
	}
	if m.Category != CategoryInfo {
		t.Errorf("category = %q, want INFO", m.Category)
	}
	if m.ServerID != InfoServerID {
		t.Errorf("serverId = %q, want server", m.ServerID)
	}
	if !m.ReceivedAt.Equal(now) {
		t.Errorf("receivedAt = %v, want %v", m.ReceivedAt, now)
	}
	if m.DateEmis != "2024-05-01T12:00:00Z" {
		t.Errorf("dateEmis = %q", m.DateEmis)
	}
	if m.RoomName != "general" || m.Author != "Bob" {
		t.Errorf("room/author = %q/%q", m.RoomName, m.Author)
	}
}

func TestLocalIDUnique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := NewLocalID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d ids", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestLocalIDFallback(t *testing.T) {
	orig := newRandomID
	newRandomID = func() (uuid.UUID, error) { return uuid.Nil, errors.New("no entropy") }
	defer func() { newRandomID = orig }()

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := NewLocalID()
		if !strings.Contains(id, "-") {
			t.Fatalf("fallback id %q lacks time component", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate fallback id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestEncodeGeoNullAccuracy(t *testing.T) {
	now := time.UnixMilli(1714560000000)
	content, err := EncodeGeo(Position{Lat: 48.85, Lng: 2.35}, now)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	acc, ok := raw["accuracy"]
	if !ok {
		t.Fatal("accuracy key missing")
	}
	if acc != nil {
		t.Errorf("accuracy = %v, want null", acc)
	}
	if raw["type"] != "geo" {
		t.Errorf("type = %v, want geo", raw["type"])
	}

	p, err := DecodeGeo(content)
	if err != nil {
		t.Fatal(err)
	}
	if p.Lat != 48.85 || p.Lng != 2.35 || p.TS != now.UnixMilli() {
		t.Errorf("decoded = %+v", p)
	}
}

func TestEncodeGeoWithAccuracy(t *testing.T) {
	acc := 12.5
	content, err := EncodeGeo(Position{Lat: 1, Lng: 2, Accuracy: &acc}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	p, err := DecodeGeo(content)
	if err != nil {
		t.Fatal(err)
	}
	if p.Accuracy == nil || *p.Accuracy != 12.5 {
		t.Errorf("accuracy = %v, want 12.5", p.Accuracy)
	}
}
