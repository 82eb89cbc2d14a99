package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/vaani-ai/vaani/pkg/core/audio"
	"github.com/vaani-ai/vaani/pkg/core/types"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := New(context.Background(), Config{
		Addr:       mr.Addr(),
		SessionTTL: time.Hour,
		AudioTTL:   time.Minute,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return mr, s
}

func sampleRecord(id string) types.SessionRecord {
	return types.SessionRecord{
		ID:        id,
		StartedAt: time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
		EndedAt:   time.Date(2026, 4, 2, 9, 35, 0, 0, time.UTC),
		Profile:   types.LanguageProfile{Primary: types.LanguageTamil, Voice: "nova"},
		Turns: []types.Turn{
			{ID: "t1", Speaker: types.SpeakerUser, Text: "naan office ku late aaiduven", Language: "ta-en"},
			{ID: "t2", Speaker: types.SpeakerSystem, Text: "Aiyo! Auto la poga try pannunga.", Language: "ta-en"},
		},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	want := sampleRecord("sess-1")
	if err := s.SaveSession(ctx, want); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := s.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("ID = %q, want %q", got.ID, want.ID)
	}
	if got.Profile.Primary != types.LanguageTamil {
		t.Errorf("Profile.Primary = %v, want tamil", got.Profile.Primary)
	}
	if len(got.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(got.Turns))
	}
	if got.Turns[0].Text != want.Turns[0].Text || got.Turns[0].Language != "ta-en" {
		t.Errorf("first turn = %+v", got.Turns[0])
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, want.StartedAt)
	}
}

func TestLoadSessionNotFound(t *testing.T) {
	_, s := newTestStore(t)
	if _, err := s.LoadSession(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveSessionRequiresID(t *testing.T) {
	_, s := newTestStore(t)
	if err := s.SaveSession(context.Background(), types.SessionRecord{}); err == nil {
		t.Error("record without id accepted")
	}
}

func TestRecentSessionIDs(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveSession(ctx, sampleRecord(id)); err != nil {
			t.Fatalf("SaveSession(%s): %v", id, err)
		}
	}

	ids, err := s.RecentSessionIDs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSessionIDs: %v", err)
	}
	want := []string{"c", "b", "a"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v (newest first)", ids, want)
			break
		}
	}

	ids, err = s.RecentSessionIDs(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSessionIDs(2): %v", err)
	}
	if len(ids) != 2 || ids[0] != "c" {
		t.Errorf("RecentSessionIDs(2) = %v, want [c b]", ids)
	}
}

func TestArchiveUtteranceRoundTrip(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	pcm := make([]byte, 3200)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	ref, err := s.ArchiveUtterance(ctx, "sess-1", 3, pcm)
	if err != nil {
		t.Fatalf("ArchiveUtterance: %v", err)
	}
	if ref == "" {
		t.Fatal("empty reference")
	}

	wav, err := s.LoadUtterance(ctx, ref)
	if err != nil {
		t.Fatalf("LoadUtterance: %v", err)
	}
	cfg, decoded, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 {
		t.Errorf("archived format = %+v, want 16kHz mono", cfg)
	}
	if len(decoded) != len(pcm) {
		t.Fatalf("decoded = %d bytes, want %d", len(decoded), len(pcm))
	}
	for i := range pcm {
		if decoded[i] != pcm[i] {
			t.Fatalf("decoded audio differs at byte %d", i)
		}
	}
}

func TestArchiveUtteranceRejectsEmpty(t *testing.T) {
	_, s := newTestStore(t)
	if _, err := s.ArchiveUtterance(context.Background(), "sess-1", 0, nil); err == nil {
		t.Error("empty utterance accepted")
	}
}

func TestUtteranceExpiry(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	ref, err := s.ArchiveUtterance(ctx, "sess-1", 1, make([]byte, 640))
	if err != nil {
		t.Fatalf("ArchiveUtterance: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)

	if _, err := s.LoadUtterance(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after expiry = %v, want ErrNotFound", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, sampleRecord("sess-1")); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	mr.FastForward(time.Hour + time.Second)

	if _, err := s.LoadSession(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after expiry = %v, want ErrNotFound", err)
	}
}
