package domain

import (
	"errors"
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	for _, s := range []IdempotencyStatus{IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed} {
		if !s.Valid() {
			t.Fatalf("status %q must be valid", s)
		}
	}
	if IdempotencyStatus("broken").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}

func TestNewIdempotencyRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec, err := NewIdempotencyRecord("  key-1 ", " hash ", time.Time{}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Key != "key-1" || rec.RequestHash != "hash" {
		t.Fatalf("key and hash must be trimmed: %+v", rec)
	}
	if rec.Status != IdempotencyStatusProcessing || rec.Completed() {
		t.Fatalf("new record must be processing: %+v", rec)
	}
	if !rec.TTLAt.Equal(now.Add(DefaultIdempotencyTTL)) {
		t.Fatalf("unexpected default ttl: %s", rec.TTLAt)
	}

	if _, err := NewIdempotencyRecord(" ", "hash", now, now); !errors.Is(err, ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := NewIdempotencyRecord("key", "", now, now); !errors.Is(err, ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
}

func TestIdempotencyRecord_ExpiredAndReuse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := IdempotencyRecord{Key: "k", RequestHash: "h", Status: IdempotencyStatusDone, TTLAt: now}

	if !rec.Expired(now) {
		t.Fatal("record whose ttl equals now is expired")
	}
	if rec.Expired(now.Add(-time.Second)) {
		t.Fatal("record must be alive before ttl")
	}
	if !rec.Completed() {
		t.Fatal("done record is completed")
	}
	if err := rec.ReuseError("h"); !errors.Is(err, ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if err := rec.ReuseError("other"); !errors.Is(err, ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}
}
