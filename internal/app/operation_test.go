package app

import (
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		startedAt time.Time
		wantID    string
	}{
		{
			name:      "utc start",
			operation: "Sync",
			startedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			wantID:    "Sync-20240115T103000Z",
		},
		{
			name:      "start in another zone",
			operation: "RecordReview",
			startedAt: time.Date(2024, 1, 15, 5, 30, 0, 0, time.FixedZone("EST", -5*60*60)),
			wantID:    "RecordReview-20240115T103000Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.startedAt)

			if op.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", op.ID, tt.wantID)
			}
			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.Dirty() {
				t.Error("new operation should not be dirty")
			}
		})
	}
}

func TestOperation_Dirty(t *testing.T) {
	op := NewOperation("Sync", time.Now())

	op.MarkDirty()
	if !op.Dirty() {
		t.Error("Dirty() = false after MarkDirty")
	}
	if !op.takeDirty() {
		t.Error("takeDirty() = false after MarkDirty")
	}
	if op.Dirty() {
		t.Error("Dirty() = true after takeDirty")
	}
	if op.takeDirty() {
		t.Error("takeDirty() = true on a clean operation")
	}
}
