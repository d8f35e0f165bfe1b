package observability

import (
	"context"
	"testing"

	"ragorchestrator/internal/config"
	"ragorchestrator/internal/domain"
)

func TestNewEventArchiverNilWhenNoDSNConfigured(t *testing.T) {
	a, err := NewEventArchiver(context.Background(), config.ClickHouseConfig{Table: "stream_events"})
	if err != nil {
		t.Fatalf("expected no error with DSN unset, got %v", err)
	}
	if a != nil {
		t.Fatalf("expected a nil archiver with no DSN configured, got %+v", a)
	}
}

func TestEventArchiverArchiveAndCloseAreNoOpsOnNilReceiver(t *testing.T) {
	var a *EventArchiver
	a.Archive(domain.StatusUpdateEvent{Status: "hi"}, "conv-1")
	if err := a.Close(); err != nil {
		t.Fatalf("Close on nil archiver: %v", err)
	}
}

func TestSanitizeTableNameRejectsInvalidIdentifiers(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"stream_events", false},
		{"", true},
		{"stream events", true},
		{"stream_events; DROP TABLE x", true},
	}
	for _, c := range cases {
		_, err := sanitizeTableName(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("sanitizeTableName(%q): error = %v, wantErr = %v", c.in, err, c.wantErr)
		}
	}
}
