package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"

	"ragorchestrator/internal/config"
	"ragorchestrator/internal/domain"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func sanitizeTableName(name string) (string, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return "", errors.New("table name is empty")
	}
	if !identPattern.MatchString(s) {
		return "", fmt.Errorf("table name contains invalid characters: %s", s)
	}
	return s, nil
}

// EventArchiver appends every domain.StreamEvent emitted during a turn to a
// ClickHouse table for offline replay (§4.12 DOMAIN STACK), mirroring the
// teacher's internal/agentd/traces_clickhouse.go connection-handling. The
// insert path is entirely decoupled from the live SSE write: Archive only
// enqueues onto a buffered channel a background goroutine drains, so a
// slow or unreachable ClickHouse never delays a turn. A nil *EventArchiver
// is valid; every method is then a no-op.
type EventArchiver struct {
	conn  clickhouse.Conn
	table string
	rows  chan eventRow
	done  chan struct{}
}

type eventRow struct {
	conversationID string
	eventType      string
	payload        string
	emittedAt      time.Time
}

// NewEventArchiver builds an EventArchiver from CLICKHOUSE_DSN. Returns a nil
// *EventArchiver, no error, when no DSN is configured.
func NewEventArchiver(ctx context.Context, cfg config.ClickHouseConfig) (*EventArchiver, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, nil
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if cfg.Database != "" {
		opts.Auth.Database = cfg.Database
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("invalid events table: %w", err)
	}

	a := &EventArchiver{conn: conn, table: table, rows: make(chan eventRow, 256), done: make(chan struct{})}
	go a.run()
	return a, nil
}

// Archive enqueues one StreamEvent for archival. Drops the event on
// backpressure rather than blocking the turn that produced it.
func (a *EventArchiver) Archive(ev domain.StreamEvent, conversationID string) {
	if a == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	row := eventRow{conversationID: conversationID, eventType: ev.EventName(), payload: string(payload), emittedAt: time.Now().UTC()}
	select {
	case a.rows <- row:
	default:
		log.Warn().Str("conversationId", conversationID).Msg("event archive buffer full, dropping event")
	}
}

func (a *EventArchiver) run() {
	defer close(a.done)
	query := fmt.Sprintf("INSERT INTO %s (conversation_id, event_type, payload, emitted_at) VALUES (?, ?, ?, ?)", a.table)
	for row := range a.rows {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.conn.Exec(ctx, query, row.conversationID, row.eventType, row.payload, row.emittedAt)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("table", a.table).Msg("event archive insert failed")
		}
	}
}

// Close drains any buffered rows and closes the connection. Safe on a nil
// *EventArchiver.
func (a *EventArchiver) Close() error {
	if a == nil {
		return nil
	}
	close(a.rows)
	<-a.done
	return a.conn.Close()
}
