package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
)

func hookWith(slow time.Duration, all bool) (*queryLoggingHook, *bytes.Buffer) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &queryLoggingHook{log: log, slow: slow, all: all}, &buf
}

func TestQueryLoggingHook(t *testing.T) {
	const query = "SELECT subject FROM statements WHERE tenant = 'acme'"

	tests := []struct {
		name    string
		slow    time.Duration
		all     bool
		elapsed time.Duration
		err     error
		want    string
	}{
		{name: "error", err: errors.New("relation does not exist"), want: "level=ERROR"},
		{name: "no rows is not an error", err: sql.ErrNoRows, want: ""},
		{name: "slow", slow: time.Millisecond, elapsed: time.Second, want: "slow query"},
		{name: "slow check disabled", elapsed: time.Second, want: ""},
		{name: "debug logs everything", all: true, want: "level=DEBUG"},
		{name: "quiet by default", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, buf := hookWith(tt.slow, tt.all)
			h.AfterQuery(context.Background(), &bun.QueryEvent{
				Query:     query,
				StartTime: time.Now().Add(-tt.elapsed),
				Err:       tt.err,
			})
			if tt.want == "" {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
