// Package correlator emits demo log records that tie together activity seen
// at the edge for a single browser session.
package correlator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ContextEdge marks records produced by the edge router itself.
const ContextEdge = "edge"

// LogIDLength is the number of lowercase hex characters in a log ID.
const LogIDLength = 8

// Correlator writes records of the form
//
//	{"logID": "...", "session": "..."|null, "context": "edge", "source": "...", "msg": "..."}
//
// to a log channel. It never affects routing.
type Correlator struct {
	sink    *slog.Logger
	context string
	source  string
	newID   func() string
}

// New returns a Correlator that writes to sink and stamps every record with
// source. A nil sink disables emission.
func New(sink *slog.Logger, source string) *Correlator {
	return &Correlator{
		sink:    sink,
		context: ContextEdge,
		source:  source,
		newID:   NewLogID,
	}
}

// Emit writes one record at info level.
func (c *Correlator) Emit(session *string, msg string) {
	if c == nil || c.sink == nil {
		return
	}

	c.sink.LogAttrs(context.Background(), slog.LevelInfo, msg,
		slog.String("logID", c.newID()),
		slog.Any("session", session),
		slog.String("context", c.context),
		slog.String("source", c.source),
	)
}

// Source returns the host identifier stamped on every record.
func (c *Correlator) Source() string {
	return c.source
}

// NewLogID returns LogIDLength characters drawn uniformly from [0-9a-f].
// IDs are random, not unique.
func NewLogID() string {
	// The first 32 bits of a version 4 UUID are random; the version and
	// variant bits come later.
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:LogIDLength]
}
