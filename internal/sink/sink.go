// Package sink delivers normalized records to their destination.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/ot-collector/pkg/shared/config"
)

// Event is one serialized record plus its routing metadata.
type Event struct {
	Data       []byte
	Sourcetype string
	Source     string
	Index      string
	// Time is the event time; nil lets the destination assign one.
	Time *time.Time
}

// Sink receives events. Emit may buffer; Flush returns once every event
// emitted before it is durable at the destination. Implementations are safe
// for concurrent use.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
	Flush(ctx context.Context) error
	Close() error
}

// envelope is the line format shared by every sink.
type envelope struct {
	Time       *float64        `json:"time,omitempty"`
	Source     string          `json:"source,omitempty"`
	Sourcetype string          `json:"sourcetype,omitempty"`
	Index      string          `json:"index,omitempty"`
	Event      json.RawMessage `json:"event"`
}

func marshalEnvelope(ev Event) ([]byte, error) {
	if !json.Valid(ev.Data) {
		return nil, fmt.Errorf("event data is not valid JSON")
	}
	env := envelope{
		Source:     ev.Source,
		Sourcetype: ev.Sourcetype,
		Index:      ev.Index,
		Event:      json.RawMessage(ev.Data),
	}
	if ev.Time != nil {
		// millisecond precision, as accepted by HEC
		secs := math.Round(float64(ev.Time.UnixNano())/1e6) / 1e3
		env.Time = &secs
	}
	return json.Marshal(env)
}

// New builds the sink configured by cfg. The HEC sink reuses the retry
// settings of the http_client block.
func New(cfg *config.Config, logger hclog.Logger) (Sink, error) {
	switch cfg.Sink.Type {
	case "", config.SinkStdout:
		return NewWriterSink(os.Stdout), nil
	case config.SinkFile:
		return NewFileSink(cfg.Sink.File.Path)
	case config.SinkHEC:
		return NewHECSink(&cfg.Sink.HEC, &cfg.HTTPClient, logger.Named("hec"))
	case config.SinkNATS:
		return NewNATSSink(&cfg.Sink.NATS, logger.Named("nats"))
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Sink.Type)
	}
}
