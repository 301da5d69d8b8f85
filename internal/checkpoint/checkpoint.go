// Package checkpoint persists per-source collection cursors.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scan-io-git/ot-collector/pkg/shared/config"
)

// Cursor names.
const (
	LastTimestamp  = "last_timestamp"
	LastFullResync = "last_full_resync_timestamp"
)

// State maps cursor names to unix seconds.
type State map[string]int64

// Get returns the cursor value and whether it is set.
func (s State) Get(name string) (int64, bool) {
	v, ok := s[name]
	return v, ok
}

// Clone returns a copy of s that is safe to modify.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Names returns the cursor names in sorted order.
func (s State) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Store loads and saves the state of a source. Save replaces the previous
// state atomically. Load of an unknown key returns an empty State.
type Store interface {
	Load(ctx context.Context, key string) (State, error)
	Save(ctx context.Context, key string, state State) error
	Delete(ctx context.Context, key string) error
}

// New returns the store configured by cfg.
func New(cfg *config.Checkpoint) (Store, error) {
	switch cfg.Backend {
	case "", config.CheckpointBackendFile:
		return NewFileStore(cfg.Dir), nil
	case config.CheckpointBackendS3:
		return NewS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

// objectName maps a source key to a file or object name.
func objectName(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, key)
	return safe + ".json"
}

func encodeState(state State) ([]byte, error) {
	if state == nil {
		state = State{}
	}
	return json.MarshalIndent(state, "", "  ")
}

// decodeState parses a persisted state. Fractional values are truncated.
func decodeState(data []byte) (State, error) {
	raw := map[string]interface{}{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint: %w", err)
	}

	state := make(State, len(raw))
	for name, value := range raw {
		n, ok := value.(json.Number)
		if !ok {
			return nil, fmt.Errorf("corrupt checkpoint: cursor %q is %T, not a number", name, value)
		}
		if i, err := n.Int64(); err == nil {
			state[name] = i
			continue
		}
		f, err := n.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("corrupt checkpoint: cursor %q has invalid value %q", name, n)
		}
		state[name] = int64(f)
	}
	return state, nil
}
