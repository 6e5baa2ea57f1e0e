package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// maxQueryLengthSamples bounds the rolling query-latency window.
const maxQueryLengthSamples = 100

// StrategyState is the durable per-key statistics record. JSON field names
// match the existing on-disk format so old results files keep working.
// All timestamps are epoch milliseconds.
type StrategyState struct {
	Start       int64 `json:"start,omitempty"`
	LastUpdate  int64 `json:"lastUpdate,omitempty"`
	LastAttempt int64 `json:"lastAttempt,omitempty"`
	LastFailed  int64 `json:"lastFailed,omitempty"`

	TotalAttempts      int `json:"totalAttempts"`
	SuccessfulAttempts int `json:"successfulAttempts"`
	FailedAttempts     int `json:"failedAttempts"`
	FailedQueries      int `json:"failedQueries"`

	// QueryLength holds recent query latencies in seconds, oldest first.
	QueryLength []float64 `json:"queryLength"`
	// ExecuteLength is a two-point running average of execution latency.
	ExecuteLength float64 `json:"executeLength,omitempty"`
	// Profit holds per-run chosen profits since the last periodic report.
	Profit []float64 `json:"profit"`

	HasNotified bool `json:"hasNotified,omitempty"`
}

// PushQueryLength appends a latency sample, evicting the oldest once the
// window holds maxQueryLengthSamples entries.
func (s *StrategyState) PushQueryLength(seconds float64) {
	s.QueryLength = append(s.QueryLength, seconds)
	if len(s.QueryLength) > maxQueryLengthSamples {
		s.QueryLength = s.QueryLength[1:]
	}
}

// PushProfit records the chosen profit for the current run. Recorded even
// when the run is gated below the minimum-profit threshold.
func (s *StrategyState) PushProfit(profit float64) {
	s.Profit = append(s.Profit, profit)
}

// ResetProfit empties the rolling profit window after a periodic report.
func (s *StrategyState) ResetProfit() {
	s.Profit = []float64{}
}

// RecordExecuteLength folds a new execution latency into the running average.
// This is a simple two-point average on each update, not a true EMA.
func (s *StrategyState) RecordExecuteLength(seconds float64) {
	if s.ExecuteLength == 0 {
		s.ExecuteLength = seconds
		return
	}
	s.ExecuteLength = (s.ExecuteLength + seconds) / 2
}

// Store persists StrategyState records keyed by invocation key in one JSON
// file. Writes are synchronous full overwrites; concurrent invocations
// against the same key are the external scheduler's problem, not ours.
type Store struct {
	path string
	full map[string]*StrategyState
}

// NewStore returns a store backed by `results<key>.txt` under dir.
func NewStore(dir, key string) *Store {
	return &Store{
		path: filepath.Join(dir, "results"+key+".txt"),
		full: map[string]*StrategyState{},
	}
}

// Path returns the backing file location.
func (st *Store) Path() string {
	return st.path
}

// Load reads the record for key, creating a zeroed file on first run. A
// corrupt file is a fatal parse error, not silently recreated.
func (st *Store) Load(key string) (*StrategyState, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read state file %s: %w", st.path, err)
		}
		initial := newState()
		st.full = map[string]*StrategyState{key: initial}
		b, err := json.Marshal(st.full)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(st.path, b, 0o644); err != nil {
			return nil, fmt.Errorf("create state file %s: %w", st.path, err)
		}
		return initial, nil
	}

	if err := json.Unmarshal(data, &st.full); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", st.path, err)
	}
	if st.full == nil {
		st.full = map[string]*StrategyState{}
	}
	s, ok := st.full[key]
	if !ok || s == nil {
		s = newState()
		st.full[key] = s
	}
	if s.QueryLength == nil {
		s.QueryLength = []float64{}
	}
	if s.Profit == nil {
		s.Profit = []float64{}
	}
	return s, nil
}

// Save merges the record back into the on-disk mapping, preserving any other
// keys, and overwrites the file pretty-printed.
func (st *Store) Save(key string, s *StrategyState) error {
	st.full[key] = s
	b, err := json.MarshalIndent(st.full, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(st.path, b, 0o644); err != nil {
		return fmt.Errorf("write state file %s: %w", st.path, err)
	}
	return nil
}

func newState() *StrategyState {
	return &StrategyState{
		QueryLength: []float64{},
		Profit:      []float64{},
	}
}
