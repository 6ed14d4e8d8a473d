package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the field and agent state at the end of a step.
type Snapshot struct {
	Version int   `json:"version"`
	RNGSeed int64 `json:"rng_seed"`

	N        int   `json:"n"`
	Channels int   `json:"channels"`
	Step     int64 `json:"step"`

	// Force source state
	Phase float64 `json:"phase"`
	VentX int     `json:"vent_x"`

	VX       []float64   `json:"vx"`
	VY       []float64   `json:"vy"`
	Pressure []float64   `json:"pressure"`
	Dye      [][]float64 `json:"dye"`
	Boundary []bool      `json:"boundary"`

	Agents []AgentState `json:"agents"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// AgentState holds one tracer agent.
type AgentState struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	W       float64 `json:"w"`
	Channel int     `json:"channel"`
}

// Validate checks that the array shapes match the declared resolution.
func (s *Snapshot) Validate() error {
	n := s.N
	switch {
	case s.Version != SnapshotVersion:
		return fmt.Errorf("snapshot version %d, want %d", s.Version, SnapshotVersion)
	case len(s.VX) != (n+1)*n:
		return fmt.Errorf("snapshot vx has %d samples, want %d", len(s.VX), (n+1)*n)
	case len(s.VY) != n*(n+1):
		return fmt.Errorf("snapshot vy has %d samples, want %d", len(s.VY), n*(n+1))
	case len(s.Pressure) != n*n:
		return fmt.Errorf("snapshot pressure has %d samples, want %d", len(s.Pressure), n*n)
	case len(s.Boundary) != n*n:
		return fmt.Errorf("snapshot boundary has %d cells, want %d", len(s.Boundary), n*n)
	case len(s.Dye) != s.Channels:
		return fmt.Errorf("snapshot has %d dye channels, want %d", len(s.Dye), s.Channels)
	}
	for c, d := range s.Dye {
		if len(d) != n*n {
			return fmt.Errorf("snapshot dye channel %d has %d cells, want %d", c, len(d), n*n)
		}
	}
	return nil
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Step)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Step, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk and checks its shape.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	return &snapshot, nil
}
