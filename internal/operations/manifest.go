package operations

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Manifest and stage states.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunManifest records what one invocation read, ran and produced.
type RunManifest struct {
	mu sync.RWMutex

	RunID       string    `json:"run_id"`
	Version     string    `json:"version"`
	StartTime   time.Time `json:"start_time"`
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`

	Stages  []StageExecution     `json:"stages"`
	Inputs  map[string]*FileInfo `json:"inputs"`
	Outputs map[string]*FileInfo `json:"outputs"`
}

// FileInfo describes one input or output file.
type FileInfo struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Stage    string    `json:"stage,omitempty"`
	Rows     int       `json:"rows,omitempty"`
}

// StageExecution tracks one stage.
type StageExecution struct {
	Stage     string    `json:"stage"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// NewRunManifest creates an empty manifest in the running state.
func NewRunManifest(runID, version string) *RunManifest {
	now := time.Now().UTC()
	return &RunManifest{
		RunID:       runID,
		Version:     version,
		StartTime:   now,
		Status:      StatusRunning,
		LastUpdated: now,
		Inputs:      make(map[string]*FileInfo),
		Outputs:     make(map[string]*FileInfo),
	}
}

// RecordStageStart appends a running stage. A stage run twice gets two
// entries.
func (m *RunManifest) RecordStageStart(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Stages = append(m.Stages, StageExecution{
		Stage:     stage,
		StartTime: time.Now().UTC(),
		Status:    StatusRunning,
	})
	m.LastUpdated = time.Now().UTC()
}

// RecordStageEnd closes the latest entry for stage. A non-nil err marks
// both the stage and the manifest failed.
func (m *RunManifest) RecordStageEnd(stage string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for i := len(m.Stages) - 1; i >= 0; i-- {
		s := &m.Stages[i]
		if s.Stage != stage || s.Status != StatusRunning {
			continue
		}
		s.EndTime = now
		s.Duration = now.Sub(s.StartTime).String()
		s.Status = StatusCompleted
		if err != nil {
			s.Status = StatusFailed
			s.Error = err.Error()
		}
		break
	}

	if err != nil {
		m.Status = StatusFailed
		m.Error = fmt.Sprintf("stage %s failed: %v", stage, err)
	}
	m.LastUpdated = now
}

// Complete marks the manifest completed unless a stage failed.
func (m *RunManifest) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Status == StatusRunning {
		m.Status = StatusCompleted
	}
	m.LastUpdated = time.Now().UTC()
}

// RecordInput records a source file read under name.
func (m *RunManifest) RecordInput(name, path string) error {
	info, err := statFile(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inputs[name] = info
	return nil
}

// RecordOutput records a file written by stage.
func (m *RunManifest) RecordOutput(name, path, stage string, rows int) error {
	info, err := statFile(path)
	if err != nil {
		return err
	}
	info.Stage = stage
	info.Rows = rows
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outputs[name] = info
	m.LastUpdated = time.Now().UTC()
	return nil
}

// StageStatus returns the status of the latest entry for stage.
func (m *RunManifest) StageStatus(stage string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.Stages) - 1; i >= 0; i-- {
		if m.Stages[i].Stage == stage {
			return m.Stages[i].Status, true
		}
	}
	return "", false
}

// Encode writes the manifest as indented JSON.
func (m *RunManifest) Encode(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest written by Encode.
func LoadManifest(path string) (*RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if m.Inputs == nil {
		m.Inputs = make(map[string]*FileInfo)
	}
	if m.Outputs == nil {
		m.Outputs = make(map[string]*FileInfo)
	}
	return &m, nil
}

func statFile(path string) (*FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return &FileInfo{Path: path, Size: st.Size(), Modified: st.ModTime().UTC()}, nil
}
