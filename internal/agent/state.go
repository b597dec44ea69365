package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MaxPrintedIDs caps the remembered job ids so the state file cannot grow
// without bound.
const MaxPrintedIDs = 5000

// State remembers which jobs this machine has physically printed. If the
// server redelivers a job after a crash that lost the status report, the
// agent acknowledges it as sent without feeding the printer twice.
type State struct {
	path    string
	ids     []string
	printed map[string]struct{}
}

type stateFile struct {
	PrintedJobIDs []string  `json:"printed_job_ids"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LoadState reads the state file, tolerating a missing one (first run).
func LoadState(path string) (*State, error) {
	s := &State{path: path, printed: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	for _, id := range f.PrintedJobIDs {
		if _, seen := s.printed[id]; seen {
			continue
		}
		s.ids = append(s.ids, id)
		s.printed[id] = struct{}{}
	}
	s.trim()
	return s, nil
}

// Printed reports whether the job was already physically printed here.
func (s *State) Printed(jobID string) bool {
	_, ok := s.printed[jobID]
	return ok
}

// MarkPrinted records a successful print and rewrites the state file.
func (s *State) MarkPrinted(jobID string) error {
	if s.Printed(jobID) {
		return nil
	}
	s.ids = append(s.ids, jobID)
	s.printed[jobID] = struct{}{}
	s.trim()
	return s.save()
}

func (s *State) trim() {
	if len(s.ids) <= MaxPrintedIDs {
		return
	}
	dropped := s.ids[:len(s.ids)-MaxPrintedIDs]
	for _, id := range dropped {
		delete(s.printed, id)
	}
	s.ids = append([]string(nil), s.ids[len(s.ids)-MaxPrintedIDs:]...)
}

func (s *State) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(stateFile{
		PrintedJobIDs: s.ids,
		UpdatedAt:     time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
