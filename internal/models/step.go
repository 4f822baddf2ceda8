package models

import "encoding/json"

// Step levels.
const (
	LevelParent     = 0
	LevelSubtask    = 1
	LevelSubSubtask = 2
)

// Step is one entry of a project's flat, depth-first step list.
//
// The slice on Project owns every step. ParentID, RootParentID and Subtasks
// are id references into that slice; Subtasks is a non-owning index of
// direct children kept in document order.
type Step struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Completed    bool     `json:"completed"`
	Level        int      `json:"level"`
	ParentID     string   `json:"parentId,omitempty"`
	RootParentID string   `json:"rootParentId,omitempty"`
	Subtasks     []string `json:"subtasks,omitempty"`
}

// Clone returns a copy of s that shares no slices with it.
func (s Step) Clone() Step {
	out := s
	if s.Subtasks != nil {
		out.Subtasks = append([]string(nil), s.Subtasks...)
	}
	return out
}

type stepJSON struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Completed    bool     `json:"completed"`
	Level        *int     `json:"level,omitempty"`
	ParentID     string   `json:"parentId,omitempty"`
	RootParentID string   `json:"rootParentId,omitempty"`
	Subtasks     []string `json:"subtasks,omitempty"`
	IsSubtask    bool     `json:"isSubtask,omitempty"`
	IsSubSubtask bool     `json:"isSubSubtask,omitempty"`
}

// MarshalJSON also writes the isSubtask/isSubSubtask flags so files stay
// readable by the browser dashboard.
func (s Step) MarshalJSON() ([]byte, error) {
	level := s.Level
	return json.Marshal(stepJSON{
		ID:           s.ID,
		Text:         s.Text,
		Completed:    s.Completed,
		Level:        &level,
		ParentID:     s.ParentID,
		RootParentID: s.RootParentID,
		Subtasks:     s.Subtasks,
		IsSubtask:    s.Level == LevelSubtask,
		IsSubSubtask: s.Level == LevelSubSubtask,
	})
}

// UnmarshalJSON derives the level from the legacy flags when it is missing.
func (s *Step) UnmarshalJSON(data []byte) error {
	var aux stepJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	level := LevelParent
	switch {
	case aux.Level != nil:
		level = *aux.Level
	case aux.IsSubSubtask:
		level = LevelSubSubtask
	case aux.IsSubtask:
		level = LevelSubtask
	}
	*s = Step{
		ID:           aux.ID,
		Text:         aux.Text,
		Completed:    aux.Completed,
		Level:        level,
		ParentID:     aux.ParentID,
		RootParentID: aux.RootParentID,
		Subtasks:     aux.Subtasks,
	}
	return nil
}
