package domain

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ProgressRecord tracks which levels a player has completed and unlocked.
type ProgressRecord struct {
	Completed map[LevelID]struct{}
	Unlocked  map[LevelID]struct{}
}

// progressJSON is the persisted shape of a ProgressRecord.
type progressJSON struct {
	CompletedLevels []LevelID `json:"completedLevels"`
	UnlockedLevels  []LevelID `json:"unlockedLevels"`
}

// NewProgressRecord returns the initial record: nothing completed, level 0 unlocked.
func NewProgressRecord() ProgressRecord {
	return ProgressRecord{
		Completed: make(map[LevelID]struct{}),
		Unlocked:  map[LevelID]struct{}{0: {}},
	}
}

// IsCompleted reports whether id is in the completed set.
func (p ProgressRecord) IsCompleted(id LevelID) bool {
	_, ok := p.Completed[id]
	return ok
}

// IsUnlocked reports whether id is in the unlocked set.
func (p ProgressRecord) IsUnlocked(id LevelID) bool {
	_, ok := p.Unlocked[id]
	return ok
}

// CompletedLevels returns the completed ids in ascending order.
func (p ProgressRecord) CompletedLevels() []LevelID {
	return sortedIDs(p.Completed)
}

// UnlockedLevels returns the unlocked ids in ascending order.
func (p ProgressRecord) UnlockedLevels() []LevelID {
	return sortedIDs(p.Unlocked)
}

// Clone returns a deep copy.
func (p ProgressRecord) Clone() ProgressRecord {
	out := ProgressRecord{
		Completed: make(map[LevelID]struct{}, len(p.Completed)),
		Unlocked:  make(map[LevelID]struct{}, len(p.Unlocked)),
	}
	for id := range p.Completed {
		out.Completed[id] = struct{}{}
	}
	for id := range p.Unlocked {
		out.Unlocked[id] = struct{}{}
	}
	return out
}

// Normalize restores the unlock invariants: level 0 is always unlocked and
// every completed level below maxID unlocks its successor. Ids outside
// [0, maxID] are dropped.
func (p *ProgressRecord) Normalize(maxID LevelID) {
	if p.Completed == nil {
		p.Completed = make(map[LevelID]struct{})
	}
	if p.Unlocked == nil {
		p.Unlocked = make(map[LevelID]struct{})
	}
	for id := range p.Completed {
		if id < 0 || id > maxID {
			delete(p.Completed, id)
		}
	}
	for id := range p.Unlocked {
		if id < 0 || id > maxID {
			delete(p.Unlocked, id)
		}
	}
	p.Unlocked[0] = struct{}{}
	for id := range p.Completed {
		if id < maxID {
			p.Unlocked[id+1] = struct{}{}
		}
	}
}

// MarshalJSON encodes the record as sorted arrays.
func (p ProgressRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(progressJSON{
		CompletedLevels: nonNil(p.CompletedLevels()),
		UnlockedLevels:  nonNil(p.UnlockedLevels()),
	})
}

// UnmarshalJSON decodes the persisted array form.
func (p *ProgressRecord) UnmarshalJSON(data []byte) error {
	var raw progressJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode progress record: %w", err)
	}
	p.Completed = make(map[LevelID]struct{}, len(raw.CompletedLevels))
	p.Unlocked = make(map[LevelID]struct{}, len(raw.UnlockedLevels))
	for _, id := range raw.CompletedLevels {
		p.Completed[id] = struct{}{}
	}
	for _, id := range raw.UnlockedLevels {
		p.Unlocked[id] = struct{}{}
	}
	return nil
}

func sortedIDs(set map[LevelID]struct{}) []LevelID {
	ids := make([]LevelID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func nonNil(ids []LevelID) []LevelID {
	if ids == nil {
		return []LevelID{}
	}
	return ids
}
