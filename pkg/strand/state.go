package strand

import (
	"encoding/json"
	"fmt"
)

// State is a run's working memory: one value per declared field, plus
// any scratch keys nodes write. Values must survive a JSON round trip;
// that is what makes checkpointing and branch cloning possible.
type State map[string]any

// loopLimitKey is set in state when a node's loop limit forces its
// cyclic edge to be skipped.
const loopLimitKey = "_loop_limit_reached"

// Clone deep-copies the state via a JSON round trip.
func (s State) Clone() (State, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone state: marshal: %w", err)
	}
	var clone State
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("clone state: unmarshal: %w", err)
	}
	if clone == nil {
		clone = State{}
	}
	return clone, nil
}

// GetString returns the value at key as a string, or "" when absent or
// not a string.
func (s State) GetString(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// GetList returns the value at key as a list, or nil, false when absent
// or not a list.
func (s State) GetList(key string) ([]any, bool) {
	v, ok := s[key].([]any)
	return v, ok
}

// Append adds a value to the list at key, creating the list if needed.
func (s State) Append(key string, value any) {
	list, _ := s[key].([]any)
	s[key] = append(list, value)
}

// mergeBranches combines branch states back into base after a parallel
// fan-out. Fields named in appendKeys accumulate: every element a branch
// added beyond the fork-point list is appended, in branch declaration
// order. Everything else is last-write-wins, also in branch order, and
// only for keys a branch actually changed.
func mergeBranches(base State, branches []State, appendKeys []string) State {
	appendSet := make(map[string]bool, len(appendKeys))
	for _, k := range appendKeys {
		appendSet[k] = true
	}

	merged := make(State, len(base))
	for k, v := range base {
		merged[k] = v
	}

	for _, branch := range branches {
		for k, v := range branch {
			if appendSet[k] {
				baseList, _ := base[k].([]any)
				branchList, _ := v.([]any)
				if len(branchList) > len(baseList) {
					cur, _ := merged[k].([]any)
					merged[k] = append(cur, branchList[len(baseList):]...)
				}
				continue
			}
			if !sameValue(base[k], v) {
				merged[k] = v
			}
		}
	}

	return merged
}

// sameValue compares two state values through their JSON forms.
// State values are JSON-representable, so this is exact for them.
func sameValue(a, b any) bool {
	aData, errA := json.Marshal(a)
	bData, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aData) == string(bData)
}
