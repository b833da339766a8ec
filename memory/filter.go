package memory

import (
	"github.com/samber/lo"
)

// MatchesFilter reports whether a memory satisfies a filter. A nil filter
// matches every memory; each specified field is a separate AND-ed condition.
// String fields compare by exact equality, date bounds are inclusive against
// CreatedAt, and tag semantics follow the store's TagMatchPolicy.
func MatchesFilter(m *Memory, f *MemoryFilter, policy TagMatchPolicy) bool {
	if f == nil {
		return true
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Scope != "" && m.Scope != f.Scope {
		return false
	}
	if f.Platform != "" && m.Source.Platform != f.Platform {
		return false
	}
	if len(f.Tags) > 0 {
		switch policy {
		case TagMatchAny:
			if !lo.Some(m.Tags, f.Tags) {
				return false
			}
		default:
			if !lo.Every(m.Tags, f.Tags) {
				return false
			}
		}
	}
	if f.StartDate != nil && m.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && m.CreatedAt.After(*f.EndDate) {
		return false
	}
	return true
}

func filterMemories(ms []*Memory, f *MemoryFilter, policy TagMatchPolicy) []*Memory {
	if f == nil {
		return ms
	}
	return lo.Filter(ms, func(m *Memory, _ int) bool {
		return MatchesFilter(m, f, policy)
	})
}
