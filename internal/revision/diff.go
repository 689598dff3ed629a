package revision

import "reflect"

// ChangedSections lists section titles that were added, removed or edited
// between two snapshots, in the order they appear in to (removed ones last).
func ChangedSections(from, to Snapshot) []string {
	before := make(map[string]int, len(from.Sections))
	for i, s := range from.Sections {
		before[s.Title] = i
	}

	changed := make([]string, 0)
	seen := make(map[string]bool, len(to.Sections))
	for _, s := range to.Sections {
		seen[s.Title] = true
		i, ok := before[s.Title]
		if !ok || !reflect.DeepEqual(from.Sections[i].Content, s.Content) {
			changed = append(changed, s.Title)
		}
	}
	for _, s := range from.Sections {
		if !seen[s.Title] {
			changed = append(changed, s.Title)
		}
	}
	return changed
}
