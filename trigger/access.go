package trigger

// Allowed reports whether the whitelist and blacklist let t fire for m.
// The blacklist is consulted first and wins over the whitelist.
func (t *Trigger) Allowed(m *Message) bool {
	scopes := m.scopes()
	if len(t.Blacklist) > 0 && intersects(t.Blacklist, scopes) {
		return false
	}
	if len(t.Whitelist) > 0 && !intersects(t.Whitelist, scopes) {
		return false
	}
	return true
}

// AddToList appends ids missing from the named list ("whitelist" or
// "blacklist") and reports how many were added.
func (t *Trigger) AddToList(blacklist bool, ids ...string) int {
	list := &t.Whitelist
	if blacklist {
		list = &t.Blacklist
	}
	added := 0
	for _, id := range ids {
		if !contains(*list, id) {
			*list = append(*list, id)
			added++
		}
	}
	return added
}

// RemoveFromList drops ids from the named list and reports how many were
// removed.
func (t *Trigger) RemoveFromList(blacklist bool, ids ...string) int {
	list := &t.Whitelist
	if blacklist {
		list = &t.Blacklist
	}
	kept := (*list)[:0]
	removed := 0
	for _, have := range *list {
		if contains(ids, have) {
			removed++
			continue
		}
		kept = append(kept, have)
	}
	*list = kept
	return removed
}

func intersects(list, ids []string) bool {
	for _, id := range ids {
		if id != "" && contains(list, id) {
			return true
		}
	}
	return false
}

func contains(list []string, id string) bool {
	for _, have := range list {
		if have == id {
			return true
		}
	}
	return false
}
