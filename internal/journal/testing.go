package journal

// Entries is a test helper returning every entry held by an in-memory
// journal, oldest first.
func Entries(j Journal) []Entry {
	mem, ok := j.(*inMemoryJournal)
	if !ok {
		return nil
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	return append([]Entry(nil), mem.entries...)
}
