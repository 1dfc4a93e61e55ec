package wallet

// Selection narrows the wallets of a run. A non-zero Range selects wallets
// whose ID lies within it; otherwise a non-empty IDs list selects exactly
// those wallets; otherwise everything is selected.
type Selection struct {
	Range IntRange
	IDs   []int64
}

// Apply returns the selected records, preserving order.
func (s Selection) Apply(records []*Record) []*Record {
	switch {
	case s.Range != (IntRange{}):
		var out []*Record
		for _, r := range records {
			if r.ID >= int64(s.Range.Min) && r.ID <= int64(s.Range.Max) {
				out = append(out, r)
			}
		}
		return out
	case len(s.IDs) > 0:
		want := make(map[int64]bool, len(s.IDs))
		for _, id := range s.IDs {
			want[id] = true
		}
		var out []*Record
		for _, r := range records {
			if want[r.ID] {
				out = append(out, r)
			}
		}
		return out
	}
	return records
}
