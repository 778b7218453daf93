package collection

// Observer is notified after each successful store mutation.
type Observer interface {
	// RecordChanged reports an updated field. field is empty when the whole
	// record was replaced.
	RecordChanged(key, field string)
	// RowsInserted reports records appended at positions first..last.
	RowsInserted(first, last int)
	// RowsRemoved reports records removed from positions first..last.
	RowsRemoved(first, last int)
	// Reset reports that the whole collection was replaced.
	Reset()
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) RecordChanged(string, string) {}
func (NopObserver) RowsInserted(int, int)         {}
func (NopObserver) RowsRemoved(int, int)          {}
func (NopObserver) Reset()                        {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (obs Observers) RecordChanged(key, field string) {
	for _, o := range obs {
		o.RecordChanged(key, field)
	}
}

func (obs Observers) RowsInserted(first, last int) {
	for _, o := range obs {
		o.RowsInserted(first, last)
	}
}

func (obs Observers) RowsRemoved(first, last int) {
	for _, o := range obs {
		o.RowsRemoved(first, last)
	}
}

func (obs Observers) Reset() {
	for _, o := range obs {
		o.Reset()
	}
}
