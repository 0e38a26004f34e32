package qpack

import "errors"

// entryOverhead is the per-entry bookkeeping cost counted against the
// table's byte budget, matching RFC 9204 §3.2.1 (same constant HPACK uses).
const entryOverhead = 32

var (
	// ErrWouldEvictReferenced is returned by Insert/SetMaxSize when making
	// room would require evicting an entry some live header block still
	// references.
	ErrWouldEvictReferenced = errors.New("qpack: insertion would evict a referenced entry")
	// ErrEntryTooLarge is returned when a single entry cannot fit even in
	// an empty table of the configured capacity.
	ErrEntryTooLarge = errors.New("qpack: entry larger than table capacity")
	// ErrIndexOutOfRange is returned by Get/Ref/Duplicate for an absolute
	// index that is not (or no longer) present in the table.
	ErrIndexOutOfRange = errors.New("qpack: dynamic table index out of range")
)

// dynEntry is one live row of the dynamic table. Name/Value own their
// bytes directly and rely on Go's GC instead of a fixed circular byte
// arena; the byte-budget accounting below still has to be kept by hand.
type dynEntry struct {
	absIndex uint64
	name     string
	value    string
	refCount int
}

func (e *dynEntry) size() uint64 {
	return uint64(len(e.name)+len(e.value)) + entryOverhead
}

// DynamicTable is the QPACK dynamic table: an ordered ring of
// entries, indexed by ever-increasing absolute index, bounded by a byte
// budget and protected from evicting anything a live header block still
// references.
type DynamicTable struct {
	entries []dynEntry // oldest first (tail = entries[0]), newest last (head)

	insertedCount uint64 // total entries ever inserted
	usedBytes     uint64
	maxTableSize  uint64
}

// NewDynamicTable creates an empty table with the given byte capacity.
func NewDynamicTable(maxTableSize uint64) *DynamicTable {
	return &DynamicTable{maxTableSize: maxTableSize}
}

// InsertedCount returns the number of entries ever inserted (monotonic),
// i.e. the "insert count" a QPACK prefix's required insert count compares
// against.
func (t *DynamicTable) InsertedCount() uint64 { return t.insertedCount }

// MaxTableSize returns the table's configured byte budget.
func (t *DynamicTable) MaxTableSize() uint64 { return t.maxTableSize }

// UsedBytes returns the sum of (name_len+value_len+overhead) of live
// entries.
func (t *DynamicTable) UsedBytes() uint64 { return t.usedBytes }

// Len returns the number of live entries.
func (t *DynamicTable) Len() int { return len(t.entries) }

func (t *DynamicTable) oldestIndex() uint64 {
	if len(t.entries) == 0 {
		return t.insertedCount
	}
	return t.entries[0].absIndex
}

func (t *DynamicTable) indexOf(absIndex uint64) int {
	if len(t.entries) == 0 {
		return -1
	}
	oldest := t.entries[0].absIndex
	if absIndex < oldest || absIndex >= oldest+uint64(len(t.entries)) {
		return -1
	}
	return int(absIndex - oldest)
}

// Get returns the live entry at absolute index idx.
func (t *DynamicTable) Get(idx uint64) (Header, error) {
	i := t.indexOf(idx)
	if i < 0 {
		return Header{}, ErrIndexOutOfRange
	}
	e := t.entries[i]
	return Header{Name: e.name, Value: e.value}, nil
}

// evict frees room for needed more bytes by evicting from the tail. If
// that would mean evicting an entry that is still referenced, it evicts
// nothing and returns false; the caller decides whether that's fatal.
func (t *DynamicTable) evict(needed uint64) bool {
	used := t.usedBytes
	for i := 0; used+needed > t.maxTableSize; i++ {
		if i >= len(t.entries) || t.entries[i].refCount > 0 {
			return false
		}
		used -= t.entries[i].size()
	}
	for t.usedBytes+needed > t.maxTableSize && len(t.entries) > 0 {
		oldest := &t.entries[0]
		if oldest.refCount > 0 {
			return false
		}
		t.usedBytes -= oldest.size()
		t.entries = t.entries[1:]
	}
	return t.usedBytes+needed <= t.maxTableSize
}

// Insert adds a new (name, value) entry, evicting from the tail as needed.
// It fails without mutating the table if eviction would have to remove a
// referenced entry, or if the entry cannot fit even in an empty table.
func (t *DynamicTable) Insert(name, value string) (uint64, error) {
	e := dynEntry{name: name, value: value}
	needed := e.size()
	if needed > t.maxTableSize {
		return 0, ErrEntryTooLarge
	}
	if !t.evict(needed) {
		return 0, ErrWouldEvictReferenced
	}
	e.absIndex = t.insertedCount
	t.entries = append(t.entries, e)
	t.usedBytes += needed
	t.insertedCount++
	return e.absIndex, nil
}

// Duplicate re-inserts the entry at idx as a new entry at the current
// insertion point (RFC 9204 §4.3.4), refreshing its recency without
// changing its content.
func (t *DynamicTable) Duplicate(idx uint64) (uint64, error) {
	h, err := t.Get(idx)
	if err != nil {
		return 0, err
	}
	return t.Insert(h.Name, h.Value)
}

// SetMaxSize updates the byte budget, evicting from the tail as needed. It
// fails (table unchanged) if shrinking would require evicting a referenced
// entry.
func (t *DynamicTable) SetMaxSize(size uint64) error {
	old := t.maxTableSize
	t.maxTableSize = size
	if t.usedBytes <= size {
		return nil
	}
	if !t.evict(0) {
		t.maxTableSize = old
		return ErrWouldEvictReferenced
	}
	return nil
}

// Ref increments the reference count of the entry at idx, pinning it
// against eviction until a matching Release. Called once per header-block
// reference at encode time.
func (t *DynamicTable) Ref(idx uint64) error {
	i := t.indexOf(idx)
	if i < 0 {
		return ErrIndexOutOfRange
	}
	t.entries[i].refCount++
	return nil
}

// Release decrements the reference count of every live entry in
// [smallest, largest], the range a single HeaderBlockReferences record
// covers. Indices outside the table's current live range are
// silently ignored (the entry may already have aged out after being
// unreferenced by an earlier Release covering it).
func (t *DynamicTable) Release(smallest, largest uint64) {
	for idx := smallest; idx <= largest; idx++ {
		if i := t.indexOf(idx); i >= 0 && t.entries[i].refCount > 0 {
			t.entries[i].refCount--
		}
	}
}

// RefCount reports the current reference count of the entry at idx, or -1
// if idx is not live.
func (t *DynamicTable) RefCount(idx uint64) int {
	i := t.indexOf(idx)
	if i < 0 {
		return -1
	}
	return t.entries[i].refCount
}

// LookupExact returns the absolute index of a live entry with an exact
// (name, value) match, preferring the most recently inserted.
func (t *DynamicTable) LookupExact(name, value string) (uint64, bool) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].name == name && t.entries[i].value == value {
			return t.entries[i].absIndex, true
		}
	}
	return 0, false
}

// LookupName returns the absolute index of a live entry with a matching
// name, preferring the most recently inserted.
func (t *DynamicTable) LookupName(name string) (uint64, bool) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].name == name {
			return t.entries[i].absIndex, true
		}
	}
	return 0, false
}

// ShouldDuplicate decides whether the entry at idx is a good candidate for
// RFC 9204 §4.3.4 Duplicate rather than referencing it in place: either it
// is already being leaned on by several live header blocks (refCount >= 3,
// our proxy for "referenced by more than one in-flight block"), or it has
// aged past the table's own depth while still referenced, meaning it is
// likely to be evicted out from under a decoder before it's acknowledged.
// This heuristic (rather than never duplicating) is recorded in DESIGN.md.
func (t *DynamicTable) ShouldDuplicate(idx uint64) bool {
	i := t.indexOf(idx)
	if i < 0 {
		return false
	}
	e := &t.entries[i]
	if e.refCount >= 3 {
		return true
	}
	staleness := t.insertedCount - e.absIndex
	return e.refCount > 0 && staleness > uint64(len(t.entries))
}
