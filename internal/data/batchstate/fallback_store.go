package batchstate

import (
	"sort"
	"sync"
	"time"

	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
)

// FallbackStore is the in-process, non-durable copy of batch documents used
// while the primary store is unreachable. One instance lives from process
// start to process exit; nothing is shared across processes and nothing
// expires. Entries are either mirrors of primary documents or batches created
// here while the primary was down; only the latter outlive a primary miss.
// The mutex only protects the map: UpdateJobStatus reads, mutates and writes
// back in separate steps, so two writers racing on the same batch resolve as
// last write wins.
type FallbackStore struct {
	mu   sync.RWMutex
	docs map[string]*fallbackEntry
	now  func() time.Time
}

type fallbackEntry struct {
	doc   *batch.BatchExecution
	owned bool
}

func NewFallbackStore() *FallbackStore {
	return &FallbackStore{
		docs: make(map[string]*fallbackEntry),
		now:  time.Now,
	}
}

// Create starts a batch that only this store knows about.
func (f *FallbackStore) Create(batchID string, jobs []batch.JobInput) *batch.BatchExecution {
	doc := batch.NewBatchExecution(batchID, jobs, f.now())
	f.mu.Lock()
	f.docs[batchID] = &fallbackEntry{doc: doc.Clone(), owned: true}
	f.mu.Unlock()
	return doc
}

// Put stores a mirror of a primary document, replacing any existing entry.
func (f *FallbackStore) Put(doc *batch.BatchExecution) {
	if doc == nil {
		return
	}
	cp := doc.Clone()
	f.mu.Lock()
	f.docs[doc.BatchID] = &fallbackEntry{doc: cp}
	f.mu.Unlock()
}

// Mirror is Put for write results: a copy that is already further along than
// doc is kept, so out-of-order callers never move the mirror backwards.
func (f *FallbackStore) Mirror(doc *batch.BatchExecution) {
	if doc == nil {
		return
	}
	cp := doc.Clone()
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.docs[doc.BatchID]; ok && cur.doc.Progress() > cp.Progress() {
		return
	}
	f.docs[doc.BatchID] = &fallbackEntry{doc: cp}
}

func (f *FallbackStore) Get(batchID string) (*batch.BatchExecution, bool) {
	f.mu.RLock()
	e, ok := f.docs[batchID]
	f.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.doc.Clone(), true
}

// Owns reports whether batchID was created here rather than mirrored.
func (f *FallbackStore) Owns(batchID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.docs[batchID]
	return ok && e.owned
}

// Mirrored lists the IDs of mirrored entries.
func (f *FallbackStore) Mirrored() []string {
	f.mu.RLock()
	ids := make([]string, 0, len(f.docs))
	for id, e := range f.docs {
		if !e.owned {
			ids = append(ids, id)
		}
	}
	f.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// save writes doc back, keeping the entry's origin.
func (f *FallbackStore) save(doc *batch.BatchExecution) {
	cp := doc.Clone()
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.docs[doc.BatchID]; ok {
		e.doc = cp
		return
	}
	f.docs[doc.BatchID] = &fallbackEntry{doc: cp}
}

func (f *FallbackStore) UpdateJobStatus(batchID, jobID string, status batch.JobStatus, upd batch.JobUpdate) (*batch.BatchExecution, error) {
	doc, ok := f.Get(batchID)
	if !ok {
		return nil, batch.ErrNotFound
	}
	if doc.ApplyJobStatus(jobID, status, upd, f.now()) {
		f.save(doc)
	}
	return doc, nil
}

func (f *FallbackStore) Complete(batchID string) (*batch.BatchExecution, error) {
	doc, ok := f.Get(batchID)
	if !ok {
		return nil, batch.ErrNotFound
	}
	doc.ForceComplete(f.now())
	f.save(doc)
	return doc, nil
}

func (f *FallbackStore) Delete(batchID string) {
	f.mu.Lock()
	delete(f.docs, batchID)
	f.mu.Unlock()
}

func (f *FallbackStore) ListActive() []string {
	f.mu.RLock()
	ids := make([]string, 0, len(f.docs))
	for id, e := range f.docs {
		if e.doc.IsActive {
			ids = append(ids, id)
		}
	}
	f.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// SweepInactive drops every inactive document and returns how many were removed.
func (f *FallbackStore) SweepInactive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for id, e := range f.docs {
		if !e.doc.IsActive {
			delete(f.docs, id)
			removed++
		}
	}
	return removed
}

func (f *FallbackStore) Stats() batch.Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	active := 0
	for _, e := range f.docs {
		if e.doc.IsActive {
			active++
		}
	}
	return batch.Stats{
		ActiveCount:    active,
		TotalDocuments: len(f.docs),
		Provenance:     batch.ProvenanceFallback,
	}
}
