package storage

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryVectorStore does exact cosine search over in-process maps.
type MemoryVectorStore struct {
	mu    sync.RWMutex
	parts map[string]map[string][]ChunkRecord // namespace -> workflow -> records
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{parts: map[string]map[string][]ChunkRecord{}}
}

func (s *MemoryVectorStore) Upsert(_ context.Context, namespace string, records []ChunkRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.parts[namespace]
	if !ok {
		ns = map[string][]ChunkRecord{}
		s.parts[namespace] = ns
	}
	added := 0
	for _, r := range records {
		if containsID(ns[r.WorkflowID], r.ID) {
			continue
		}
		r.Embedding = append([]float32(nil), r.Embedding...)
		ns[r.WorkflowID] = append(ns[r.WorkflowID], r)
		added++
	}
	return added, nil
}

func containsID(records []ChunkRecord, id string) bool {
	for _, r := range records {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (s *MemoryVectorStore) ExistingIDs(_ context.Context, namespace, workflowID string, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(ids))
	records := s.parts[namespace][workflowID]
	for _, id := range ids {
		if containsID(records, id) {
			out[id] = true
		}
	}
	return out, nil
}

func (s *MemoryVectorStore) Query(_ context.Context, namespace, workflowID string, vector []float32, topK int) ([]ChunkMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.parts[namespace][workflowID]
	matches := make([]ChunkMatch, 0, len(records))
	for _, r := range records {
		matches = append(matches, ChunkMatch{
			ID:         r.ID,
			WorkflowID: r.WorkflowID,
			DocumentID: r.DocumentID,
			Source:     r.Source,
			Page:       r.Page,
			Content:    r.Content,
			Score:      cosine(vector, r.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *MemoryVectorStore) Count(_ context.Context, namespace, workflowID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parts[namespace][workflowID]), nil
}

func (s *MemoryVectorStore) DeleteWorkflow(_ context.Context, namespace, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.parts[namespace], workflowID)
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ VectorStore = (*MemoryVectorStore)(nil)
