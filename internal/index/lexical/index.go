// Package lexical implements the positional inverted index backing
// keyword search: token → ordered postings with positions, boolean
// AND/OR/NOT evaluation and exact-phrase matching via position adjacency.
//
// Entries are keyed by document id and written once per id; content
// changes arrive as new document versions with new ids. Generation
// numbers recorded at insertion let readers evaluate queries against a
// fixed snapshot without locking out writers.
package lexical

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.LexicalIndex = (*Index)(nil)

// BM25 parameters, conventional values.
const (
	k1 = 1.2
	b  = 0.75
)

type posting struct {
	positions []int
	frequency int
}

type docEntry struct {
	gen      uint64
	checksum string
	length   int
}

// Index is the positional inverted index. It answers queries from memory;
// with a store attached every write goes through to durable storage so a
// restart can Load instead of re-tokenising the corpus.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[string]*posting // term -> docID -> posting
	docs     map[string]*docEntry
	totalLen int64

	store driven.LexicalIndexStore // nil for ephemeral indexes
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		postings: make(map[string]map[string]*posting),
		docs:     make(map[string]*docEntry),
	}
}

// NewPersistent creates an index that writes through to the store.
// Call Load to populate it from persisted state.
func NewPersistent(store driven.LexicalIndexStore) *Index {
	idx := New()
	idx.store = store
	return idx
}

// Load replaces the in-memory state with the persisted postings.
func (idx *Index) Load(ctx context.Context) error {
	if idx.store == nil {
		return nil
	}
	persisted, err := idx.store.LoadDocuments(ctx)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.postings = make(map[string]map[string]*posting)
	idx.docs = make(map[string]*docEntry, len(persisted))
	idx.totalLen = 0

	for _, doc := range persisted {
		for term, positions := range doc.Terms {
			byDoc, ok := idx.postings[term]
			if !ok {
				byDoc = make(map[string]*posting)
				idx.postings[term] = byDoc
			}
			byDoc[doc.DocID] = &posting{positions: positions, frequency: len(positions)}
		}
		idx.docs[doc.DocID] = &docEntry{gen: doc.Gen, checksum: doc.Checksum, length: doc.Length}
		idx.totalLen += int64(doc.Length)
	}
	return nil
}

// Index adds postings for a document at the given generation.
// Re-indexing an existing id (repair path) replaces its postings.
func (idx *Index) Index(ctx context.Context, docID string, gen uint64, checksum, title, content string) error {
	tokens := Tokenize(title + "\n" + content)

	perTerm := make(map[string]*posting)
	for _, tok := range tokens {
		p, ok := perTerm[tok.Term]
		if !ok {
			p = &posting{positions: make([]int, 0, 4)}
			perTerm[tok.Term] = p
		}
		p.frequency++
		p.positions = append(p.positions, tok.Position)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(docID)

	for term, p := range perTerm {
		byDoc, ok := idx.postings[term]
		if !ok {
			byDoc = make(map[string]*posting)
			idx.postings[term] = byDoc
		}
		byDoc[docID] = p
	}
	idx.docs[docID] = &docEntry{gen: gen, checksum: checksum, length: len(tokens)}
	idx.totalLen += int64(len(tokens))

	if idx.store != nil {
		terms := make(map[string][]int, len(perTerm))
		for term, p := range perTerm {
			terms[term] = p.positions
		}
		return idx.store.SaveDocument(ctx, driven.PersistedPostings{
			DocID:    docID,
			Gen:      gen,
			Checksum: checksum,
			Length:   len(tokens),
			Terms:    terms,
		})
	}
	return nil
}

// Remove deletes a document's postings.
func (idx *Index) Remove(ctx context.Context, docID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(docID)
	if idx.store != nil {
		return idx.store.DeleteDocument(ctx, docID)
	}
	return nil
}

func (idx *Index) removeLocked(docID string) {
	entry, ok := idx.docs[docID]
	if !ok {
		return
	}
	for term, byDoc := range idx.postings {
		if _, ok := byDoc[docID]; ok {
			delete(byDoc, docID)
			if len(byDoc) == 0 {
				delete(idx.postings, term)
			}
		}
	}
	idx.totalLen -= int64(entry.length)
	delete(idx.docs, docID)
}

// Checksum returns the checksum recorded for a document.
func (idx *Index) Checksum(docID string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if e, ok := idx.docs[docID]; ok {
		return e.checksum
	}
	return ""
}

// Reset clears the index, dropping persisted state as well.
func (idx *Index) Reset(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = make(map[string]map[string]*posting)
	idx.docs = make(map[string]*docEntry)
	idx.totalLen = 0
	if idx.store != nil {
		return idx.store.DeleteAllDocuments(ctx)
	}
	return nil
}

// Search evaluates a boolean/phrase expression against postings visible at
// or before gen. Hits are ordered by descending BM25 score, ties by
// ascending document id; the order is fully deterministic.
func (idx *Index) Search(_ context.Context, query string, gen uint64, limit int) ([]driven.LexicalHit, error) {
	plan := parseQuery(query)
	if plan.empty() {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matched := make(map[string]struct{})
	for _, group := range plan.groups {
		for docID := range idx.matchGroup(group, gen) {
			matched[docID] = struct{}{}
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	terms := plan.positiveTerms()
	hits := make([]driven.LexicalHit, 0, len(matched))
	for docID := range matched {
		hits = append(hits, driven.LexicalHit{
			DocID: docID,
			Score: idx.scoreLocked(docID, terms, gen),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// matchGroup evaluates one conjunctive group: every positive atom must
// match, no negated atom may.
func (idx *Index) matchGroup(group []atom, gen uint64) map[string]struct{} {
	var result map[string]struct{}
	initialised := false

	for _, a := range group {
		if a.negate {
			continue
		}
		docs := idx.matchAtom(a, gen)
		if !initialised {
			result = docs
			initialised = true
			continue
		}
		for docID := range result {
			if _, ok := docs[docID]; !ok {
				delete(result, docID)
			}
		}
		if len(result) == 0 {
			return nil
		}
	}
	if !initialised {
		return nil
	}

	for _, a := range group {
		if !a.negate {
			continue
		}
		for docID := range idx.matchAtom(a, gen) {
			delete(result, docID)
		}
	}
	return result
}

// matchAtom returns documents containing the atom's term or exact phrase.
func (idx *Index) matchAtom(a atom, gen uint64) map[string]struct{} {
	first, ok := idx.postings[a.phrase[0]]
	if !ok {
		return nil
	}

	result := make(map[string]struct{})
	for docID, p := range first {
		entry := idx.docs[docID]
		if entry == nil || entry.gen > gen {
			continue
		}
		if len(a.phrase) == 1 || idx.phraseAt(docID, a.phrase, p.positions) {
			result[docID] = struct{}{}
		}
	}
	return result
}

// phraseAt checks position adjacency: each subsequent phrase term must
// appear at start+i for some start position of the first term.
func (idx *Index) phraseAt(docID string, phrase []string, starts []int) bool {
	for _, start := range starts {
		ok := true
		for i := 1; i < len(phrase); i++ {
			byDoc, exists := idx.postings[phrase[i]]
			if !exists {
				return false
			}
			p, exists := byDoc[docID]
			if !exists || !containsPosition(p.positions, start+i) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func containsPosition(positions []int, want int) bool {
	i := sort.SearchInts(positions, want)
	return i < len(positions) && positions[i] == want
}

// scoreLocked computes the BM25 score of a document for the query terms,
// counting only documents visible at gen in the corpus statistics.
func (idx *Index) scoreLocked(docID string, terms []string, gen uint64) float64 {
	entry := idx.docs[docID]
	if entry == nil {
		return 0
	}

	totalDocs, totalLen := 0, int64(0)
	for _, e := range idx.docs {
		if e.gen <= gen {
			totalDocs++
			totalLen += int64(e.length)
		}
	}
	if totalDocs == 0 {
		return 0
	}
	avgLen := float64(totalLen) / float64(totalDocs)

	var score float64
	for _, term := range terms {
		byDoc, ok := idx.postings[term]
		if !ok {
			continue
		}
		p, ok := byDoc[docID]
		if !ok {
			continue
		}

		docFreq := 0
		for id := range byDoc {
			if e := idx.docs[id]; e != nil && e.gen <= gen {
				docFreq++
			}
		}
		if docFreq == 0 {
			continue
		}

		idf := math.Log((float64(totalDocs)-float64(docFreq)+0.5)/(float64(docFreq)+0.5) + 1)
		tf := float64(p.frequency)
		lengthRatio := 0.0
		if avgLen > 0 {
			lengthRatio = float64(entry.length) / avgLen
		}
		tfNorm := (tf * (k1 + 1)) / (tf + k1*(1-b+b*lengthRatio))
		score += idf * tfNorm
	}

	// Round so float noise cannot perturb deterministic ordering.
	return math.Round(score*10000) / 10000
}

// Docs returns the number of indexed documents.
func (idx *Index) Docs() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}
