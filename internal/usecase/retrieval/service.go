package retrieval

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valtric/dealbrain/internal/domain"
	"github.com/valtric/dealbrain/internal/metrics"
)

// Config tunes the hybrid retriever. The vector/lexical split is an
// empirical tuning parameter, not a contract; 0.7/0.3 is the default.
type Config struct {
	TopK            int
	OverFetchFactor int
	VectorWeight    float64
	LexicalWeight   float64
	Timeout         time.Duration
}

// Service assembles evidence packs: cache lookup, query embedding, parallel
// vector and lexical candidate search, weighted blending, reranking.
// Retrieval failures degrade to a flagged pack rather than failing the
// request; absence of evidence is a valid outcome the caller must handle.
type Service struct {
	searcher VectorSearcher
	embed    Embedder
	cache    PackCache
	reranker Reranker
	cfg      Config
	logger   *zap.Logger
}

// New creates a hybrid retrieval service.
func New(
	searcher VectorSearcher,
	embed Embedder,
	cache PackCache,
	reranker Reranker,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		searcher: searcher,
		embed:    embed,
		cache:    cache,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve returns the evidence pack for a (deal, question) pair under the
// given snapshot, from cache when possible. Degraded packs are returned but
// never cached, so a later attempt can recompute them cleanly.
func (s *Service) Retrieve(
	ctx context.Context, deal domain.Deal, snap domain.Snapshot, question string,
) (domain.EvidencePack, error) {
	scope := domain.ScopeOf(question)
	fingerprint := domain.Fingerprint(question, scope)

	if pack, ok := s.cache.Get(ctx, deal.ID, fingerprint, snap.ID); ok {
		return pack, nil
	}

	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	}()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	queryText := ComposeQuery(deal, question)

	emb, err := s.embed.Embed(ctx, queryText)
	if err != nil {
		s.logger.Warn("Embedding failed, degrading to empty evidence",
			zap.String("deal_id", deal.ID), zap.Error(err))
		metrics.RetrievalDegradedTotal.WithLabelValues("embedding").Inc()
		return s.degradedPack(deal.ID, snap.ID, fingerprint, "embedding"), nil
	}

	if snap.Dimensions > 0 && len(emb.Embedding) != snap.Dimensions {
		return domain.EvidencePack{}, domain.ErrVectorDimMismatch
	}

	overFetch := s.cfg.TopK * s.cfg.OverFetchFactor
	terms := queryTerms(question)

	var (
		vecItems, lexItems []domain.EvidenceItem
		vecErr, lexErr     error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecItems, vecErr = s.searcher.SearchKNN(gctx, emb.Embedding, deal.ID, snap.ID, overFetch)
		return nil
	})
	g.Go(func() error {
		lexItems, lexErr = s.searcher.SearchLexical(gctx, deal.ID, snap.ID, terms, overFetch)
		return nil
	})
	_ = g.Wait()

	if vecErr != nil && lexErr != nil {
		s.logger.Warn("Vector and lexical search both failed, degrading to empty evidence",
			zap.String("deal_id", deal.ID),
			zap.NamedError("vector_error", vecErr),
			zap.NamedError("lexical_error", lexErr))
		metrics.RetrievalDegradedTotal.WithLabelValues("vector").Inc()
		metrics.RetrievalDegradedTotal.WithLabelValues("lexical").Inc()
		return s.degradedPack(deal.ID, snap.ID, fingerprint, "vector"), nil
	}

	pack := domain.EvidencePack{
		ID:          uuid.NewString(),
		DealID:      deal.ID,
		SnapshotID:  snap.ID,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC(),
	}
	switch {
	case vecErr != nil:
		s.logger.Warn("Vector search failed, degrading to lexical-only ranking",
			zap.String("deal_id", deal.ID), zap.Error(vecErr))
		metrics.RetrievalDegradedTotal.WithLabelValues("vector").Inc()
		pack.Degraded = true
		pack.DegradedBy = "vector"
		vecItems = nil
	case lexErr != nil:
		s.logger.Warn("Lexical search failed, degrading to vector-only ranking",
			zap.String("deal_id", deal.ID), zap.Error(lexErr))
		metrics.RetrievalDegradedTotal.WithLabelValues("lexical").Inc()
		pack.Degraded = true
		pack.DegradedBy = "lexical"
		lexItems = nil
	}

	blended := s.blend(vecItems, lexItems, terms)
	blended = s.reranker.Rerank(question, blended)
	if len(blended) > s.cfg.TopK {
		blended = blended[:s.cfg.TopK]
	}
	pack.Items = blended

	if !pack.Degraded {
		s.cache.Put(ctx, pack)
	}
	return pack, nil
}

// blend unions vector and lexical candidates into one ranking. Every
// candidate scores vectorWeight * cosine + lexicalWeight * termRatio, where
// termRatio is the share of distinct query terms found in the chunk text.
// Ties break by chunk id ascending for determinism.
func (s *Service) blend(vecItems, lexItems []domain.EvidenceItem, terms []string) []domain.EvidenceItem {
	byChunk := make(map[string]domain.EvidenceItem, len(vecItems)+len(lexItems))
	cosine := make(map[string]float64, len(vecItems))

	for _, it := range vecItems {
		byChunk[it.ChunkID] = it
		cosine[it.ChunkID] = it.Score
	}
	for _, it := range lexItems {
		if _, ok := byChunk[it.ChunkID]; !ok {
			byChunk[it.ChunkID] = it
		}
	}

	items := make([]domain.EvidenceItem, 0, len(byChunk))
	for id, it := range byChunk {
		it.Score = s.cfg.VectorWeight*cosine[id] + s.cfg.LexicalWeight*termRatio(it.Text, terms)
		items = append(items, it)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ChunkID < items[j].ChunkID
	})
	return items
}

func (s *Service) degradedPack(dealID, snapshotID, fingerprint, stage string) domain.EvidencePack {
	return domain.EvidencePack{
		ID:          uuid.NewString(),
		DealID:      dealID,
		SnapshotID:  snapshotID,
		Fingerprint: fingerprint,
		Items:       []domain.EvidenceItem{},
		Degraded:    true,
		DegradedBy:  stage,
		CreatedAt:   time.Now().UTC(),
	}
}

// ComposeQuery augments the raw question with deal facts so the embedding
// carries the deal's identity and financial frame.
func ComposeQuery(deal domain.Deal, question string) string {
	return question + " :: " + deal.Name +
		" | " + deal.Industry +
		" | " + strconv.FormatFloat(deal.Price, 'f', -1, 64) +
		" | " + strconv.FormatFloat(deal.EBITDA, 'f', -1, 64)
}

func termRatio(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	return float64(overlapCount(text, terms)) / float64(len(terms))
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {},
	"what": {}, "how": {}, "does": {}, "this": {}, "that": {}, "with": {},
	"about": {}, "over": {}, "under": {}, "should": {}, "would": {},
}

// queryTerms tokenizes the question into distinct lowercase terms, dropping
// stopwords and short tokens, preserving first-seen order. Short tokens
// written in all caps survive the length filter: one- and two-letter ticker
// symbols are exactly the terms lexical rescue exists for.
func queryTerms(question string) []string {
	fields := strings.FieldsFunc(question, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-')
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 && !isTicker(f) {
			continue
		}
		lower := strings.ToLower(f)
		if _, ok := stopwords[lower]; ok {
			continue
		}
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		terms = append(terms, lower)
	}
	return terms
}

// isTicker reports whether a short token reads like a ticker symbol: all
// capitals or digits with at least one capital, e.g. "BP", "GM", "3M".
func isTicker(token string) bool {
	hasUpper := false
	for _, r := range token {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return hasUpper
}
