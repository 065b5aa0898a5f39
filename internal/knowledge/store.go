// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_knowledge

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// ScoreModeSimilarity keeps hits whose cosine similarity is >= threshold;
// ScoreModeDistance keeps hits whose cosine distance is <= threshold.
const (
	ScoreModeSimilarity = "similarity"
	ScoreModeDistance   = "distance"
)

// Chunk is one embedded span of a source document.
type Chunk struct {
	ID         uint   `gorm:"primarykey"`
	Tenant     string `gorm:"index:idx_tenant_source"`
	SourcePath string `gorm:"index:idx_tenant_source"`
	Filename   string
	Ordinal    int
	Content    string
	Embedding  []byte // little-endian float32 vector
	CreatedAt  time.Time
}

// StoreOptions tunes retrieval.
type StoreOptions struct {
	TopK           int
	ScoreMode      string
	ScoreThreshold float64
}

// Store is the knowledge base: document chunks with embeddings in a sqlite
// file, searched by brute-force cosine ranking. Corpora here are a handful
// of scripts and policy documents, small enough that exhaustive scoring wins
// over index maintenance.
type Store struct {
	logger   commons.Logger
	db       *gorm.DB
	embedder internal_type.Embedder
	opts     StoreOptions
}

var _ internal_type.KnowledgeSearcher = (*Store)(nil)

func NewStore(logger commons.Logger, dir string, embedder internal_type.Embedder, opts StoreOptions) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create kb dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "knowledge.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open kb db: %w", err)
	}
	if err := db.AutoMigrate(&Chunk{}); err != nil {
		return nil, fmt.Errorf("migrate kb schema: %w", err)
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.ScoreMode == "" {
		opts.ScoreMode = ScoreModeSimilarity
	}
	return &Store{logger: logger, db: db, embedder: embedder, opts: opts}, nil
}

// Ingest splits, embeds, and stores the documents at paths under tenant.
// Re-ingesting a path replaces its previous chunks.
func (s *Store) Ingest(ctx context.Context, tenant string, paths []string) (int, error) {
	total := 0
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return total, fmt.Errorf("read document %s: %w", path, err)
		}
		chunks := SplitText(string(raw))
		if len(chunks) == 0 {
			s.logger.Warnf("document %s yielded no chunks, skipping", path)
			continue
		}
		vectors, err := s.embedder.Embed(ctx, chunks)
		if err != nil {
			return total, fmt.Errorf("embed document %s: %w", path, err)
		}

		rows := make([]Chunk, len(chunks))
		for i := range chunks {
			rows[i] = Chunk{
				Tenant:     tenant,
				SourcePath: path,
				Filename:   filepath.Base(path),
				Ordinal:    i,
				Content:    chunks[i],
				Embedding:  encodeVector(vectors[i]),
			}
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("tenant = ? AND source_path = ?", tenant, path).Delete(&Chunk{}).Error; err != nil {
				return err
			}
			return tx.CreateInBatches(rows, 100).Error
		})
		if err != nil {
			return total, fmt.Errorf("store document %s: %w", path, err)
		}
		total += len(rows)
		s.logger.Infow("document ingested", "tenant", tenant, "file", filepath.Base(path), "chunks", len(rows))
	}
	return total, nil
}

// Count returns how many chunks tenant has.
func (s *Store) Count(ctx context.Context, tenant string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Chunk{}).Where("tenant = ?", tenant).Count(&n).Error
	return n, err
}

// Search embeds query and returns the tenant's passages that clear the score
// threshold, best first. When nothing clears it but candidates exist, the
// single best candidate is returned so the model has something to ground on.
func (s *Store) Search(ctx context.Context, tenant, query string) ([]internal_type.ScoredPassage, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qv := vectors[0]

	var rows []Chunk
	if err := s.db.WithContext(ctx).Where("tenant = ?", tenant).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	candidates := make([]internal_type.ScoredPassage, 0, len(rows))
	for _, row := range rows {
		sim := cosineSimilarity(qv, decodeVector(row.Embedding))
		score := sim
		if s.opts.ScoreMode == ScoreModeDistance {
			score = 1 - sim
		}
		candidates = append(candidates, internal_type.ScoredPassage{
			Content:    row.Content,
			SourcePath: row.SourcePath,
			Filename:   row.Filename,
			Score:      score,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if s.opts.ScoreMode == ScoreModeDistance {
			return candidates[i].Score < candidates[j].Score
		}
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > s.opts.TopK {
		candidates = candidates[:s.opts.TopK]
	}

	kept := candidates[:0:0]
	for _, c := range candidates {
		if s.clears(c.Score) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		s.logger.Warnw("no passage cleared the score threshold, keeping best",
			"tenant", tenant,
			"bestScore", candidates[0].Score,
			"threshold", s.opts.ScoreThreshold)
		kept = candidates[:1]
	}
	return kept, nil
}

func (s *Store) clears(score float64) bool {
	if s.opts.ScoreMode == ScoreModeDistance {
		return score <= s.opts.ScoreThreshold
	}
	return score >= s.opts.ScoreThreshold
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
