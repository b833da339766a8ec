//go:build !without_sqlite

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/memorylayer-ai/memengine/errors"
	"github.com/memorylayer-ai/memengine/internal/db"
)

// SqliteStore is the relational backend: memories live in an ordinary table
// while embeddings live in a sqlite-vec vec0 virtual table that serves as the
// similarity index. The index provides coarse nearest-neighbor retrieval;
// final scores always come from the shared similarity engine.
//
// Save policy: insert-enforcing. Re-saving an existing id fails with
// ErrDuplicate.
type SqliteStore struct {
	db        *gorm.DB
	dim       int
	tagPolicy TagMatchPolicy
}

var _ Store = (*SqliteStore)(nil)

// SqliteMemoryRecord is the database row for a memory. Platform is
// denormalized out of Source so filters hit a plain indexed column.
type SqliteMemoryRecord struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index:idx_memories_user_type_scope"`
	Content    string
	Type       string `gorm:"index:idx_memories_user_type_scope"`
	Scope      string `gorm:"index:idx_memories_user_type_scope"`
	Platform   string `gorm:"index"`
	Source     datatypes.JSONType[Source]
	Tags       datatypes.JSONSlice[string]
	Confidence float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (SqliteMemoryRecord) TableName() string {
	return "memories"
}

// NewSqliteStore opens (or creates) the database at dbPath and prepares the
// vec0 virtual table for the given embedding dimension.
func NewSqliteStore(dbPath string, dim int, tagPolicy TagMatchPolicy) (*SqliteStore, error) {
	gormDB, err := db.OpenSqlite(dbPath)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to open sqlite database: %v", err)
	}

	store := &SqliteStore{
		db:        gormDB,
		dim:       dim,
		tagPolicy: tagPolicy,
	}

	if err := gormDB.AutoMigrate(&SqliteMemoryRecord{}); err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to migrate memories table: %v", err)
	}

	if err := store.createVectorTable(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SqliteStore) createVectorTable() error {
	// Verify sqlite-vec is loaded before relying on vec0.
	var sqliteVersion, vecVersion string
	if err := s.db.Raw("SELECT sqlite_version(), vec_version()").Row().Scan(&sqliteVersion, &vecVersion); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "sqlite-vec extension not properly loaded: %v", err)
	}

	createTableSQL := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors USING vec0(
			memory_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.dim)

	if err := s.db.Exec(createTableSQL).Error; err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to create memory_vectors table: %v", err)
	}
	return nil
}

func (s *SqliteStore) Save(ctx context.Context, m *Memory) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if err := checkDimension(s.dim, m.Embedding); err != nil {
		return "", err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The primary key enforces uniqueness; a plain insert keeps duplicate
		// detection atomic under concurrent saves.
		record := recordFromMemory(m)
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.Wrapf(errors.ErrDuplicate, "memory %s already exists", m.ID)
			}
			return errors.Wrapf(errors.ErrPersistence, "failed to insert memory record: %v", err)
		}

		serialized, err := sqlite_vec.SerializeFloat32(m.Embedding)
		if err != nil {
			return errors.Wrapf(errors.ErrPersistence, "failed to serialize embedding: %v", err)
		}
		if err := tx.Exec("INSERT INTO memory_vectors (memory_id, embedding) VALUES (?, ?)", m.ID, serialized).Error; err != nil {
			return errors.Wrapf(errors.ErrPersistence, "failed to insert memory vector: %v", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (s *SqliteStore) Update(ctx context.Context, id string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record SqliteMemoryRecord
		if err := tx.First(&record, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errors.ErrNotFound, "memory %s", id)
			}
			return errors.Wrapf(errors.ErrPersistence, "failed to load memory record: %v", err)
		}

		if patch.Content != nil {
			record.Content = *patch.Content
		}
		if patch.Confidence != nil {
			record.Confidence = *patch.Confidence
		}
		if patch.Tags != nil {
			record.Tags = datatypes.JSONSlice[string](patch.Tags)
		}
		if patch.Source != nil {
			record.Source = datatypes.NewJSONType(*patch.Source)
			record.Platform = patch.Source.Platform
		}
		record.UpdatedAt = time.Now()

		if err := tx.Save(&record).Error; err != nil {
			return errors.Wrapf(errors.ErrPersistence, "failed to save memory record: %v", err)
		}
		return nil
	})
}

func (s *SqliteStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM memory_vectors WHERE memory_id = ?", id).Error; err != nil {
			return errors.Wrapf(errors.ErrPersistence, "failed to delete memory vector: %v", err)
		}

		res := tx.Delete(&SqliteMemoryRecord{}, "id = ?", id)
		if res.Error != nil {
			return errors.Wrapf(errors.ErrPersistence, "failed to delete memory record: %v", res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(errors.ErrNotFound, "memory %s", id)
		}
		return nil
	})
}

func (s *SqliteStore) Get(ctx context.Context, id string) (*Memory, error) {
	var record SqliteMemoryRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to load memory record: %v", err)
	}

	embeddings, err := s.loadEmbeddings(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return memoryFromRecord(&record, embeddings[id]), nil
}

func (s *SqliteStore) SearchByEmbedding(ctx context.Context, query []float32, limit int, filter *MemoryFilter) ([]ScoredMemory, error) {
	if err := checkDimension(s.dim, query); err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, errors.Wrapf(errors.ErrValidation, "query embedding is empty")
	}

	tx := s.db.WithContext(ctx)

	// Resolve the filter to candidate ids first so the KNN scan only ranks
	// rows that can actually be returned.
	var allowedIds []string
	if filter != nil {
		if err := s.applyFilter(tx.Model(&SqliteMemoryRecord{}), filter).Pluck("id", &allowedIds).Error; err != nil {
			return nil, errors.Wrapf(errors.ErrPersistence, "failed to resolve filter: %v", err)
		}
		if len(allowedIds) == 0 {
			return []ScoredMemory{}, nil
		}
	}

	serialized, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to serialize query embedding: %v", err)
	}

	k := limit * 2
	if limit <= 0 {
		var total int64
		if err := tx.Model(&SqliteMemoryRecord{}).Count(&total).Error; err != nil {
			return nil, errors.Wrapf(errors.ErrPersistence, "failed to count memories: %v", err)
		}
		k = int(total)
	}
	if k == 0 {
		return []ScoredMemory{}, nil
	}

	var searchSQL string
	var args []interface{}
	if len(allowedIds) > 0 {
		// vec0 cannot see a LIMIT when the knn query carries extra
		// constraints; `k = ?` is the library's equivalent spelling.
		searchSQL = `
			SELECT memory_id, distance
			FROM memory_vectors
			WHERE embedding MATCH ? AND k = ? AND memory_id IN ?
			ORDER BY distance
		`
		args = []interface{}{serialized, k, allowedIds}
	} else {
		searchSQL = `
			SELECT memory_id, distance
			FROM memory_vectors
			WHERE embedding MATCH ?
			ORDER BY distance
			LIMIT ?
		`
		args = []interface{}{serialized, k}
	}

	rows, err := tx.Raw(searchSQL, args...).Rows()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to execute vector search: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, errors.Wrapf(errors.ErrPersistence, "failed to scan search row: %v", err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return []ScoredMemory{}, nil
	}

	candidates, err := s.loadMemories(ctx, ids)
	if err != nil {
		return nil, err
	}

	return rankByEmbedding(candidates, query, limit)
}

func (s *SqliteStore) List(ctx context.Context, limit, offset int, filter *MemoryFilter) ([]*Memory, error) {
	tx := s.applyFilter(s.db.WithContext(ctx).Model(&SqliteMemoryRecord{}), filter).
		Order("updated_at DESC, rowid ASC")
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var records []SqliteMemoryRecord
	if err := tx.Find(&records).Error; err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to list memory records: %v", err)
	}
	if len(records) == 0 {
		return []*Memory{}, nil
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	embeddings, err := s.loadEmbeddings(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]*Memory, len(records))
	for i := range records {
		results[i] = memoryFromRecord(&records[i], embeddings[records[i].ID])
	}
	return results, nil
}

func (s *SqliteStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&SqliteMemoryRecord{}).Count(&count).Error; err != nil {
		return 0, errors.Wrapf(errors.ErrPersistence, "failed to count memories: %v", err)
	}
	return int(count), nil
}

func (s *SqliteStore) Close() error {
	return db.CloseDB(s.db)
}

// applyFilter translates every filter condition into SQL, including the tag
// policy, so filtering happens where the indexes are.
func (s *SqliteStore) applyFilter(tx *gorm.DB, f *MemoryFilter) *gorm.DB {
	if f == nil {
		return tx
	}
	if f.Type != "" {
		tx = tx.Where("type = ?", string(f.Type))
	}
	if f.Scope != "" {
		tx = tx.Where("scope = ?", string(f.Scope))
	}
	if f.Platform != "" {
		tx = tx.Where("platform = ?", f.Platform)
	}
	if f.StartDate != nil {
		tx = tx.Where("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		tx = tx.Where("created_at <= ?", *f.EndDate)
	}
	if len(f.Tags) > 0 {
		switch s.tagPolicy {
		case TagMatchAny:
			tx = tx.Where("EXISTS (SELECT 1 FROM json_each(memories.tags) WHERE json_each.value IN ?)", f.Tags)
		default:
			for _, tag := range f.Tags {
				tx = tx.Where("EXISTS (SELECT 1 FROM json_each(memories.tags) WHERE json_each.value = ?)", tag)
			}
		}
	}
	return tx
}

// loadMemories fetches records plus embeddings for the given ids, in
// insertion (rowid) order so downstream tie-breaking stays deterministic.
func (s *SqliteStore) loadMemories(ctx context.Context, ids []string) ([]*Memory, error) {
	var records []SqliteMemoryRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("rowid ASC").Find(&records).Error; err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to fetch memory records: %v", err)
	}

	embeddings, err := s.loadEmbeddings(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*Memory, len(records))
	for i := range records {
		out[i] = memoryFromRecord(&records[i], embeddings[records[i].ID])
	}
	return out, nil
}

func (s *SqliteStore) loadEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	rows, err := s.db.WithContext(ctx).
		Raw("SELECT memory_id, vec_to_json(embedding) FROM memory_vectors WHERE memory_id IN ?", ids).
		Rows()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to fetch embeddings: %v", err)
	}
	defer rows.Close()

	out := make(map[string][]float32, len(ids))
	for rows.Next() {
		var id, encoded string
		if err := rows.Scan(&id, &encoded); err != nil {
			return nil, errors.Wrapf(errors.ErrPersistence, "failed to scan embedding row: %v", err)
		}
		var embedding []float32
		if err := json.Unmarshal([]byte(encoded), &embedding); err != nil {
			return nil, errors.Wrapf(errors.ErrPersistence, "failed to decode embedding for %s: %v", id, err)
		}
		out[id] = embedding
	}
	return out, nil
}

func recordFromMemory(m *Memory) SqliteMemoryRecord {
	return SqliteMemoryRecord{
		ID:         m.ID,
		UserID:     m.UserID,
		Content:    m.Content,
		Type:       string(m.Type),
		Scope:      string(m.Scope),
		Platform:   m.Source.Platform,
		Source:     datatypes.NewJSONType(m.Source),
		Tags:       datatypes.JSONSlice[string](m.Tags),
		Confidence: m.Confidence,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func memoryFromRecord(r *SqliteMemoryRecord, embedding []float32) *Memory {
	return &Memory{
		ID:         r.ID,
		UserID:     r.UserID,
		Content:    r.Content,
		Type:       MemoryType(r.Type),
		Scope:      MemoryScope(r.Scope),
		Source:     r.Source.Data(),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Confidence: r.Confidence,
		Tags:       []string(r.Tags),
		Embedding:  embedding,
	}
}
