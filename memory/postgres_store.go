package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/memorylayer-ai/memengine/errors"
	"github.com/memorylayer-ai/memengine/internal/db"
)

// PostgresStore is the server-grade backend: pgvector holds the embeddings,
// an HNSW index serves coarse nearest-neighbor retrieval, and a GIN index
// accelerates tag containment. As everywhere else, final scores come from the
// shared similarity engine after an over-fetching index scan.
//
// Save policy: insert-enforcing. Re-saving an existing id fails with
// ErrDuplicate.
type PostgresStore struct {
	db        *gorm.DB
	dim       int
	tagPolicy TagMatchPolicy
}

var _ Store = (*PostgresStore)(nil)

// PostgresMemoryRecord mirrors SqliteMemoryRecord. The embedding column is a
// pgvector type gorm cannot express, so migration manages it with raw DDL and
// the struct deliberately leaves it out.
type PostgresMemoryRecord struct {
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

func (PostgresMemoryRecord) TableName() string {
	return "memories"
}

func NewPostgresStore(databaseUrl string, dim int, tagPolicy TagMatchPolicy) (*PostgresStore, error) {
	gormDB, err := db.OpenPostgres(databaseUrl)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to open postgres database: %v", err)
	}

	store := &PostgresStore{
		db:        gormDB,
		dim:       dim,
		tagPolicy: tagPolicy,
	}

	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) migrate() error {
	if err := s.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to create vector extension: %v", err)
	}
	if err := s.db.AutoMigrate(&PostgresMemoryRecord{}); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to migrate memories table: %v", err)
	}

	ddl := []string{
		fmt.Sprintf("ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding vector(%d)", s.dim),
		"CREATE INDEX IF NOT EXISTS idx_memories_embedding ON memories USING hnsw (embedding vector_cosine_ops)",
		"CREATE INDEX IF NOT EXISTS idx_memories_tags ON memories USING gin (tags jsonb_path_ops)",
	}
	for _, stmt := range ddl {
		if err := s.db.Exec(stmt).Error; err != nil {
			return errors.Wrapf(errors.ErrPersistence, "failed to run migration %q: %v", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, m *Memory) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if err := checkDimension(s.dim, m.Embedding); err != nil {
		return "", err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The primary key enforces uniqueness; a plain insert keeps duplicate
		// detection atomic under concurrent saves.
		record := postgresRecordFromMemory(m)
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.Wrapf(errors.ErrDuplicate, "memory %s already exists", m.ID)
			}
			return errors.Wrapf(errors.ErrPersistence, "failed to insert memory record: %v", err)
		}

		if err := tx.Exec(
			"UPDATE memories SET embedding = ?::vector WHERE id = ?",
			vectorLiteral(m.Embedding), m.ID,
		).Error; err != nil {
			return errors.Wrapf(errors.ErrPersistence, "failed to store embedding: %v", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the row for the read-modify-write so concurrent patches
		// serialize instead of overwriting each other.
		var record PostgresMemoryRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, "id = ?", id).Error; err != nil {
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

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&PostgresMemoryRecord{}, "id = ?", id)
	if res.Error != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to delete memory record: %v", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "memory %s", id)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Memory, error) {
	var record PostgresMemoryRecord
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
	return memoryFromPostgresRecord(&record, embeddings[id]), nil
}

func (s *PostgresStore) SearchByEmbedding(ctx context.Context, query []float32, limit int, filter *MemoryFilter) ([]ScoredMemory, error) {
	if err := checkDimension(s.dim, query); err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, errors.Wrapf(errors.ErrValidation, "query embedding is empty")
	}

	tx := s.db.WithContext(ctx)

	k := limit * 2
	if limit <= 0 {
		var total int64
		if err := tx.Model(&PostgresMemoryRecord{}).Count(&total).Error; err != nil {
			return nil, errors.Wrapf(errors.ErrPersistence, "failed to count memories: %v", err)
		}
		k = int(total)
	}
	if k == 0 {
		return []ScoredMemory{}, nil
	}

	conds, args := s.filterConditions(filter)
	searchSQL := "SELECT id FROM memories WHERE embedding IS NOT NULL"
	for _, cond := range conds {
		searchSQL += " AND " + cond
	}
	searchSQL += " ORDER BY embedding <=> ?::vector, created_at, id LIMIT ?"
	args = append(args, vectorLiteral(query), k)

	var ids []string
	if err := tx.Raw(searchSQL, args...).Scan(&ids).Error; err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to execute vector search: %v", err)
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

func (s *PostgresStore) List(ctx context.Context, limit, offset int, filter *MemoryFilter) ([]*Memory, error) {
	tx := s.db.WithContext(ctx).Model(&PostgresMemoryRecord{})
	if conds, args := s.filterConditions(filter); len(conds) > 0 {
		tx = tx.Where(strings.Join(conds, " AND "), args...)
	}
	tx = tx.Order("updated_at DESC, created_at ASC, id ASC")
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var records []PostgresMemoryRecord
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
		results[i] = memoryFromPostgresRecord(&records[i], embeddings[records[i].ID])
	}
	return results, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&PostgresMemoryRecord{}).Count(&count).Error; err != nil {
		return 0, errors.Wrapf(errors.ErrPersistence, "failed to count memories: %v", err)
	}
	return int(count), nil
}

func (s *PostgresStore) Close() error {
	return db.CloseDB(s.db)
}

// filterConditions renders the filter as SQL fragments, one bind value per
// fragment. Tag containment rides the GIN index via @>.
func (s *PostgresStore) filterConditions(f *MemoryFilter) ([]string, []interface{}) {
	if f == nil {
		return nil, nil
	}
	var conds []string
	var args []interface{}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Scope != "" {
		conds = append(conds, "scope = ?")
		args = append(args, string(f.Scope))
	}
	if f.Platform != "" {
		conds = append(conds, "platform = ?")
		args = append(args, f.Platform)
	}
	if f.StartDate != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *f.EndDate)
	}
	if len(f.Tags) > 0 {
		switch s.tagPolicy {
		case TagMatchAny:
			parts := make([]string, len(f.Tags))
			for i, tag := range f.Tags {
				parts[i] = "tags @> ?::jsonb"
				args = append(args, tagLiteral(tag))
			}
			conds = append(conds, "("+strings.Join(parts, " OR ")+")")
		default:
			for _, tag := range f.Tags {
				conds = append(conds, "tags @> ?::jsonb")
				args = append(args, tagLiteral(tag))
			}
		}
	}
	return conds, args
}

func (s *PostgresStore) loadMemories(ctx context.Context, ids []string) ([]*Memory, error) {
	var records []PostgresMemoryRecord
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to fetch memory records: %v", err)
	}

	embeddings, err := s.loadEmbeddings(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*Memory, len(records))
	for i := range records {
		out[i] = memoryFromPostgresRecord(&records[i], embeddings[records[i].ID])
	}
	return out, nil
}

func (s *PostgresStore) loadEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	rows, err := s.db.WithContext(ctx).
		Raw("SELECT id, embedding::text FROM memories WHERE id IN ? AND embedding IS NOT NULL", ids).
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
		embedding, err := parseVectorLiteral(encoded)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrPersistence, "failed to decode embedding for %s: %v", id, err)
		}
		out[id] = embedding
	}
	return out, nil
}

// vectorLiteral renders an embedding in pgvector's input format, "[1,2,3]".
func vectorLiteral(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func parseVectorLiteral(encoded string) ([]float32, error) {
	encoded = strings.TrimSpace(encoded)
	if !strings.HasPrefix(encoded, "[") || !strings.HasSuffix(encoded, "]") {
		return nil, errors.Errorf("malformed vector literal %q", encoded)
	}
	encoded = strings.Trim(encoded, "[]")
	if encoded == "" {
		return []float32{}, nil
	}

	parts := strings.Split(encoded, ",")
	out := make([]float32, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func tagLiteral(tag string) string {
	encoded, _ := json.Marshal([]string{tag})
	return string(encoded)
}

func postgresRecordFromMemory(m *Memory) PostgresMemoryRecord {
	return PostgresMemoryRecord{
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

func memoryFromPostgresRecord(r *PostgresMemoryRecord, embedding []float32) *Memory {
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
