package memory_test

import (
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/memorylayer-ai/memengine/errors"
	"github.com/memorylayer-ai/memengine/internal/mytesting"
	"github.com/memorylayer-ai/memengine/memory"
)

// Postgres tests need a live database with the pgvector extension; they are
// skipped unless DATABASE_URL is set, either in the environment or in the
// project .env loaded by the suite.
type PostgresStoreTestSuite struct {
	mytesting.Suite

	store *memory.PostgresStore
}

func (s *PostgresStoreTestSuite) SetupTest() {
	s.Suite.SetupTest()

	databaseUrl := os.Getenv("DATABASE_URL")
	if databaseUrl == "" {
		s.T().Skip("DATABASE_URL is not set")
	}

	store, err := memory.NewPostgresStore(databaseUrl, 3, memory.TagMatchAll)
	s.Require().NoError(err)
	s.store = store
}

func (s *PostgresStoreTestSuite) TearDownTest() {
	if s.store != nil {
		s.Require().NoError(s.store.Close())
		s.store = nil
	}
	s.Suite.TearDownTest()
}

func (s *PostgresStoreTestSuite) TestRoundTrip() {
	id := uuid.NewString()
	m := testMemory(id, []float32{1, 0, 0})
	saved, err := s.store.Save(s.Context, m)
	s.Require().NoError(err)
	s.Equal(id, saved)
	defer s.store.Delete(s.Context, id)

	got, err := s.store.Get(s.Context, id)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(m.Content, got.Content)
	s.Equal(m.Tags, got.Tags)
	s.Require().Len(got.Embedding, 3)
	s.InDelta(1.0, float64(got.Embedding[0]), 1e-6)
}

func (s *PostgresStoreTestSuite) TestSearch() {
	closeId := uuid.NewString()
	farId := uuid.NewString()
	_, err := s.store.Save(s.Context, testMemory(closeId, []float32{0.9, 0.1, 0}))
	s.Require().NoError(err)
	defer s.store.Delete(s.Context, closeId)
	_, err = s.store.Save(s.Context, testMemory(farId, []float32{0, 1, 0}))
	s.Require().NoError(err)
	defer s.store.Delete(s.Context, farId)

	results, err := s.store.SearchByEmbedding(s.Context, []float32{1, 0, 0}, 2, nil)
	s.Require().NoError(err)
	s.Require().NotEmpty(results)
	s.Equal(closeId, results[0].Memory.ID)
	s.Greater(results[0].Score, 0.9)
}

func (s *PostgresStoreTestSuite) TestDuplicateSave() {
	id := uuid.NewString()
	_, err := s.store.Save(s.Context, testMemory(id, []float32{1, 0, 0}))
	s.Require().NoError(err)
	defer s.store.Delete(s.Context, id)

	_, err = s.store.Save(s.Context, testMemory(id, []float32{0, 1, 0}))
	s.Require().Error(err)
	s.ErrorIs(err, errors.ErrDuplicate)
}

func (s *PostgresStoreTestSuite) TestConcurrentUpdatesAllLand() {
	id := uuid.NewString()
	_, err := s.store.Save(s.Context, testMemory(id, []float32{1, 0, 0}))
	s.Require().NoError(err)
	defer s.store.Delete(s.Context, id)

	// Concurrent writers patching disjoint fields must all land; without a
	// row lock the second full-row write reverts the first patch.
	newConfidence := 0.95
	newContent := "rewritten"
	patches := []memory.Patch{
		{Confidence: &newConfidence},
		{Content: &newContent},
		{Tags: []string{"work", "settings"}},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(patches))
	for i, patch := range patches {
		wg.Add(1)
		go func(i int, patch memory.Patch) {
			defer wg.Done()
			errs[i] = s.store.Update(s.Context, id, patch)
		}(i, patch)
	}
	wg.Wait()
	for _, err := range errs {
		s.Require().NoError(err)
	}

	got, err := s.store.Get(s.Context, id)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(0.95, got.Confidence)
	s.Equal("rewritten", got.Content)
	s.Equal([]string{"work", "settings"}, got.Tags)
}

func TestPostgresStore(t *testing.T) {
	suite.Run(t, new(PostgresStoreTestSuite))
}
