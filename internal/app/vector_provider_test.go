package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/repos"
	"github.com/fnaplatform/fna-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestResolveVectorIndexProviders(t *testing.T) {
	log := testLogger(t)

	idx, err := resolveVectorIndex(log, Config{VectorProvider: "linear"}, 8)
	if err != nil {
		t.Fatalf("linear: %v", err)
	}
	if idx == nil {
		t.Fatalf("linear: want index got=nil")
	}

	idx, err = resolveVectorIndex(log, Config{VectorProvider: "IVF", IVFLists: 4, IVFProbes: 2}, 8)
	if err != nil {
		t.Fatalf("ivf: %v", err)
	}
	if idx == nil {
		t.Fatalf("ivf: want index got=nil")
	}

	// Unset provider falls back to the exact scan.
	if _, err := resolveVectorIndex(log, Config{}, 8); err != nil {
		t.Fatalf("default: %v", err)
	}

	if _, err := resolveVectorIndex(log, Config{VectorProvider: "pinecone"}, 8); err == nil {
		t.Fatalf("unknown provider: want error got=nil")
	}
}

func TestWarmIndexReplaysPersistedEmbeddings(t *testing.T) {
	log := testLogger(t)
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&types.Report{}, &types.Analysis{}, &types.Embedding{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	entityID := uuid.New()
	analysisID := uuid.New()
	vec, err := json.Marshal([]float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("marshal vector: %v", err)
	}
	rows := []*types.Embedding{
		{ID: uuid.New(), AnalysisID: analysisID, EntityID: entityID, SectionType: "mda", ChunkIndex: 0, Vector: vec, CreatedAt: time.Now()},
		{ID: uuid.New(), AnalysisID: analysisID, EntityID: entityID, SectionType: "mda", ChunkIndex: 1, Vector: vec, CreatedAt: time.Now()},
		// Malformed vector rows are skipped during warm-up.
		{ID: uuid.New(), AnalysisID: analysisID, EntityID: entityID, SectionType: "mda", ChunkIndex: 2, Vector: []byte(`"bad"`), CreatedAt: time.Now()},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed embedding: %v", err)
		}
	}

	idx, err := resolveVectorIndex(log, Config{VectorProvider: "linear"}, 4)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	embeddingRepo := repos.NewEmbeddingRepo(db, log)
	if err := warmIndex(context.Background(), log, embeddingRepo, idx); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("warmed records: want=2 got=%d", idx.Len())
	}

	matches, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5, &entityID)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches: want=2 got=%d", len(matches))
	}
}
