package index

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/seanblong/docqa/pkg/models"
)

// VectorIndex is a durable similarity-search store of embedded chunks.
type VectorIndex interface {
	// Upsert inserts or replaces records by ID. Records are durable once it returns.
	Upsert(ctx context.Context, records []models.VectorRecord) error
	// Search returns up to k records by descending similarity. An empty
	// index yields an empty result, not an error.
	Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error)
	// HasSource reports whether any record was written for the source hash.
	HasSource(ctx context.Context, sourceHash string) (bool, error)
	// DeleteSource removes the records of path whose source hash is not
	// keepHash, returning how many were removed. It drops the chunks of a
	// replaced version of a file.
	DeleteSource(ctx context.Context, path, keepHash string) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// recordNamespace scopes record IDs to this application.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/seanblong/docqa/vector-record"))

// RecordID derives the stable ID of chunk chunkIndex of the source with the
// given content hash.
func RecordID(sourceHash string, chunkIndex int) string {
	return uuid.NewSHA1(recordNamespace, []byte(sourceHash+":"+strconv.Itoa(chunkIndex))).String()
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float32) float64 {
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

// Rank sorts results by descending score, breaking ties by ID so the order
// is stable for fixed data, and truncates to k.
func Rank(results []models.SearchResult, k int) []models.SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}
