// Package semantic is the sole owner of all Qdrant operations: collection
// lifecycle, chunked point upserts, and k-NN search.
package semantic

import (
	"context"
	"fmt"
	"log/slog"

	pb "github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/docsmith-ai/docsmith/engine/domain"
	"github.com/docsmith-ai/docsmith/pkg/fn"
	"github.com/docsmith-ai/docsmith/pkg/resilience"
)

// upsertChunkSize is the maximum number of points per upsert request.
// Larger batches are split and written concurrently.
const upsertChunkSize = 30

// Store is a Qdrant client shared across projects; the collection name is a
// per-call parameter.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	breaker     *resilience.Breaker
	logger      *slog.Logger
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerOpts),
		logger:      logger,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureCollection creates the collection with cosine distance and the
// engine's embedding dimension. It is idempotent: an existing collection
// with a matching schema is a success, a mismatched schema is an error.
func (s *Store) EnsureCollection(ctx context.Context, name string) error {
	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	switch {
	case err == nil:
		params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
		if params.GetSize() != uint64(domain.EmbeddingDim) || params.GetDistance() != pb.Distance_Cosine {
			return fmt.Errorf("semantic: collection %s exists with size=%d distance=%s, want size=%d distance=Cosine",
				name, params.GetSize(), params.GetDistance(), domain.EmbeddingDim)
		}
		return nil
	case status.Code(err) != codes.NotFound:
		return fmt.Errorf("semantic: get collection %s: %w", name, err)
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(domain.EmbeddingDim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", name, err)
	}
	return nil
}

// DeleteCollection deletes the collection.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", name, err)
	}
	return nil
}

// Upsert stores points into the collection in chunks of upsertChunkSize,
// written concurrently. Chunks may commit out of order; point IDs make
// retries idempotent, and already-written chunks survive partial failures.
func (s *Store) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, chunk := range fn.Chunk(points, upsertChunkSize) {
		g.Go(func() error {
			return s.breaker.Call(ctx, func(ctx context.Context) error {
				return s.upsertChunk(ctx, name, chunk)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}

	s.logger.Debug("semantic: upserted points", "collection", name, "count", len(points))
	return nil
}

func (s *Store) upsertChunk(ctx context.Context, name string, chunk []domain.Point) error {
	structs := fn.Map(chunk, func(p domain.Point) *pb.PointStruct {
		return &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: payloadToValues(p.Payload),
		}
	})

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         structs,
	})
	return err
}

// Search performs k-NN cosine similarity search, returning the top k results
// with payloads, descending by score.
func (s *Store) Search(ctx context.Context, name string, vector []float32, k int) ([]domain.SearchResult, error) {
	var resp *pb.SearchResponse
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.points.Search(ctx, &pb.SearchPoints{
			CollectionName: name,
			Vector:         vector,
			Limit:          uint64(k),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %w", name, err)
	}

	results := make([]domain.SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		results[i] = domain.SearchResult{
			ID:      r.GetId().GetUuid(),
			Score:   r.GetScore(),
			Payload: payloadFromValues(r.GetPayload()),
		}
	}
	return results, nil
}
