// Package vectordb implements the Vector Index: ensure_collection/add/search/
// delete/delete_all/count/scroll backed by Qdrant's native gRPC client, never
// its HTTP REST layer.
package vectordb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dev.vasic.ultramemory/internal/config"
	"dev.vasic.ultramemory/internal/model"
)

// Result is one ranked hit from Search or one row from Scroll.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Metadata model.Metadata
}

// Index is the Vector Index contract consumed by the Store Coordinator.
type Index interface {
	EnsureCollection(ctx context.Context, dim int) error
	Add(ctx context.Context, vector []float32, content string, meta model.Metadata) (string, error)
	Search(ctx context.Context, vector []float32, limit int, minScore float32) ([]Result, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
	Scroll(ctx context.Context, limit int) ([]Result, error)
	Close() error
}

// QdrantIndex is the Qdrant-backed Vector Index implementation. The collection
// name is fixed per process, per §4.2.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	distance   qdrant.Distance
	log        *logrus.Entry
}

// NewQdrantIndex dials Qdrant over gRPC (never the HTTP/actix-web layer, which
// caps payloads at 256kB and would reject large repository documents).
func NewQdrantIndex(cfg config.VectorStoreConfig, log *logrus.Logger) (*QdrantIndex, error) {
	if log == nil {
		log = logrus.New()
	}

	qcfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		distance:   distanceFromString(cfg.DistanceMetric),
		log:        log.WithField("component", "vectordb"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	return idx, nil
}

func distanceFromString(s string) qdrant.Distance {
	switch s {
	case "euclid", "euclidean":
		return qdrant.Distance_Euclid
	case "dot":
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

// EnsureCollection creates the fixed collection if absent, sized for dim.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dim int) error {
	_, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
		return fmt.Errorf("checking collection %s: %w", q.collection, err)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: q.distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", q.collection, err)
	}
	q.log.WithField("collection", q.collection).WithField("dim", dim).Info("vector collection created")
	return nil
}

// Add upserts one point with a server-generated UUID, per §4.2.
func (q *QdrantIndex) Add(ctx context.Context, vector []float32, content string, meta model.Metadata) (string, error) {
	id := uuid.New().String()

	payload, err := encodePayload(content, meta)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(id),
				Vectors: qdrant.NewVectors(vector...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("upserting point to %s: %w", q.collection, err)
	}
	return id, nil
}

// Search runs a cosine (or configured-metric) similarity query, dropping any
// hit scoring below minScore. minScore <= 0 disables the floor.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, limit int, minScore float32) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", q.collection, err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		if minScore > 0 && p.Score < minScore {
			continue
		}
		results = append(results, resultFromPayload(extractPointID(p.Id), p.Score, p.Payload))
	}
	return results, nil
}

// Delete removes a single point by ID.
func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrant.NewIDUUID(id)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting point %s from %s: %w", id, q.collection, err)
	}
	return nil
}

// DeleteAll wipes the collection by recreating it, returning the prior count.
func (q *QdrantIndex) DeleteAll(ctx context.Context) (int, error) {
	count, err := q.Count(ctx)
	if err != nil {
		return 0, err
	}

	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("reading collection info for %s: %w", q.collection, err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size == 0 {
		size = 1536
	}

	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return 0, fmt.Errorf("deleting collection %s: %w", q.collection, err)
	}
	if err := q.EnsureCollection(ctx, int(size)); err != nil {
		return 0, fmt.Errorf("recreating collection %s: %w", q.collection, err)
	}
	return count, nil
}

// Count returns the point count reported by the collection's info, which
// Qdrant maintains as an approximate figure.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", q.collection, err)
	}
	return int(info.GetPointsCount()), nil
}

// Scroll returns up to limit points in storage order, without scoring.
func (q *QdrantIndex) Scroll(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 100
	}
	points, _, err := q.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling %s: %w", q.collection, err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		results = append(results, resultFromPayload(extractPointID(p.Id), 0, p.Payload))
	}
	return results, nil
}

// Close releases the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

const payloadContentKey = "content"
const payloadMetadataKey = "metadata_json"

// encodePayload stores content as a plain string field (so Qdrant's own
// full-text filters could index it) and the full Metadata struct as a single
// JSON-encoded field, avoiding a brittle field-by-field qdrant.Value mapping
// for the dozens of optional Metadata columns.
func encodePayload(content string, meta model.Metadata) (map[string]*qdrant.Value, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return map[string]*qdrant.Value{
		payloadContentKey:  {Kind: &qdrant.Value_StringValue{StringValue: content}},
		payloadMetadataKey: {Kind: &qdrant.Value_StringValue{StringValue: string(metaJSON)}},
	}, nil
}

func resultFromPayload(id string, score float32, payload map[string]*qdrant.Value) Result {
	r := Result{ID: id, Score: score}
	if v, ok := payload[payloadContentKey]; ok {
		r.Content = v.GetStringValue()
	}
	if v, ok := payload[payloadMetadataKey]; ok {
		_ = json.Unmarshal([]byte(v.GetStringValue()), &r.Metadata)
	}
	return r
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

var _ Index = (*QdrantIndex)(nil)
