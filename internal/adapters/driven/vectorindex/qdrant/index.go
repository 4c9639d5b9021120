// Package qdrant provides a VectorIndex backed by Qdrant over gRPC.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default connection values.
const (
	DefaultHost = "localhost"
	DefaultPort = 6334
)

// PayloadChunkID holds the caller's id when it is not a UUID.
const PayloadChunkID = "chunk_id"

// IndexedFields get keyword payload indexes on every collection.
var IndexedFields = []string{"document_id", "document_type", "metadata.access_level"}

// Config holds connection settings.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// client is the subset of *qdrant.Client the index uses.
type client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	DeleteCollection(ctx context.Context, collectionName string) error
	Close() error
}

// Index is a Qdrant-backed vector index.
type Index struct {
	client client
}

// New connects to Qdrant.
func New(cfg Config) (*Index, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, unavailable("connect", err)
	}
	return &Index{client: c}, nil
}

func newWithClient(c client) *Index {
	return &Index{client: c}
}

// EnsureCollection creates the collection and its payload indexes if missing.
func (x *Index) EnsureCollection(ctx context.Context, name string, vectorSize int, metric domain.DistanceMetric) error {
	if name == "" {
		return domain.NewValidationError("collection", "collection name is required")
	}
	if vectorSize <= 0 {
		return domain.NewValidationError("vector_size", "vector size must be positive")
	}
	if metric != domain.DistanceCosine {
		return domain.NewValidationError("distance", fmt.Sprintf("unsupported distance %q", metric))
	}

	exists, err := x.client.CollectionExists(ctx, name)
	if err != nil {
		return unavailable("collection exists", err)
	}
	if exists {
		return nil
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return unavailable("create collection", err)
	}

	for _, field := range IndexedFields {
		_, err := x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return unavailable("create field index "+field, err)
		}
	}
	logger.Info("qdrant: created collection %s (size %d)", name, vectorSize)
	return nil
}

// Upsert writes one point.
func (x *Index) Upsert(ctx context.Context, collection string, point driven.VectorPoint) (string, error) {
	ids, err := x.UpsertBatch(ctx, collection, []driven.VectorPoint{point})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// UpsertBatch writes points in one request and waits for them to be applied.
func (x *Index) UpsertBatch(ctx context.Context, collection string, points []driven.VectorPoint) ([]string, error) {
	if len(points) == 0 {
		return nil, nil
	}

	ids := make([]string, len(points))
	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		ids[i] = p.ID

		payload, err := toPayload(p.ID, p.Payload)
		if err != nil {
			return nil, err
		}
		structs[i] = &qdrant.PointStruct{
			Id:      pointID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return nil, classify("upsert", collection, err)
	}
	return ids, nil
}

// Search runs a nearest-neighbour query with payload filters.
func (x *Index) Search(ctx context.Context, collection string, query []float32, limit int,
	scoreThreshold float64, filters []domain.SearchFilter) ([]driven.VectorHit, error) {
	filter, err := buildFilter(filters)
	if err != nil {
		return nil, err
	}

	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query...),
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(float32(scoreThreshold)),
	}
	if limit > 0 {
		req.Limit = qdrant.PtrOf(uint64(limit))
	}

	points, err := x.client.Query(ctx, req)
	if err != nil {
		return nil, classify("query", collection, err)
	}

	hits := make([]driven.VectorHit, 0, len(points))
	for _, p := range points {
		score := float64(p.GetScore())
		// float32 rounding can put a hit a hair under the threshold.
		if score < scoreThreshold && scoreThreshold-score > 1e-6 {
			continue
		}
		payload := fromPayload(p.GetPayload())
		id, _ := payload[PayloadChunkID].(string)
		if id == "" {
			id = idString(p.GetId())
		}
		hits = append(hits, driven.VectorHit{ID: id, Score: score, Payload: payload})
	}
	return hits, nil
}

// DeleteByIDs removes points and reports how many existed beforehand.
func (x *Index) DeleteByIDs(ctx context.Context, collection string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	pids := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}

	n, err := x.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewHasID(pids...)}},
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, classify("count", collection, err)
	}

	_, err = x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pids...),
	})
	if err != nil {
		return 0, classify("delete", collection, err)
	}
	return int(n), nil
}

// DeleteByDocument removes every point of a document.
func (x *Index) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		}),
	})
	if err != nil {
		return classify("delete by document", collection, err)
	}
	return nil
}

// DeleteCollection drops a collection.
func (x *Index) DeleteCollection(ctx context.Context, collection string) error {
	if err := x.client.DeleteCollection(ctx, collection); err != nil {
		return classify("delete collection", collection, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (x *Index) Close() error {
	return x.client.Close()
}

// pointID maps an id to a Qdrant point id. Qdrant only accepts UUIDs and
// integers, so other strings are mapped to a name-based UUID.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewID(id)
	}
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func idString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// toPayload normalises the payload through JSON so every value is a type
// the client can encode, and records the original id.
func toPayload(id string, payload map[string]any) (map[string]*qdrant.Value, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewValidationError("payload", err.Error())
	}
	normalised := map[string]any{}
	if err := json.Unmarshal(raw, &normalised); err != nil {
		return nil, domain.NewValidationError("payload", err.Error())
	}
	if normalised == nil {
		normalised = map[string]any{}
	}
	normalised[PayloadChunkID] = id

	out, err := qdrant.TryValueMap(normalised)
	if err != nil {
		return nil, domain.NewValidationError("payload", err.Error())
	}
	return out, nil
}

func fromPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = fromValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return fromPayload(kind.StructValue.GetFields())
	default:
		return nil
	}
}

// buildFilter translates domain filters into a Qdrant filter.
// Negated operators go into MustNot, which also matches points missing the field.
func buildFilter(filters []domain.SearchFilter) (*qdrant.Filter, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	f := &qdrant.Filter{}
	for _, sf := range filters {
		if err := sf.Validate(); err != nil {
			return nil, err
		}
		cond, err := matchCondition(sf.Field, sf.Values())
		if err != nil {
			return nil, err
		}
		if sf.Operator.IsNegated() {
			f.MustNot = append(f.MustNot, cond)
		} else {
			f.Must = append(f.Must, cond)
		}
	}
	return f, nil
}

// matchCondition builds a keyword, integer or boolean match. Lists must be homogeneous.
func matchCondition(field string, values []any) (*qdrant.Condition, error) {
	var strs []string
	var ints []int64
	var bools []bool
	for _, v := range values {
		switch t := v.(type) {
		case string:
			strs = append(strs, t)
		case bool:
			bools = append(bools, t)
		case int:
			ints = append(ints, int64(t))
		case int64:
			ints = append(ints, t)
		case float64:
			if t != math.Trunc(t) {
				return nil, domain.NewValidationError(field, "fractional values cannot be matched exactly")
			}
			ints = append(ints, int64(t))
		default:
			return nil, domain.NewValidationError(field, fmt.Sprintf("unsupported filter value type %T", v))
		}
	}

	kinds := 0
	for _, n := range []int{len(strs), len(ints), len(bools)} {
		if n > 0 {
			kinds++
		}
	}
	if kinds != 1 {
		return nil, domain.NewValidationError(field, "filter values must share one type")
	}

	switch {
	case len(strs) == 1:
		return qdrant.NewMatch(field, strs[0]), nil
	case len(strs) > 1:
		return qdrant.NewMatchKeywords(field, strs...), nil
	case len(ints) == 1:
		return qdrant.NewMatchInt(field, ints[0]), nil
	case len(ints) > 1:
		return qdrant.NewMatchInts(field, ints...), nil
	case len(bools) == 1:
		return qdrant.NewMatchBool(field, bools[0]), nil
	default:
		return nil, domain.NewValidationError(field, "boolean filters take a single value")
	}
}

func unavailable(op string, err error) error {
	return domain.NewBackendError(domain.ErrVectorIndexUnavailable, "qdrant "+op, err)
}

// classify maps a missing collection to ErrNotFound and everything else to unavailability.
func classify(op, collection string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
	}
	return unavailable(op, err)
}
