// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package qdrant implements memory.VectorStore over the Qdrant gRPC API.
package qdrant

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory"
)

// PointIDKey is the payload key holding the caller's id when it is not a
// UUID and had to be mapped to one.
const PointIDKey = "point_id"

// pointNamespace seeds the deterministic UUIDs derived from string ids.
var pointNamespace = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")

// Store implements memory.VectorStore.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	service     pb.QdrantClient
}

// New connects to a Qdrant gRPC endpoint, e.g. "localhost:6334".
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "connect to qdrant", err).WithContext("addr", addr)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		service:     pb.NewQdrantClient(conn),
	}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping calls the Qdrant health check endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.service.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return classify(err, "qdrant health check")
	}
	return nil
}

// CreateCollection creates a cosine collection unless it already exists.
func (s *Store) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	exists, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return classify(err, "check qdrant collection")
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return classify(err, "create qdrant collection")
	}
	return nil
}

// Upsert writes points and waits for the write to be applied.
func (s *Store) Upsert(ctx context.Context, collection string, points []memory.Point) error {
	qPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		qp, err := toPointStruct(p)
		if err != nil {
			return err
		}
		qPoints[i] = qp
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         qPoints,
	})
	if err != nil {
		return classify(err, "upsert qdrant points")
	}
	return nil
}

// Search returns the nearest points with their payloads.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]memory.SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    pb.NewWithPayload(true),
	}
	if scoreThreshold > 0 {
		req.ScoreThreshold = &scoreThreshold
	}
	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, classify(err, "search qdrant points")
	}

	results := make([]memory.SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := fromValueMap(r.GetPayload())
		id := pointID(r.GetId(), payload)
		results[i] = memory.SearchResult{
			ID:    id,
			Score: r.GetScore(),
			Point: memory.Point{ID: id, Payload: payload},
		}
	}
	return results, nil
}

func toPointStruct(p memory.Point) (*pb.PointStruct, error) {
	payload := make(map[string]any, len(p.Payload)+1)
	for k, v := range p.Payload {
		payload[k] = v
	}
	id := toPointID(p.ID)
	if id.GetUuid() != p.ID && id.GetNum() == 0 {
		payload[PointIDKey] = p.ID
	}
	values, err := toValueMap(payload)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "convert point payload", err).WithContext("point", p.ID)
	}
	return &pb.PointStruct{
		Id:      id,
		Vectors: pb.NewVectorsDense(p.Vector),
		Payload: values,
	}, nil
}

// toPointID keeps UUIDs and unsigned integers as native ids and maps any
// other string to a stable UUID.
func toPointID(id string) *pb.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return pb.NewIDUUID(id)
	}
	if n, err := strconv.ParseUint(id, 10, 64); err == nil && n > 0 {
		return pb.NewIDNum(n)
	}
	return pb.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(id)).String())
}

func pointID(id *pb.PointId, payload map[string]any) string {
	if orig, ok := payload[PointIDKey].(string); ok {
		delete(payload, PointIDKey)
		return orig
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// toValueMap converts a payload, normalizing typed slices and maps through
// JSON when the direct conversion rejects them.
func toValueMap(payload map[string]any) (map[string]*pb.Value, error) {
	values, err := pb.TryValueMap(payload)
	if err == nil {
		return values, nil
	}
	raw, mErr := json.Marshal(payload)
	if mErr != nil {
		return nil, err
	}
	var normalized map[string]any
	if uErr := json.Unmarshal(raw, &normalized); uErr != nil {
		return nil, err
	}
	return pb.TryValueMap(normalized)
}

func fromValueMap(values map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_StructValue:
		return fromValueMap(kind.StructValue.GetFields())
	case *pb.Value_ListValue:
		list := make([]any, len(kind.ListValue.GetValues()))
		for i, item := range kind.ListValue.GetValues() {
			list[i] = fromValue(item)
		}
		return list
	default:
		return nil
	}
}

func classify(err error, msg string) error {
	st, ok := status.FromError(err)
	if !ok {
		return kerrors.Classify(err, msg)
	}
	var code kerrors.ErrorCode
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		code = kerrors.CodeTransient
	case codes.DeadlineExceeded, codes.Canceled:
		code = kerrors.CodeTimeout
	case codes.NotFound:
		code = kerrors.CodeNotFound
	case codes.InvalidArgument, codes.FailedPrecondition:
		code = kerrors.CodeInvalidInput
	case codes.Unauthenticated, codes.PermissionDenied:
		code = kerrors.CodeConfiguration
	default:
		code = kerrors.CodeMemoryError
	}
	return kerrors.New(code, msg, err).WithContext("grpc_code", st.Code().String())
}

var _ memory.VectorStore = (*Store)(nil)
