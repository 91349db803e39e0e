// Package qdrant uploads embedding vectors to a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/profile-harvester/internal/embedding"
)

// PayloadIDKey is the payload field holding the original vector ID.
const PayloadIDKey = "id"

// Store is an embedding.VectorSink backed by a Qdrant collection.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

var _ embedding.VectorSink = (*Store)(nil)

// New connects to Qdrant at the given gRPC address.
func New(addr, collection string) (*Store, error) {
	if collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection)
	s.conn = conn
	return s, nil
}

// NewWithClients builds a Store over existing gRPC clients.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string) *Store {
	return &Store{points: points, collections: collections, collection: collection}
}

// Close closes the underlying connection, if the store owns one.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close qdrant connection: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance if it does not
// exist yet.
func (s *Store) EnsureCollection(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid vector size %d", dims)
	}
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert implements embedding.VectorSink. Point IDs are derived from vector
// IDs so repeated uploads replace earlier points.
func (s *Store) Upsert(ctx context.Context, vectors []embedding.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		if v.ID == "" {
			return errors.New("vector id is required")
		}
		meta := make(map[string]any, len(v.Metadata)+1)
		for k, val := range v.Metadata {
			meta[k] = val
		}
		meta[PayloadIDKey] = v.ID
		payload, err := pb.TryValueMap(meta)
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", v.ID, err)
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(v.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: v.Values},
				},
			},
			Payload: payload,
		})
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// PointID maps a vector ID to a stable Qdrant point UUID.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}
