// Package qdrant implements the vector index adapter on a Qdrant
// collection per repository with two named vectors (summary, content).
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/linkhive/linkhive/internal/index"
)

const (
	summaryField = "summary"
	contentField = "content"
	// linkField is the payload key indexed for filterable deletion.
	linkField = "parent_link"

	// scrollPageSize bounds one page of the delete-by-link scan; the scan
	// loops pagination cursors until exhaustion.
	scrollPageSize = 1000
)

// Adapter talks to Qdrant over gRPC.
type Adapter struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// New connects to Qdrant.
func New(host string, port int) (*Adapter, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Adapter{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// Close releases the gRPC connection.
func (a *Adapter) Close() error {
	return a.conn.Close()
}

func (a *Adapter) collectionExists(ctx context.Context, repo string) (bool, error) {
	resp, err := a.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("listing collections: %w", err)
	}
	for _, c := range resp.GetCollections() {
		if c.GetName() == repo {
			return true, nil
		}
	}
	return false, nil
}

// EnsureCollection creates the repo's collection and its parent_link
// payload index if absent. Concurrent creation races resolve to success.
func (a *Adapter) EnsureCollection(ctx context.Context, repo string, summaryDim, contentDim int) error {
	exists, err := a.collectionExists(ctx, repo)
	if err != nil {
		return err
	}
	if !exists {
		_, err = a.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: repo,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_ParamsMap{
					ParamsMap: &pb.VectorParamsMap{
						Map: map[string]*pb.VectorParams{
							summaryField: {Size: uint64(summaryDim), Distance: pb.Distance_Cosine},
							contentField: {Size: uint64(contentDim), Distance: pb.Distance_Cosine},
						},
					},
				},
			},
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("creating collection %s: %w", repo, err)
		}
	}

	fieldType := pb.FieldType_FieldTypeKeyword
	_, err = a.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: repo,
		FieldName:      linkField,
		FieldType:      &fieldType,
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating %s payload index: %w", linkField, err)
	}
	return nil
}

// UpsertPoints writes one point per chunk, both named vectors set.
func (a *Adapter) UpsertPoints(ctx context.Context, repo string, points []index.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	pts := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pts[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vectors{
				Vectors: &pb.NamedVectors{Vectors: map[string]*pb.Vector{
					summaryField: {Data: p.Summary},
					contentField: {Data: p.Content},
				}},
			}},
			Payload: unitToPayload(p.Payload),
		}
	}
	wait := true
	if _, err := a.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: repo,
		Points:         pts,
		Wait:           &wait,
	}); err != nil {
		return fmt.Errorf("%w: qdrant upsert into %s: %v", index.ErrIndexWrite, repo, err)
	}
	return nil
}

// DeleteByLinks scans for all points whose parent_link matches any of
// links and deletes them. The scan follows pagination cursors to
// exhaustion; a missing collection or empty match set is not an error.
func (a *Adapter) DeleteByLinks(ctx context.Context, repo string, links []string) error {
	if len(links) == 0 {
		return nil
	}
	exists, err := a.collectionExists(ctx, repo)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	filter := &pb.Filter{
		Should: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key: linkField,
				Match: &pb.Match{MatchValue: &pb.Match_Keywords{
					Keywords: &pb.RepeatedStrings{Strings: links},
				}},
			}},
		}},
	}

	var ids []*pb.PointId
	limit := uint32(scrollPageSize)
	var offset *pb.PointId
	for {
		resp, err := a.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: repo,
			Filter:         filter,
			Limit:          &limit,
			Offset:         offset,
		})
		if err != nil {
			return fmt.Errorf("%w: scrolling %s for deletion: %v", index.ErrIndexWrite, repo, err)
		}
		for _, point := range resp.GetResult() {
			ids = append(ids, point.GetId())
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	if len(ids) == 0 {
		return nil
	}

	wait := true
	if _, err := a.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: repo,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: ids},
		}},
		Wait: &wait,
	}); err != nil {
		return fmt.Errorf("%w: deleting %d points from %s: %v", index.ErrIndexWrite, len(ids), repo, err)
	}
	return nil
}

// LinkExists probes the parent_link payload index. A missing collection
// reports false.
func (a *Adapter) LinkExists(ctx context.Context, repo, link string) (bool, error) {
	exists, err := a.collectionExists(ctx, repo)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	exact := true
	resp, err := a.points.Count(ctx, &pb.CountPoints{
		CollectionName: repo,
		Exact:          &exact,
		Filter: &pb.Filter{
			Must: []*pb.Condition{{
				ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
					Key:   linkField,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: link}},
				}},
			}},
		},
	})
	if err != nil {
		return false, fmt.Errorf("counting points for %s: %w", link, err)
	}
	return resp.GetResult().GetCount() > 0, nil
}

// FusedQuery runs one search per vector field in parallel and fuses the
// two rankings by reciprocal rank. A missing collection yields no results.
func (a *Adapter) FusedQuery(ctx context.Context, repo string, summaryVec, contentVec []float32, limit int) ([]index.VectorResult, error) {
	exists, err := a.collectionExists(ctx, repo)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	var summaryHits, contentHits []candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summaryHits, err = a.search(gctx, repo, summaryField, summaryVec, limit)
		return err
	})
	g.Go(func() error {
		var err error
		contentHits, err = a.search(gctx, repo, contentField, contentVec, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuseRRF([][]candidate{summaryHits, contentHits}, limit)
	results := make([]index.VectorResult, len(fused))
	for i, f := range fused {
		results[i] = index.VectorResult{
			ID:      f.id,
			Score:   f.score,
			Payload: f.payload.(index.Unit),
		}
	}
	return results, nil
}

func (a *Adapter) search(ctx context.Context, repo, field string, vec []float32, limit int) ([]candidate, error) {
	vectorName := field
	resp, err := a.points.Search(ctx, &pb.SearchPoints{
		CollectionName: repo,
		Vector:         vec,
		VectorName:     &vectorName,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s vectors in %s: %w", field, repo, err)
	}

	hits := make([]candidate, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		hits[i] = candidate{
			id:      pt.GetId().GetUuid(),
			payload: payloadToUnit(pt.GetPayload()),
		}
	}
	return hits, nil
}

var _ index.VectorIndex = (*Adapter)(nil)
