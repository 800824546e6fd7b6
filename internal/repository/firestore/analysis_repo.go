// Package firestore stores the analysis log in a Firestore collection.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/riskguard/internal/errs"
	"github.com/and161185/riskguard/internal/model"
)

// DefaultCollection is used when no collection name is configured.
const DefaultCollection = "analyses"

const countAlias = "total"

type analysisDoc struct {
	UserID    string    `firestore:"user_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

// AnalysisRepo implements repository.AnalysisLog on a Firestore collection.
// Documents are keyed by the analysis id.
type AnalysisRepo struct {
	client     *firestore.Client
	collection string
}

// Open creates a client for projectID. FIRESTORE_EMULATOR_HOST is honoured by the client library.
func Open(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore: new client: %w", err)
	}
	return client, nil
}

// NewAnalysisRepo binds the repository to collection on client.
func NewAnalysisRepo(client *firestore.Client, collection string) (*AnalysisRepo, error) {
	if client == nil {
		return nil, errors.New("firestore: client is required")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &AnalysisRepo{client: client, collection: collection}, nil
}

// Record creates the document. An existing id maps to errs.ErrConflict.
func (r *AnalysisRepo) Record(ctx context.Context, a model.Analysis) error {
	doc := r.client.Collection(r.collection).Doc(a.ID.String())
	_, err := doc.Create(ctx, analysisDoc{UserID: a.UserID, CreatedAt: a.CreatedAt.UTC()})
	if status.Code(err) == codes.AlreadyExists {
		return errs.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("firestore: record analysis: %w", err)
	}
	return nil
}

// CountSince runs a count aggregation over user_id == userID and created_at >= since.
func (r *AnalysisRepo) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	q := r.client.Collection(r.collection).
		Where("user_id", "==", userID).
		Where("created_at", ">=", since.UTC())

	res, err := q.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("firestore: count analyses: %w", err)
	}
	return countValue(res[countAlias])
}

func countValue(v any) (int, error) {
	switch n := v.(type) {
	case *firestorepb.Value:
		return int(n.GetIntegerValue()), nil
	case int64:
		return int(n), nil
	case nil:
		return 0, errors.New("firestore: count result missing")
	default:
		return 0, fmt.Errorf("firestore: unexpected count type %T", v)
	}
}
