package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document pairs decoded document data with the snapshot metadata timestamps.
// UpdateTime is the server commit timestamp, which is what LastUpdateTime
// preconditions compare against.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
	ReadTime   time.Time
}

// MutationResult carries the commit timestamp of a write.
type MutationResult struct {
	UpdateTime time.Time
}

// QueryBuilder narrows a collection query before it runs.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection gives the catalogue, cart, and order repositories typed access to
// a single Firestore collection. Documents are encoded and decoded through the
// client's struct mapping, so T carries the firestore field tags.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed collection handle to the provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{
		provider: provider,
		name:     strings.TrimSpace(name),
	}
}

// Set upserts value under the given document ID.
func (c *Collection[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) (MutationResult, error) {
	doc, err := c.documentRef(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	result, err := doc.Set(ctx, value, opts...)
	if err != nil {
		return MutationResult{}, WrapError(c.op("set"), err)
	}
	return MutationResult{UpdateTime: result.UpdateTime}, nil
}

// Update applies field updates to the document, honouring any preconditions.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update, opts ...firestore.Precondition) (MutationResult, error) {
	doc, err := c.documentRef(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	result, err := doc.Update(ctx, updates, opts...)
	if err != nil {
		return MutationResult{}, WrapError(c.op("update"), err)
	}
	return MutationResult{UpdateTime: result.UpdateTime}, nil
}

// Get fetches and decodes a single document.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := c.documentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}

	snapshot, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return decodeSnapshot[T](snapshot)
}

// Query runs the collection query shaped by build and decodes every result.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.collectionRef(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		decoded, err := decodeSnapshot[T](snapshot)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// DocumentRef exposes the raw reference for transactional reads and writes.
func (c *Collection[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	return c.documentRef(ctx, id)
}

func decodeSnapshot[T any](snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snapshot.DataTo(&data); err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       data,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
		ReadTime:   snapshot.ReadTime,
	}, nil
}

func (c *Collection[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError(c.op("collection"), errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError(c.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) documentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := c.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) op(action string) string {
	name := "firestore"
	if c != nil && strings.TrimSpace(c.name) != "" {
		name = strings.TrimSpace(c.name)
	}
	return name + "." + strings.ToLower(action)
}
