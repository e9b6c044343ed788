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

// Document represents a strongly typed Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// Encoder serialises the strongly typed entity prior to persistence.
type Encoder[T any] func(value T) (any, error)

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository provides typed collection helpers. Every method joins the transaction carried by
// ctx when there is one, so callers never branch on transactional state themselves.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository constructs a BaseRepository bound to a collection.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	if encode == nil {
		encode = func(value T) (any, error) { return value, nil }
	}
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		encode:     encode,
		decode:     decode,
	}
}

// Get fetches and decodes the document by ID.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}

	var snapshot *firestore.DocumentSnapshot
	if tx, ok := TransactionFromContext(ctx); ok {
		snapshot, err = tx.Get(doc)
	} else {
		snapshot, err = doc.Get(ctx)
	}
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.decodeDocument(snapshot)
}

// GetAll fetches several documents in one round trip. Missing documents are reported through the
// second return value instead of failing the call.
func (r *BaseRepository[T]) GetAll(ctx context.Context, ids []string) (map[string]Document[T], []string, error) {
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		ref, err := r.DocumentRef(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, ref)
	}

	var (
		snapshots []*firestore.DocumentSnapshot
		err       error
	)
	if tx, ok := TransactionFromContext(ctx); ok {
		snapshots, err = tx.GetAll(refs)
	} else {
		client, clientErr := r.provider.Client(ctx)
		if clientErr != nil {
			return nil, nil, clientErr
		}
		snapshots, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, nil, WrapError(r.op("get_all"), err)
	}

	found := make(map[string]Document[T], len(snapshots))
	var missing []string
	for i, snapshot := range snapshots {
		if snapshot == nil || !snapshot.Exists() {
			missing = append(missing, refs[i].ID)
			continue
		}
		decoded, err := r.decodeDocument(snapshot)
		if err != nil {
			return nil, nil, err
		}
		found[decoded.ID] = decoded
	}
	return found, missing, nil
}

// Create writes a new document and fails with a conflict when the ID is taken.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	doc, payload, err := r.prepare(ctx, id, value)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		err = tx.Create(doc, payload)
	} else {
		_, err = doc.Create(ctx, payload)
	}
	return WrapError(r.op("create"), err)
}

// Set upserts the given value under the provided document ID.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) error {
	doc, payload, err := r.prepare(ctx, id, value)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		err = tx.Set(doc, payload, opts...)
	} else {
		_, err = doc.Set(ctx, payload, opts...)
	}
	return WrapError(r.op("set"), err)
}

// Update applies partial updates to an existing document.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update, preconds ...firestore.Precondition) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if len(preconds) == 0 {
		preconds = []firestore.Precondition{firestore.Exists}
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		err = tx.Update(doc, updates, preconds...)
	} else {
		_, err = doc.Update(ctx, updates, preconds...)
	}
	return WrapError(r.op("update"), err)
}

// Delete removes the document. Deleting a missing document is not an error.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		err = tx.Delete(doc)
	} else {
		_, err = doc.Delete(ctx)
	}
	return WrapError(r.op("delete"), err)
}

// Query executes a collection query and returns the decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.CollectionRef(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	return DecodeAll(ctx, query, r.op("query"), r.decodeDocument)
}

// DecodeAll runs query, inside the context's transaction when present, and decodes every result.
func DecodeAll[T any](ctx context.Context, query firestore.Query, op string, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	var iter *firestore.DocumentIterator
	if tx, ok := TransactionFromContext(ctx); ok {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var out []T
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(op, err)
		}
		decoded, err := decode(snapshot)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		out = append(out, decoded)
	}
	return out, nil
}

// CollectionRef exposes the collection reference for queries and sub-collections.
func (r *BaseRepository[T]) CollectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	if r.collection == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

// DocumentRef exposes the underlying document reference.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: document id is required", r.op("document"))
	}
	coll, err := r.CollectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) prepare(ctx context.Context, id string, value T) (*firestore.DocumentRef, any, error) {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	payload, err := r.encode(value)
	if err != nil {
		return nil, nil, fmt.Errorf("firestore: encode document %s: %w", id, err)
	}
	return doc, payload, nil
}

func (r *BaseRepository[T]) decodeDocument(snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(snapshot)
	if err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       entity,
		UpdateTime: snapshot.UpdateTime,
	}, nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return fmt.Sprintf("%s.%s", name, strings.ToLower(action))
}

// StructDecoder populates the target struct using Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}
