// Package redis provides Redis persistence for project documents.
//
// Each document is stored as JSON under "<prefix>:project:<id>"; a sorted
// set "<prefix>:projects" indexes the ids by update time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "dataflow"

// Persistence implements persistence.Persistence on top of a Redis client.
type Persistence struct {
	client redis.UniversalClient
	logger *slog.Logger
	prefix string
}

// Option configures the Redis persistence.
type Option func(*Persistence)

// WithKeyPrefix namespaces every key written by the persistence.
func WithKeyPrefix(prefix string) Option {
	return func(p *Persistence) {
		p.prefix = prefix
	}
}

// NewPersistence connects to the Redis server at redisURL (redis://host:port/db).
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string, opts ...Option) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	p := NewWithClient(redis.NewClient(options), logger, opts...)

	err = p.HealthCheck(ctx)
	if err != nil {
		_ = p.client.Close()

		return nil, err
	}

	return p, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, logger *slog.Logger, opts ...Option) *Persistence {
	p := &Persistence{
		client: client,
		logger: logger.With("module", "redis_persistence"),
		prefix: defaultPrefix,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Close closes the client.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Projects returns all projects, most recently updated first.
func (p *Persistence) Projects(ctx context.Context) ([]*models.ProjectDocument, error) {
	ids, err := p.client.ZRevRange(ctx, p.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projects := make([]*models.ProjectDocument, 0, len(ids))
	if len(ids) == 0 {
		return projects, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.projectKey(id)
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry without a document; skip it.
			p.logger.WarnContext(ctx, "dangling project index entry", "project_id", ids[i])

			continue
		}

		doc, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}

		projects = append(projects, doc)
	}

	return projects, nil
}

// ProjectByID returns a project by its ID.
func (p *Persistence) ProjectByID(ctx context.Context, id string) (*models.ProjectDocument, error) {
	raw, err := p.client.Get(ctx, p.projectKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewProjectError("ProjectByID", id, persistence.ErrProjectNotFound)
		}

		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}

	return decode(raw)
}

// SaveProject stores the document and updates the index in one transaction.
func (p *Persistence) SaveProject(ctx context.Context, doc *models.ProjectDocument) error {
	if doc == nil || doc.ID == "" {
		return persistence.NewProjectError("SaveProject", "", persistence.ErrInvalidProject)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, p.projectKey(doc.ID), data, 0)
	pipe.ZAdd(ctx, p.indexKey(), redis.Z{
		Score:  float64(doc.UpdatedAt.UnixMilli()),
		Member: doc.ID,
	})

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save project %s: %w", doc.ID, err)
	}

	return nil
}

// DeleteProject removes the document and its index entry.
func (p *Persistence) DeleteProject(ctx context.Context, id string) error {
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, p.projectKey(id))
	pipe.ZRem(ctx, p.indexKey(), id)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}

	return nil
}

func (p *Persistence) projectKey(id string) string {
	return p.prefix + ":project:" + id
}

func (p *Persistence) indexKey() string {
	return p.prefix + ":projects"
}

func decode(raw []byte) (*models.ProjectDocument, error) {
	var doc models.ProjectDocument

	err := json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal project document: %w", err)
	}

	return &doc, nil
}
