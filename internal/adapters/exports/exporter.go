// Package exports writes serialized blueprints to a blob store so a game build
// can pick them up.
package exports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"blueprintcore/internal/blob"
	"blueprintcore/pkg/domain"
	"blueprintcore/pkg/ident"
)

// Prefix is the key prefix every export is written under.
const Prefix = "blueprints/"

const (
	contentType     = "application/json"
	timestampLayout = "20060102T150405Z"
	untitledSlug    = "untitled"
)

// Artifact describes a stored blueprint export.
type Artifact struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Title     string    `json:"title,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Exporter serializes blueprints into a blob store.
type Exporter struct {
	store blob.Store
	now   func() time.Time
	newID func() string
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides the timestamp source used in keys.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides the artifact ID source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Exporter) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewExporter constructs an exporter writing to store.
func NewExporter(store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Key builds the object key for an export: blueprints/<slug>/<timestamp>-<id>.json.
func Key(title string, at time.Time, id string) string {
	slug := ident.Derive(title)
	if slug == "" {
		slug = untitledSlug
	}
	return fmt.Sprintf("%s%s/%s-%s.json", Prefix, slug, at.UTC().Format(timestampLayout), id)
}

// Export writes bp and returns the stored artifact.
func (e *Exporter) Export(ctx context.Context, bp domain.Blueprint) (Artifact, error) {
	if bp.FormatVersion == 0 {
		bp.FormatVersion = domain.BlueprintFormatVersion
	}
	payload, err := json.MarshalIndent(bp, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("encode blueprint: %w", err)
	}
	id := e.newID()
	created := e.now().UTC()
	key := Key(bp.Settings.GameTitle, created, id)
	info, err := e.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"id": id, "title": bp.Settings.GameTitle},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store export: %w", err)
	}
	artifact := Artifact{
		ID:        id,
		Key:       key,
		Title:     bp.Settings.GameTitle,
		SizeBytes: info.Size,
		CreatedAt: created,
	}
	artifact.URL = e.url(ctx, info)
	return artifact, nil
}

// List returns stored exports ordered by key, which groups them by title and
// then by creation time.
func (e *Exporter) List(ctx context.Context) ([]Artifact, error) {
	infos, err := e.store.List(ctx, Prefix)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	out := make([]Artifact, 0, len(infos))
	for _, info := range infos {
		artifact := Artifact{
			Key:       info.Key,
			SizeBytes: info.Size,
			CreatedAt: info.LastModified,
			ID:        info.Metadata["id"],
			Title:     info.Metadata["title"],
		}
		if artifact.ID == "" {
			artifact.ID = idFromKey(info.Key)
		}
		artifact.URL = e.url(ctx, info)
		out = append(out, artifact)
	}
	return out, nil
}

// Fetch reads back a previously exported blueprint.
func (e *Exporter) Fetch(ctx context.Context, key string) (domain.Blueprint, error) {
	if !strings.HasPrefix(key, Prefix) {
		return domain.Blueprint{}, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
	}
	_, rc, err := e.store.Get(ctx, key)
	if err != nil {
		return domain.Blueprint{}, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.Blueprint{}, err
	}
	var bp domain.Blueprint
	if err := json.Unmarshal(data, &bp); err != nil {
		return domain.Blueprint{}, fmt.Errorf("decode export %s: %w", key, err)
	}
	return bp, nil
}

// Delete removes an export. It reports false when the key did not exist.
func (e *Exporter) Delete(ctx context.Context, key string) (bool, error) {
	if !strings.HasPrefix(key, Prefix) {
		return false, nil
	}
	return e.store.Delete(ctx, key)
}

func (e *Exporter) url(ctx context.Context, info blob.Info) string {
	url, err := e.store.PresignURL(ctx, info.Key, blob.SignedURLOptions{})
	if err != nil {
		// memory driver has no URLs; fall back to whatever the driver reported
		return info.URL
	}
	return url
}

// idFromKey extracts the id from a <timestamp>-<id>.json file name.
func idFromKey(key string) string {
	name := key[strings.LastIndex(key, "/")+1:]
	name = strings.TrimSuffix(name, ".json")
	if i := strings.Index(name, "-"); i >= 0 {
		return name[i+1:]
	}
	return name
}
