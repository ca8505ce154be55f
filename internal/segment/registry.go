// Package segment owns the lifecycle of named client segments.
package segment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/engine"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/population"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/telemetry"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/validation"
)

const copySuffix = " (Copy)"

// CreateParams are the inputs of Create.
type CreateParams struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Tags        []string           `json:"tags"`
	Filter      rules.ConditionSet `json:"filter"`
}

// Patch is a partial update. Nil fields are left unchanged; an empty non-nil
// Tags slice clears the tags.
type Patch struct {
	Name        *string             `json:"name,omitempty"`
	Description *string             `json:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Filter      *rules.ConditionSet `json:"filter,omitempty"`
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Search     string
	Tag        string
	ActiveOnly bool
}

// SystemDefinition describes a segment seeded by the practice, not by users.
type SystemDefinition struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Tags        []string           `json:"tags" yaml:"tags"`
	Filter      rules.ConditionSet `json:"filter" yaml:"-"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log.With().Str("component", "segment_registry").Logger() }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides the UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// Registry is the sole owner of segment identity and mutation. Mutations are
// serialized per segment id; different segments proceed independently.
type Registry struct {
	store      store.Store
	population population.Source
	eval       *engine.Evaluator
	notifier   *Notifier
	locks      *keyedMutex
	tracer     trace.Tracer
	log        zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// NewRegistry creates a registry over st, counting members of pop with eval.
func NewRegistry(st store.Store, pop population.Source, eval *engine.Evaluator, opts ...Option) *Registry {
	r := &Registry{
		store:      st,
		population: pop,
		eval:       eval,
		notifier:   NewNotifier(),
		locks:      newKeyedMutex(),
		tracer:     otel.Tracer("github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"),
		log:        zerolog.Nop(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fields returns the catalog conditions are validated against.
func (r *Registry) Fields() *rules.FieldCatalog { return r.eval.Fields() }

// Evaluator returns the evaluator used for counting.
func (r *Registry) Evaluator() *engine.Evaluator { return r.eval }

// Subscribe registers for change notifications.
func (r *Registry) Subscribe(buffer int) (<-chan Change, func()) {
	return r.notifier.Subscribe(buffer)
}

// Subscribers reports how many change listeners are attached.
func (r *Registry) Subscribers() int { return r.notifier.Subscribers() }

// Create validates and stores a new user segment and counts its members.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*store.Segment, error) {
	name := strings.TrimSpace(p.Name)
	tags := validation.NormalizeTags(p.Tags)
	if err := r.validate(name, p.Description, p.Tags, &p.Filter); err != nil {
		return nil, err
	}

	now := r.now()
	seg := store.Segment{
		ID:          r.newID(),
		Name:        name,
		Description: p.Description,
		Tags:        tags,
		Filter:      p.Filter.Clone(),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.applyCount(ctx, &seg)

	if err := r.store.InsertSegment(ctx, seg); err != nil {
		return nil, fmt.Errorf("failed to store segment: %w", err)
	}
	r.log.Info().Str("segment_id", seg.ID).Str("name", seg.Name).Int("client_count", seg.ClientCount).Msg("segment created")
	r.publish(ctx, ChangeCreated, seg)
	return &seg, nil
}

// Get returns a segment by id.
func (r *Registry) Get(ctx context.Context, id string) (*store.Segment, error) {
	seg, err := r.store.GetSegment(ctx, id)
	if err != nil {
		return nil, lookupError(id, err)
	}
	return seg, nil
}

// Update applies a patch. updatedAt only moves when something changed and the
// segment is recounted when its filter changed.
func (r *Registry) Update(ctx context.Context, id string, p Patch) (*store.Segment, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	cur, err := r.store.GetSegment(ctx, id)
	if err != nil {
		return nil, lookupError(id, err)
	}
	if cur.IsSystem {
		return nil, fmt.Errorf("%w: cannot edit %q", ErrPermission, cur.Name)
	}

	next := cur.Clone()
	if p.Name != nil {
		next.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	rawTags := next.Tags
	if p.Tags != nil {
		rawTags = p.Tags
		next.Tags = validation.NormalizeTags(p.Tags)
	}
	if err := r.validate(next.Name, next.Description, rawTags, p.Filter); err != nil {
		return nil, err
	}

	filterChanged := p.Filter != nil && p.Filter.Fingerprint() != cur.Filter.Fingerprint()
	if filterChanged {
		next.Filter = p.Filter.Clone()
	}

	metaChanged := next.Name != cur.Name || next.Description != cur.Description || !slices.Equal(next.Tags, cur.Tags)
	if !metaChanged && !filterChanged {
		return cur, nil
	}

	next.UpdatedAt = r.now()
	if filterChanged {
		r.applyCount(ctx, &next)
	}
	if err := r.store.UpdateSegment(ctx, next); err != nil {
		return nil, lookupError(id, err)
	}
	r.log.Info().Str("segment_id", id).Bool("filter_changed", filterChanged).Msg("segment updated")
	r.publish(ctx, ChangeUpdated, next)
	return &next, nil
}

// Duplicate copies a segment under a new id. The copy is never a system
// segment and reuses the source count, flagged approximate until recounted.
func (r *Registry) Duplicate(ctx context.Context, id string) (*store.Segment, error) {
	src, err := r.store.GetSegment(ctx, id)
	if err != nil {
		return nil, lookupError(id, err)
	}

	now := r.now()
	seg := src.Clone()
	seg.ID = r.newID()
	seg.Name = copyName(src.Name)
	seg.IsSystem = false
	seg.IsActive = src.IsActive
	seg.CountApproximate = true
	seg.CreatedAt = now
	seg.UpdatedAt = now

	if err := r.store.InsertSegment(ctx, seg); err != nil {
		return nil, fmt.Errorf("failed to store segment: %w", err)
	}
	r.log.Info().Str("segment_id", seg.ID).Str("source_id", id).Msg("segment duplicated")
	r.publish(ctx, ChangeCreated, seg)
	return &seg, nil
}

// Delete removes a user segment. Later lookups of id report ErrSegmentRemoved.
func (r *Registry) Delete(ctx context.Context, id string) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	cur, err := r.store.GetSegment(ctx, id)
	if err != nil {
		return lookupError(id, err)
	}
	if cur.IsSystem {
		return fmt.Errorf("%w: cannot delete %q", ErrPermission, cur.Name)
	}
	if err := r.store.DeleteSegment(ctx, id); err != nil {
		return lookupError(id, err)
	}
	r.log.Info().Str("segment_id", id).Msg("segment deleted")
	r.publish(ctx, ChangeDeleted, *cur)
	return nil
}

// SetActive toggles a segment. System segments cannot be deactivated.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) (*store.Segment, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	cur, err := r.store.GetSegment(ctx, id)
	if err != nil {
		return nil, lookupError(id, err)
	}
	if cur.IsSystem && !active {
		return nil, fmt.Errorf("%w: cannot deactivate %q", ErrPermission, cur.Name)
	}
	if cur.IsActive == active {
		return cur, nil
	}

	cur.IsActive = active
	if err := r.store.UpdateSegment(ctx, *cur); err != nil {
		return nil, lookupError(id, err)
	}
	change := ChangeDeactivated
	if active {
		change = ChangeActivated
	}
	r.log.Info().Str("segment_id", id).Bool("active", active).Msg("segment toggled")
	r.publish(ctx, change, *cur)
	return cur, nil
}

// List returns segments matching f in creation order. It never mutates state.
func (r *Registry) List(ctx context.Context, f ListFilter) ([]store.Segment, error) {
	all, err := r.store.ListSegments(ctx)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	tag := strings.TrimSpace(f.Tag)
	out := make([]store.Segment, 0, len(all))
	for _, seg := range all {
		if f.ActiveOnly && !seg.IsActive {
			continue
		}
		if tag != "" && !slices.Contains(seg.Tags, tag) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(seg.Name), search) &&
			!strings.Contains(strings.ToLower(seg.Description), search) {
			continue
		}
		out = append(out, seg)
	}
	return out, nil
}

// Recount re-evaluates a segment against the current population.
func (r *Registry) Recount(ctx context.Context, id string) (*store.Segment, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	cur, err := r.store.GetSegment(ctx, id)
	if err != nil {
		return nil, lookupError(id, err)
	}
	res, err := r.count(ctx, cur.Filter)
	if err != nil {
		return nil, err
	}

	now := r.now()
	cur.ClientCount = res.Count()
	cur.CountApproximate = false
	cur.CountedAt = &now
	if err := r.store.UpdateSegment(ctx, *cur); err != nil {
		return nil, lookupError(id, err)
	}
	r.publish(ctx, ChangeRecounted, *cur)
	return cur, nil
}

// RecountAll recounts every live segment. Segments removed meanwhile are
// skipped; other failures are joined.
func (r *Registry) RecountAll(ctx context.Context) (int, error) {
	segs, err := r.store.ListSegments(ctx)
	if err != nil {
		return 0, err
	}
	var (
		errs []error
		n    int
	)
	for _, seg := range segs {
		if _, err := r.Recount(ctx, seg.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("recount %s: %w", seg.ID, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Members resolves the current audience of a segment without touching the
// cached count.
func (r *Registry) Members(ctx context.Context, id string) (engine.MatchResult, error) {
	seg, err := r.store.GetSegment(ctx, id)
	if err != nil {
		return engine.MatchResult{}, lookupError(id, err)
	}
	return r.count(ctx, seg.Filter)
}

// EnsureSystemSegment inserts or refreshes a system segment. Definitions are
// authoritative, so drift in name, description, tags or filter is overwritten.
func (r *Registry) EnsureSystemSegment(ctx context.Context, def SystemDefinition) (*store.Segment, error) {
	if strings.TrimSpace(def.ID) == "" {
		return nil, &ValidationError{Fields: map[string]string{"id": "System segment id is required"}}
	}
	name := strings.TrimSpace(def.Name)
	tags := validation.NormalizeTags(def.Tags)
	if err := r.validate(name, def.Description, def.Tags, &def.Filter); err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(def.ID)
	defer unlock()

	cur, err := r.store.GetSegment(ctx, def.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		now := r.now()
		seg := store.Segment{
			ID:          def.ID,
			Name:        name,
			Description: def.Description,
			Tags:        tags,
			Filter:      def.Filter.Clone(),
			IsSystem:    true,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		r.applyCount(ctx, &seg)
		if err := r.store.InsertSegment(ctx, seg); err != nil {
			return nil, fmt.Errorf("failed to store system segment: %w", err)
		}
		r.log.Info().Str("segment_id", seg.ID).Msg("system segment seeded")
		r.publish(ctx, ChangeCreated, seg)
		return &seg, nil
	case err != nil:
		return nil, lookupError(def.ID, err)
	}

	filterChanged := def.Filter.Fingerprint() != cur.Filter.Fingerprint()
	if cur.IsSystem && cur.IsActive && !filterChanged && cur.Name == name &&
		cur.Description == def.Description && slices.Equal(cur.Tags, tags) {
		return cur, nil
	}

	next := cur.Clone()
	next.Name = name
	next.Description = def.Description
	next.Tags = tags
	next.Filter = def.Filter.Clone()
	next.IsSystem = true
	next.IsActive = true
	next.UpdatedAt = r.now()
	if filterChanged {
		r.applyCount(ctx, &next)
	}
	if err := r.store.UpdateSegment(ctx, next); err != nil {
		return nil, lookupError(def.ID, err)
	}
	r.log.Info().Str("segment_id", next.ID).Msg("system segment refreshed")
	r.publish(ctx, ChangeUpdated, next)
	return &next, nil
}

func (r *Registry) validate(name, description string, tags []string, filter *rules.ConditionSet) error {
	result := validation.ValidateSegment(validation.SegmentParams{Name: name, Description: description, Tags: tags})
	var cause error
	if filter != nil {
		if err := r.eval.Fields().Validate(*filter); err != nil {
			result.AddError("filter", err.Error())
			cause = err
		}
	}
	if result.Valid {
		return nil
	}
	return &ValidationError{Fields: result.Errors, Cause: cause}
}

// applyCount sets the member count of seg. When the population cannot be read
// the previous count is kept and flagged approximate.
func (r *Registry) applyCount(ctx context.Context, seg *store.Segment) {
	res, err := r.count(ctx, seg.Filter)
	if err != nil {
		r.log.Warn().Err(err).Str("segment_id", seg.ID).Msg("population unavailable, count left approximate")
		seg.CountApproximate = true
		return
	}
	now := r.now()
	seg.ClientCount = res.Count()
	seg.CountApproximate = false
	seg.CountedAt = &now
}

func (r *Registry) count(ctx context.Context, filter rules.ConditionSet) (engine.MatchResult, error) {
	ctx, span := r.tracer.Start(ctx, "segment.count")
	defer span.End()

	start := time.Now()
	records, err := r.population.Records(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "population read failed")
		return engine.MatchResult{}, fmt.Errorf("failed to read client population: %w", err)
	}
	res, err := r.eval.Match(ctx, records, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation aborted")
		return engine.MatchResult{}, err
	}
	telemetry.RecountDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("segment.population", res.Total),
		attribute.Int("segment.members", res.Count()),
		attribute.Int("segment.mismatches", len(res.Mismatches)),
	)

	if len(res.Mismatches) > 0 {
		for _, mm := range res.Mismatches {
			telemetry.TypeMismatches.WithLabelValues(mm.Field).Inc()
		}
		first := res.Mismatches[0]
		r.log.Warn().
			Int("mismatches", len(res.Mismatches)).
			Str("record_id", first.RecordID).
			Str("field", first.Field).
			Str("expected", string(first.Expected)).
			Str("got", first.Got).
			Msg("client records with unexpected attribute types were treated as non-members")
	}
	return res, nil
}

func (r *Registry) publish(ctx context.Context, t ChangeType, seg store.Segment) {
	telemetry.SegmentChanges.WithLabelValues(string(t)).Inc()
	r.notifier.Publish(Change{Type: t, Segment: seg.Clone(), At: r.now()})
	r.observe(ctx)
}

// observe refreshes the segment gauges.
func (r *Registry) observe(ctx context.Context) {
	segs, err := r.store.ListSegments(ctx)
	if err != nil {
		return
	}
	var system, user, active float64
	for _, s := range segs {
		if s.IsSystem {
			system++
		} else {
			user++
		}
		if s.IsActive {
			active++
		}
	}
	telemetry.Segments.WithLabelValues("system").Set(system)
	telemetry.Segments.WithLabelValues("user").Set(user)
	telemetry.Segments.WithLabelValues("active").Set(active)
}

// copyName appends the copy suffix, trimming the source name so the result
// stays within the name limit.
func copyName(name string) string {
	limit := validation.MaxNameLength - utf8.RuneCountInString(copySuffix)
	if utf8.RuneCountInString(name) > limit {
		name = strings.TrimSpace(string([]rune(name)[:limit]))
	}
	return name + copySuffix
}
