// Package profile supplies learner context for a generation run: the
// topics an actor already knows (from authored and enrolled units) and
// their declared expertise level. Research uses the known-concepts set
// to avoid redundant coverage; content authoring uses expertise to
// calibrate difficulty.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/thothlabs/coursegen/internal/metrics"
)

// Learner is the context snapshot for one actor.
type Learner struct {
	ActorID        string   `json:"actor_id"`
	ExpertiseLevel string   `json:"expertise_level"` // beginner, intermediate, advanced
	KnownConcepts  []string `json:"known_concepts"`
}

// KnowsAbout reports whether topic overlaps a known concept, by
// case-insensitive containment in either direction.
func (l *Learner) KnowsAbout(topic string) bool {
	t := strings.ToLower(strings.TrimSpace(topic))
	if t == "" {
		return false
	}
	for _, c := range l.KnownConcepts {
		cl := strings.ToLower(c)
		if cl == "" {
			continue
		}
		if strings.Contains(t, cl) || strings.Contains(cl, t) {
			return true
		}
	}
	return false
}

// Provider resolves learner profiles, serving repeat lookups within a
// run burst from Redis.
type Provider struct {
	db     *sqlx.DB
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewProvider wires the provider. cache may be nil; lookups then always
// hit Postgres.
func NewProvider(db *sqlx.DB, cache *redis.Client, logger *zap.Logger) *Provider {
	return &Provider{
		db:     db,
		cache:  cache,
		ttl:    15 * time.Minute,
		logger: logger,
	}
}

func cacheKey(actorID string) string {
	return "coursegen:profile:" + actorID
}

// LearnerProfile returns the profile for actorID. A missing actor is
// not an error: generation proceeds with an empty profile.
func (p *Provider) LearnerProfile(ctx context.Context, actorID string) (*Learner, error) {
	if cached := p.fromCache(ctx, actorID); cached != nil {
		return cached, nil
	}

	learner := &Learner{ActorID: actorID, ExpertiseLevel: "beginner"}

	var level string
	err := p.db.GetContext(ctx, &level,
		`SELECT expertise_level FROM users WHERE id = $1`, actorID)
	if err == nil && level != "" {
		learner.ExpertiseLevel = level
	}

	var concepts []string
	err = p.db.SelectContext(ctx, &concepts, `
		SELECT DISTINCT topic FROM (
			SELECT m.title AS topic
			FROM course_modules m
			JOIN courses c ON c.id = m.course_id
			WHERE c.author_id = $1
			UNION
			SELECT m.title AS topic
			FROM course_modules m
			JOIN enrollments e ON e.course_id = m.course_id
			WHERE e.user_id = $1 AND e.completed
		) known
		ORDER BY topic`, actorID)
	if err != nil {
		return nil, fmt.Errorf("load known concepts for %s: %w", actorID, err)
	}
	learner.KnownConcepts = concepts

	p.toCache(ctx, learner)
	return learner, nil
}

func (p *Provider) fromCache(ctx context.Context, actorID string) *Learner {
	if p.cache == nil {
		return nil
	}
	raw, err := p.cache.Get(ctx, cacheKey(actorID)).Result()
	if err != nil {
		if err != redis.Nil {
			p.logger.Debug("Profile cache read failed", zap.Error(err))
		}
		metrics.ProfileCacheMisses.Inc()
		return nil
	}
	var l Learner
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		metrics.ProfileCacheMisses.Inc()
		return nil
	}
	metrics.ProfileCacheHits.Inc()
	return &l
}

func (p *Provider) toCache(ctx context.Context, l *Learner) {
	if p.cache == nil {
		return
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, cacheKey(l.ActorID), raw, p.ttl).Err(); err != nil {
		p.logger.Debug("Profile cache write failed",
			zap.String("actor_id", l.ActorID),
			zap.Error(err),
		)
	}
}
