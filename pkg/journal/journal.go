package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Sternrassler/xog-migrate/pkg/migrate"
	"github.com/beevik/etree"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound indicates the requested run or page is not in the journal.
	ErrNotFound = errors.New("journal entry not found")

	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid journal entry")
)

// Config holds journal configuration.
type Config struct {
	// TTL is how long page entries and run state are kept.
	TTL time.Duration

	// StorePayloads stores the serialized page with each entry.
	StorePayloads bool

	// Timeout bounds each Redis round trip made from observer callbacks.
	Timeout time.Duration
}

// DefaultConfig returns the default journal configuration.
func DefaultConfig() Config {
	return Config{
		TTL:     7 * 24 * time.Hour,
		Timeout: 2 * time.Second,
	}
}

// Journal stores the progress of one migration run in Redis.
// It is safe for concurrent use.
type Journal struct {
	redis  *redis.Client
	runID  string
	config Config
	logger zerolog.Logger
}

var _ migrate.Observer = (*Journal)(nil)

// New creates a journal for runID.
func New(redisClient *redis.Client, runID string, config Config, logger zerolog.Logger) *Journal {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	defaults := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &Journal{
		redis:  redisClient,
		runID:  runID,
		config: config,
		logger: logger.With().Str("run_id", runID).Logger(),
	}
}

// RunID returns the run this journal records.
func (j *Journal) RunID() string {
	return j.runID
}

// Start marks the run as running and resets its counters.
func (j *Journal) Start(ctx context.Context) error {
	now := time.Now()
	key := RunKey(j.runID)

	pipe := j.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		fieldStatus, string(StatusRunning),
		fieldPagesRead, 0,
		fieldPagesWritten, 0,
		fieldPagesFailed, 0,
		fieldStartedAt, formatTime(now),
		fieldLastUpdate, formatTime(now),
	)
	pipe.Expire(ctx, key, j.config.TTL)

	if _, err := pipe.Exec(ctx); err != nil {
		JournalErrors.WithLabelValues("state").Inc()
		return fmt.Errorf("store run state: %w", err)
	}

	j.logger.Info().Msg("Journal run started")
	return nil
}

// Finish records the outcome of the run. A nil migrationErr marks it completed.
func (j *Journal) Finish(ctx context.Context, migrationErr error) error {
	now := time.Now()
	key := RunKey(j.runID)

	status := StatusCompleted
	message := ""
	if migrationErr != nil {
		status = StatusFailed
		message = migrationErr.Error()
	}

	pipe := j.redis.TxPipeline()
	pipe.HSet(ctx, key,
		fieldStatus, string(status),
		fieldFinishedAt, formatTime(now),
		fieldLastUpdate, formatTime(now),
		fieldError, message,
	)
	pipe.Expire(ctx, key, j.config.TTL)

	if _, err := pipe.Exec(ctx); err != nil {
		JournalErrors.WithLabelValues("state").Inc()
		return fmt.Errorf("store run state: %w", err)
	}

	j.logger.Info().Str("status", string(status)).Msg("Journal run finished")
	return nil
}

// PageRead records a page read from the source.
func (j *Journal) PageRead(ctx context.Context, page migrate.Page) {
	ctx, cancel := j.callbackContext(ctx)
	defer cancel()

	now := time.Now()
	entry := &PageEntry{
		RunID:      j.runID,
		Bundle:     page.Bundle,
		ObjectType: page.ObjectType,
		Index:      page.Index,
		Skip:       page.Skip,
		Stage:      StageRead,
		ReadAt:     now,
		Expires:    now.Add(j.config.TTL),
	}
	if j.config.StorePayloads && page.Payload != nil {
		entry.Payload = serialize(page)
	}

	if err := j.record(ctx, entry, fieldPagesRead); err != nil {
		j.warn(err, page, "Failed to journal page read")
	}
}

// PageWritten records the outcome of a destination write.
func (j *Journal) PageWritten(ctx context.Context, page migrate.Page, writeErr error) {
	ctx, cancel := j.callbackContext(ctx)
	defer cancel()

	key := PageKey{RunID: j.runID, Bundle: page.Bundle, ObjectType: page.ObjectType, Index: page.Index}
	entry, err := j.Entry(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			j.warn(err, page, "Failed to load journal page entry")
		}
		now := time.Now()
		entry = &PageEntry{
			RunID:      j.runID,
			Bundle:     page.Bundle,
			ObjectType: page.ObjectType,
			Index:      page.Index,
			Skip:       page.Skip,
			ReadAt:     now,
			Expires:    now.Add(j.config.TTL),
		}
	}

	entry.WrittenAt = time.Now()
	counter := fieldPagesWritten
	entry.Stage = StageWritten
	if writeErr != nil {
		counter = fieldPagesFailed
		entry.Stage = StageFailed
		entry.Error = writeErr.Error()
	}

	if err := j.record(ctx, entry, counter); err != nil {
		j.warn(err, page, "Failed to journal page write")
	}
}

// record stores entry and bumps the run counter in one transaction.
func (j *Journal) record(ctx context.Context, entry *PageEntry, counter string) error {
	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		JournalErrors.WithLabelValues("page").Inc()
		return fmt.Errorf("marshal page entry: %w", err)
	}

	runKey := RunKey(j.runID)
	pipe := j.redis.TxPipeline()
	pipe.Set(ctx, entry.Key().String(), data, ttl)
	pipe.HIncrBy(ctx, runKey, counter, 1)
	pipe.HSet(ctx, runKey, fieldLastUpdate, formatTime(time.Now()))
	pipe.Expire(ctx, runKey, j.config.TTL)

	if _, err := pipe.Exec(ctx); err != nil {
		JournalErrors.WithLabelValues("page").Inc()
		return fmt.Errorf("redis pipeline: %w", err)
	}

	JournalEntries.WithLabelValues(string(entry.Stage)).Inc()
	JournalBytes.Add(float64(len(entry.Payload)))
	return nil
}

// Entry loads one page entry.
// Returns ErrNotFound if the key doesn't exist or the entry has expired.
func (j *Journal) Entry(ctx context.Context, key PageKey) (*PageEntry, error) {
	data, err := j.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		JournalErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry PageEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		JournalErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		return nil, ErrNotFound
	}

	return &entry, nil
}

// Entries returns every page entry of the run ordered by bundle, object type
// and index.
func (j *Journal) Entries(ctx context.Context) ([]*PageEntry, error) {
	var entries []*PageEntry

	iter := j.redis.Scan(ctx, 0, PagePattern(j.runID), 100).Iterator()
	for iter.Next(ctx) {
		data, err := j.redis.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			JournalErrors.WithLabelValues("get").Inc()
			return nil, fmt.Errorf("redis get: %w", err)
		}

		var entry PageEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			JournalErrors.WithLabelValues("get").Inc()
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		entries = append(entries, &entry)
	}
	if err := iter.Err(); err != nil {
		JournalErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Bundle != entries[b].Bundle {
			return entries[a].Bundle < entries[b].Bundle
		}
		if entries[a].ObjectType != entries[b].ObjectType {
			return entries[a].ObjectType < entries[b].ObjectType
		}
		return entries[a].Index < entries[b].Index
	})

	return entries, nil
}

// State loads the run state.
// Returns ErrNotFound if the run was never started or has expired.
func (j *Journal) State(ctx context.Context) (*RunState, error) {
	return LoadState(ctx, j.redis, j.runID)
}

// LoadState loads the state of any run.
func LoadState(ctx context.Context, redisClient *redis.Client, runID string) (*RunState, error) {
	fields, err := redisClient.HGetAll(ctx, RunKey(runID)).Result()
	if err != nil {
		JournalErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return parseRunState(runID, fields)
}

// callbackContext detaches ctx from migration cancellation so a failed page
// is still journaled, and bounds the Redis round trip.
func (j *Journal) callbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), j.config.Timeout)
}

func (j *Journal) warn(err error, page migrate.Page, msg string) {
	j.logger.Warn().
		Err(err).
		Str("object_type", page.ObjectType).
		Int("bundle", page.Bundle).
		Int("page", page.Index).
		Msg(msg)
}

func serialize(page migrate.Page) string {
	doc := etree.NewDocument()
	doc.SetRoot(page.Payload.Copy())
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}
