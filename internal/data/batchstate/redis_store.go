package batchstate

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

const (
	DefaultKeyPrefix = "batch_execution"
	DefaultTTL       = 24 * time.Hour
)

//go:embed lua/update_job_status.lua
var updateJobStatusSrc string

//go:embed lua/complete.lua
var completeSrc string

var (
	updateJobStatusScript = goredis.NewScript(updateJobStatusSrc)
	completeScript        = goredis.NewScript(completeSrc)
)

type RedisOptions struct {
	KeyPrefix string
	TTL       time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

// RedisStore keeps one JSON document per batch under "{prefix}:{id}" and the
// set of unresolved batch IDs under "{prefix}_active". Document mutations run
// as Lua scripts so each update is a single atomic round trip.
type RedisStore struct {
	rdb    goredis.UniversalClient
	log    *logger.Logger
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(rdb goredis.UniversalClient, baseLog *logger.Logger, opts RedisOptions) *RedisStore {
	prefix := strings.TrimSpace(opts.KeyPrefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RedisStore{
		rdb:    rdb,
		log:    baseLog.With("store", "RedisBatchStore"),
		prefix: prefix,
		ttl:    ttl,
		now:    now,
	}
}

func (s *RedisStore) docKey(batchID string) string { return s.prefix + ":" + batchID }
func (s *RedisStore) indexKey() string             { return s.prefix + "_active" }

func (s *RedisStore) ttlSeconds() string {
	secs := int64(s.ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func (s *RedisStore) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// Create rejects an empty job list: cjson would encode it back as an object
// and break every later update script.
func (s *RedisStore) Create(ctx context.Context, batchID string, jobs []batch.JobInput) (*batch.BatchExecution, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id required", batch.ErrInvalidArgument)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: batch %s has no jobs", batch.ErrInvalidArgument, batchID)
	}
	doc := batch.NewBatchExecution(batchID, jobs, s.now())
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode batch %s: %w", batchID, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(batchID), raw, s.ttl)
		pipe.SAdd(ctx, s.indexKey(), batchID)
		return nil
	})
	if err != nil {
		return nil, unavailable("create", err)
	}
	return doc, nil
}

func (s *RedisStore) Get(ctx context.Context, batchID string) (*batch.BatchExecution, error) {
	raw, err := s.rdb.Get(ctx, s.docKey(batchID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, batch.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return decode(batchID, raw)
}

func (s *RedisStore) UpdateJobStatus(ctx context.Context, batchID, jobID string, status batch.JobStatus, upd batch.JobUpdate) (*batch.BatchExecution, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", batch.ErrInvalidStatus, status)
	}
	fields, err := json.Marshal(upd)
	if err != nil {
		return nil, fmt.Errorf("encode job fields: %w", err)
	}
	res, err := updateJobStatusScript.Run(ctx, s.rdb,
		[]string{s.docKey(batchID), s.indexKey()},
		batchID, jobID, string(status), s.stamp(), s.ttlSeconds(), string(fields),
	).Text()
	if errors.Is(err, goredis.Nil) {
		return nil, batch.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("update job status", err)
	}
	return decode(batchID, []byte(res))
}

func (s *RedisStore) Complete(ctx context.Context, batchID string) (*batch.BatchExecution, error) {
	res, err := completeScript.Run(ctx, s.rdb,
		[]string{s.docKey(batchID), s.indexKey()},
		batchID, s.stamp(), s.ttlSeconds(),
	).Text()
	if errors.Is(err, goredis.Nil) {
		return nil, batch.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("complete", err)
	}
	return decode(batchID, []byte(res))
}

func (s *RedisStore) Delete(ctx context.Context, batchID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(batchID))
		pipe.SRem(ctx, s.indexKey(), batchID)
		return nil
	})
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func (s *RedisStore) ListActive(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, unavailable("list active", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// SweepInactive reconciles the active index with the documents it points at:
// entries whose document expired or is already inactive are removed along
// with the document.
func (s *RedisStore) SweepInactive(ctx context.Context) (int, error) {
	ids, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, unavailable("sweep", err)
	}
	removed := 0
	for _, id := range ids {
		doc, err := s.Get(ctx, id)
		switch {
		case errors.Is(err, batch.ErrNotFound):
		case err != nil && errors.Is(err, batch.ErrStoreUnavailable):
			return removed, err
		case err != nil:
			s.log.Warn("skipping undecodable batch during sweep", "batch_id", id, "error", err)
			continue
		case doc.IsActive:
			continue
		}
		if err := s.Delete(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("swept inactive batches", "removed", removed, "scanned", len(ids))
	}
	return removed, nil
}

func (s *RedisStore) Stats(ctx context.Context) (batch.Stats, error) {
	active, err := s.rdb.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		return batch.Stats{}, unavailable("stats", err)
	}
	total := 0
	iter := s.rdb.Scan(ctx, 0, s.prefix+":*", 200).Iterator()
	for iter.Next(ctx) {
		total++
	}
	if err := iter.Err(); err != nil {
		return batch.Stats{}, unavailable("stats scan", err)
	}
	return batch.Stats{
		ActiveCount:    int(active),
		TotalDocuments: total,
		Provenance:     batch.ProvenancePrimary,
	}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func decode(batchID string, raw []byte) (*batch.BatchExecution, error) {
	var doc batch.BatchExecution
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", batchID, err)
	}
	return &doc, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", batch.ErrStoreUnavailable, op, err)
}
