package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gocsprbridge/types"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog"
)

// Client persists cursors, dedup sets and processed records
type Client struct {
	pool *redis.Pool
	log  zerolog.Logger
}

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

func New(host string, port int, log zerolog.Logger) *Client {
	redisAddr := fmt.Sprintf("%s:%d", host, port)
	return NewWithPool(&redis.Pool{
		MaxIdle:     5,
		IdleTimeout: 240 * time.Second,
		Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", redisAddr, timeoutDialOptions()...) },
	}, log)
}

func NewWithPool(pool *redis.Pool, log zerolog.Logger) *Client {
	return &Client{pool: pool, log: log.With().Str("component", "redis").Logger()}
}

// Ping checks connectivity, without persistence the bridge does not start
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("PING")
	return err
}

func (c *Client) Close() error {
	return c.pool.Close()
}

func cursorKey(chain types.ChainID) string {
	return fmt.Sprintf("chainBlockScanned:%s", chain)
}

func (c *Client) GetScannedBlock(ctx context.Context, chain types.ChainID) (uint64, bool, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return 0, false, err
	}
	defer conn.Close()

	blockHeight, err := redis.Uint64(conn.Do("GET", cursorKey(chain)))
	if err == nil {
		return blockHeight, true, nil
	}

	if errors.Is(err, redis.ErrNil) {
		return 0, false, nil
	}

	c.log.Error().Err(err).Msg("error Redis get")
	return 0, false, err
}

func (c *Client) SetScannedBlock(ctx context.Context, chain types.ChainID, blockHeight uint64) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("SET", cursorKey(chain), blockHeight)
	if err != nil {
		c.log.Error().Err(err).Msg("error Redis set")
		return err
	}

	return nil
}

// Ledger scopes dedup and records to one direction
func (c *Client) Ledger(direction types.Direction) *LedgerStore {
	return &LedgerStore{client: c, prefix: direction.Key()}
}

// LedgerStore implements ledger.Store for one direction
type LedgerStore struct {
	client *Client
	prefix string
}

func (s *LedgerStore) seenKey() string {
	return fmt.Sprintf("bridgeops:%s:seen", s.prefix)
}

func (s *LedgerStore) recordKey(sourceTxID string) string {
	return fmt.Sprintf("bridgeop:%s:%s", s.prefix, sourceTxID)
}

func (s *LedgerStore) statusSetKey(status types.RecordStatus) string {
	return fmt.Sprintf("bridgeops:%s:%s", s.prefix, status)
}

// Claim relies on SADD reporting whether the member was new, one round trip and atomic
func (s *LedgerStore) Claim(ctx context.Context, sourceTxID string) (bool, error) {
	conn, err := s.client.pool.GetContext(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	added, err := redis.Int(conn.Do("SADD", s.seenKey(), sourceTxID))
	if err != nil {
		s.client.log.Error().Err(err).Msg("error Redis SADD")
		return false, err
	}
	return added == 1, nil
}

func (s *LedgerStore) Mark(ctx context.Context, sourceTxID string) error {
	_, err := s.Claim(ctx, sourceTxID)
	return err
}

func (s *LedgerStore) GetRecord(ctx context.Context, sourceTxID string) (*types.ProcessedRecord, error) {
	conn, err := s.client.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return s.getRecord(conn, s.recordKey(sourceTxID))
}

func (s *LedgerStore) getRecord(conn redis.Conn, key string) (*types.ProcessedRecord, error) {
	raw, err := redis.Bytes(conn.Do("GET", key))
	if errors.Is(err, redis.ErrNil) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		s.client.log.Error().Err(err).Msg("error Redis GET")
		return nil, err
	}

	var rec types.ProcessedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("cannot unmarshal processed record %s: %w", key, err)
	}
	return &rec, nil
}

// note that a record is a member of exactly one status set
func (s *LedgerStore) PutRecord(ctx context.Context, rec *types.ProcessedRecord) error {
	if rec == nil {
		return errors.New("null object to store")
	}
	if rec.Status == "" {
		return errors.New("processed record cannot have empty status")
	}

	conn, err := s.client.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot marshal processed record to JSON: %w", err)
	}

	if _, err := conn.Do("SET", s.recordKey(rec.SourceTxID), recJSON); err != nil {
		s.client.log.Error().Err(err).Msg("error Redis SET")
		return err
	}

	for _, status := range types.RecordStatuses {
		if status == rec.Status {
			continue
		}
		if _, err := conn.Do("SREM", s.statusSetKey(status), rec.SourceTxID); err != nil {
			s.client.log.Error().Err(err).Msg("error Redis SREM")
			return err
		}
	}

	if _, err := conn.Do("SADD", s.statusSetKey(rec.Status), rec.SourceTxID); err != nil {
		s.client.log.Error().Err(err).Msg("error Redis SADD")
		return err
	}
	return nil
}

// scans every record of the status set, O(n) in the set size
func (s *LedgerStore) ListRecords(ctx context.Context, status types.RecordStatus) ([]*types.ProcessedRecord, error) {
	conn, err := s.client.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	recs := make([]*types.ProcessedRecord, 0)
	var cursor int64

	for {
		values, err := redis.Values(conn.Do("SSCAN", s.statusSetKey(status), cursor))
		if err != nil {
			return nil, err
		}

		var ids []string
		if _, err := redis.Scan(values, &cursor, &ids); err != nil {
			return nil, err
		}

		for _, id := range ids {
			rec, err := s.getRecord(conn, s.recordKey(id))
			if errors.Is(err, types.ErrNotFound) {
				s.client.log.Warn().Str("sourceTxId", id).Msg("status set references a missing record")
				continue
			}
			if err != nil {
				return nil, err
			}
			if rec.Status == status {
				recs = append(recs, rec)
			}
		}

		if cursor == 0 {
			break
		}
	}

	return recs, nil
}
