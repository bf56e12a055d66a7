package ledger

import (
	"context"
	"sort"
	"sync"

	"gocsprbridge/types"
)

// Memory keeps everything for the process lifetime, nothing is ever deleted
type Memory struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	records map[string]*types.ProcessedRecord
}

func NewMemory() *Memory {
	return &Memory{
		seen:    make(map[string]struct{}),
		records: make(map[string]*types.ProcessedRecord),
	}
}

func (m *Memory) Claim(_ context.Context, sourceTxID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[sourceTxID]; ok {
		return false, nil
	}
	m.seen[sourceTxID] = struct{}{}
	return true, nil
}

func (m *Memory) Mark(_ context.Context, sourceTxID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seen[sourceTxID] = struct{}{}
	return nil
}

func (m *Memory) GetRecord(_ context.Context, sourceTxID string) (*types.ProcessedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sourceTxID]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) PutRecord(_ context.Context, rec *types.ProcessedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.records[rec.SourceTxID] = &cp
	return nil
}

func (m *Memory) ListRecords(_ context.Context, status types.RecordStatus) ([]*types.ProcessedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]*types.ProcessedRecord, 0)
	for _, rec := range m.records {
		if rec.Status == status {
			cp := *rec
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].TsCreated < res[j].TsCreated })
	return res, nil
}

// MemoryCursors holds the last scanned position per chain
type MemoryCursors struct {
	mu  sync.Mutex
	pos map[types.ChainID]uint64
}

func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{pos: make(map[types.ChainID]uint64)}
}

func (c *MemoryCursors) GetScannedBlock(_ context.Context, chain types.ChainID) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pos[chain]
	return p, ok, nil
}

func (c *MemoryCursors) SetScannedBlock(_ context.Context, chain types.ChainID, pos uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pos[chain] = pos
	return nil
}
