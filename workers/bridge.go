package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gocsprbridge/types"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Route is one direction: a watcher on the source chain feeding a pipeline to the destination
type Route struct {
	Watcher  *ChainWatcher
	Pipeline *Pipeline
}

// Bridge runs every route concurrently, each route sequentially
type Bridge struct {
	routes   []Route
	gateways map[types.ChainID]Gateway
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started time.Time
	stopped bool
	tracked map[string]types.TrackedTx
}

func NewBridge(routes []Route, gateways map[types.ChainID]Gateway, log zerolog.Logger) *Bridge {
	return &Bridge{
		routes:   routes,
		gateways: gateways,
		log:      log.With().Str("component", "bridge").Logger(),
		tracked:  make(map[string]types.TrackedTx),
	}
}

var ErrAlreadyStarted = errors.New("bridge already started")

// Start returns once every route is running. Cancelling ctx is the same as Stop
// except that the in-flight confirmation polling still completes.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.group != nil {
		return ErrAlreadyStarted
	}

	watchCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(watchCtx)
	b.cancel = cancel
	b.group = group
	b.started = time.Now()

	for _, route := range b.routes {
		route := route
		group.Go(func() error {
			log := b.log.With().Str("direction", route.Pipeline.Direction().String()).Logger()
			route.Pipeline.Reconcile(groupCtx)

			// unbuffered, the watcher does not scan ahead of the pipeline
			events := make(chan types.DomainEvent)
			routeGroup, routeCtx := errgroup.WithContext(groupCtx)
			routeGroup.Go(func() error { return route.Watcher.Run(routeCtx, events) })
			routeGroup.Go(func() error { return route.Pipeline.Run(routeCtx, events) })

			log.Info().Msg("direction started")
			err := routeGroup.Wait()
			log.Info().Msg("direction stopped")
			return err
		})
	}
	b.log.Info().Int("directions", len(b.routes)).Msg("bridge started")
	return nil
}

// Stop stops scanning and waits for in-flight submissions to reach a final status
func (b *Bridge) Stop() error {
	b.mu.Lock()
	cancel, group := b.cancel, b.group
	if group != nil {
		b.stopped = true
	}
	b.mu.Unlock()
	if group == nil {
		return nil
	}

	b.log.Info().Msg("stopping bridge, waiting for in-flight submissions")
	cancel()
	err := group.Wait()
	b.log.Info().Msg("bridge stopped")
	return err
}

// Wait blocks until every route has returned
func (b *Bridge) Wait() error {
	b.mu.Lock()
	group := b.group
	b.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

func (b *Bridge) Gateway(chain types.ChainID) (Gateway, bool) {
	g, ok := b.gateways[chain]
	return g, ok
}

func trackKey(chain types.ChainID, txID string) string {
	return string(chain) + ":" + txID
}

// Forward broadcasts a pre-signed source chain transaction and tracks its id
func (b *Bridge) Forward(ctx context.Context, chain types.ChainID, signedTx []byte) (string, error) {
	g, ok := b.Gateway(chain)
	if !ok {
		return "", fmt.Errorf("%w: chain %q", types.ErrNotFound, chain)
	}
	txID, err := g.Broadcast(ctx, signedTx)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.tracked[trackKey(chain, txID)] = types.TrackedTx{Chain: chain, TxID: txID, TsCreated: time.Now().Unix()}
	b.mu.Unlock()
	b.log.Info().Str("chain", string(chain)).Str("txId", txID).Msg("forwarded source transaction")
	return txID, nil
}

// Tracked returns the live result of a forwarded transaction
func (b *Bridge) Tracked(ctx context.Context, chain types.ChainID, txID string) (types.TrackedTx, types.TxResult, error) {
	b.mu.Lock()
	tx, ok := b.tracked[trackKey(chain, txID)]
	b.mu.Unlock()
	if !ok {
		return types.TrackedTx{}, types.TxResult{}, fmt.Errorf("%w: tracked tx %s", types.ErrNotFound, txID)
	}

	g, _ := b.Gateway(chain)
	res, err := g.GetTransactionResult(ctx, txID)
	if err != nil {
		return tx, res, err
	}
	tx.Records, err = b.recordsFrom(ctx, chain, txID)
	return tx, res, err
}

// recordsFrom finds the records of every direction leaving chain whose source is txID.
// An EVM transaction can carry several burns, those ids are txID:logIndex.
func (b *Bridge) recordsFrom(ctx context.Context, chain types.ChainID, txID string) ([]*types.ProcessedRecord, error) {
	res := make([]*types.ProcessedRecord, 0)
	for _, route := range b.routes {
		if route.Pipeline.Direction().Source != chain {
			continue
		}
		for _, status := range types.RecordStatuses {
			recs, err := route.Pipeline.Ledger().Records(ctx, status)
			if err != nil {
				return nil, err
			}
			for _, rec := range recs {
				if rec.SourceTxID == txID || strings.HasPrefix(rec.SourceTxID, txID+":") {
					res = append(res, rec)
				}
			}
		}
	}
	return res, nil
}

func (b *Bridge) State(ctx context.Context) (types.BridgeState, error) {
	b.mu.Lock()
	st := types.BridgeState{Running: b.group != nil && !b.stopped, Routes: make([]types.RouteState, 0, len(b.routes))}
	if st.Running {
		st.Uptime = time.Since(b.started).Truncate(time.Second).String()
	}
	b.mu.Unlock()

	for _, route := range b.routes {
		rs := types.RouteState{
			Direction: route.Pipeline.Direction().String(),
			Head:      route.Watcher.Head(),
			Cursor:    route.Watcher.Cursor(),
			Records:   make(map[string]int),
		}
		for _, status := range types.RecordStatuses {
			recs, err := route.Pipeline.Ledger().Records(ctx, status)
			if err != nil {
				return types.BridgeState{}, err
			}
			rs.Records[string(status)] = len(recs)
		}
		st.Routes = append(st.Routes, rs)
	}
	return st, nil
}

// Route looks up a route by direction key, e.g. casper-ethereum
func (b *Bridge) Route(directionKey string) (Route, bool) {
	for _, route := range b.routes {
		if route.Pipeline.Direction().Key() == directionKey {
			return route, true
		}
	}
	return Route{}, false
}

func (b *Bridge) Records(ctx context.Context, directionKey string, status types.RecordStatus) ([]*types.ProcessedRecord, error) {
	route, ok := b.Route(directionKey)
	if !ok {
		return nil, fmt.Errorf("%w: direction %q", types.ErrNotFound, directionKey)
	}
	return route.Pipeline.Ledger().Records(ctx, status)
}

func (b *Bridge) Record(ctx context.Context, directionKey, sourceTxID string) (*types.ProcessedRecord, error) {
	route, ok := b.Route(directionKey)
	if !ok {
		return nil, fmt.Errorf("%w: direction %q", types.ErrNotFound, directionKey)
	}
	return route.Pipeline.Ledger().Record(ctx, sourceTxID)
}
