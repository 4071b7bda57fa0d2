package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shipzone-sync/internal/domain"
	"shipzone-sync/pkg/cache"
	"shipzone-sync/pkg/logger"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/hashstructure/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ShippingUsecase owns the shipping state of one site: the last confirmed
// server snapshot and the local edit buffer diffed against it on submit.
type ShippingUsecase struct {
	siteID     string
	api        domain.ShippingAPI
	repo       domain.ShippingStateRepository
	runner     *Runner
	cache      cache.CacheService
	catalogTTL time.Duration
	archive    domain.ReportArchive

	// mu serializes load-modify-save cycles on the stored state.
	mu      sync.Mutex
	fetches singleflight.Group

	// A fetch and a submit never overlap: either one would overwrite what
	// the other writes to the snapshot.
	busyMu sync.Mutex
	busy   activity
}

type activity int

const (
	activityIdle activity = iota
	activityFetch
	activitySubmit
)

func (uc *ShippingUsecase) begin(a activity) error {
	uc.busyMu.Lock()
	defer uc.busyMu.Unlock()
	switch uc.busy {
	case activitySubmit:
		return domain.ErrSubmitInProgress
	case activityFetch:
		return domain.ErrFetchInProgress
	}
	uc.busy = a
	return nil
}

func (uc *ShippingUsecase) end() {
	uc.busyMu.Lock()
	uc.busy = activityIdle
	uc.busyMu.Unlock()
}

func (uc *ShippingUsecase) submitting() bool {
	uc.busyMu.Lock()
	defer uc.busyMu.Unlock()
	return uc.busy == activitySubmit
}

// NewShippingUsecase wires the usecase. archive may be nil.
func NewShippingUsecase(
	siteID string,
	api domain.ShippingAPI,
	repo domain.ShippingStateRepository,
	runner *Runner,
	cache cache.CacheService,
	catalogTTL time.Duration,
	archive domain.ReportArchive,
) *ShippingUsecase {
	return &ShippingUsecase{
		siteID:     siteID,
		api:        api,
		repo:       repo,
		runner:     runner,
		cache:      cache,
		catalogTTL: catalogTTL,
		archive:    archive,
	}
}

func (uc *ShippingUsecase) catalogCacheKey() string {
	return fmt.Sprintf("shipping:catalog:%s", uc.siteID)
}

func (uc *ShippingUsecase) loadState(ctx context.Context) (*domain.ShippingState, error) {
	st, err := uc.repo.Get(ctx, uc.siteID)
	if errors.Is(err, domain.ErrStateNotFound) {
		return &domain.ShippingState{SiteID: uc.siteID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shipping state: %w", err)
	}
	return st, nil
}

func (uc *ShippingUsecase) saveState(ctx context.Context, st *domain.ShippingState) error {
	if err := uc.repo.Save(ctx, st); err != nil {
		return fmt.Errorf("failed to save shipping state: %w", err)
	}
	return nil
}

// State returns the current shipping state.
func (uc *ShippingUsecase) State(ctx context.Context) (*domain.ShippingState, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.loadState(ctx)
}

// StateVersion fingerprints the parts of the state an editor renders.
func StateVersion(st *domain.ShippingState) (string, error) {
	view := struct {
		ServerZones []domain.Zone
		Zones       []domain.Zone
		Editing     *domain.ZoneEdit
		Loaded      bool
	}{st.ServerZones, st.Zones, st.Editing, st.Loaded}

	h, err := hashstructure.Hash(view, hashstructure.FormatV2, &hashstructure.HashOptions{ZeroNil: true})
	if err != nil {
		return "", fmt.Errorf("failed to hash shipping state: %w", err)
	}
	return fmt.Sprintf("%x", h), nil
}

// FetchServerData reloads zones, their locations and methods, and the method
// catalog from the store. Each sub-request fails on its own and is reported
// in the FetchReport without aborting its siblings. Concurrent calls share a
// single fetch, which is refused while a submit runs.
func (uc *ShippingUsecase) FetchServerData(ctx context.Context) (*domain.FetchReport, error) {
	v, err, shared := uc.fetches.Do(uc.siteID, func() (interface{}, error) {
		if err := uc.begin(activityFetch); err != nil {
			return nil, err
		}
		defer uc.end()
		// Joined callers wait on this run, so it outlives the caller that started it.
		return uc.fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.WithContext(ctx).Debug().Str("site_id", uc.siteID).Msg("Joined in-flight shipping fetch")
	}
	return v.(*domain.FetchReport), nil
}

func (uc *ShippingUsecase) fetch(ctx context.Context) (*domain.FetchReport, error) {
	log := logger.WithContext(ctx)
	report := &domain.FetchReport{Errors: []*domain.FetchError{}}
	var mu sync.Mutex
	fail := func(resource string, zoneID *int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Errors = append(report.Errors, &domain.FetchError{
			Resource: resource,
			ZoneID:   zoneID,
			Err:      err,
			Message:  err.Error(),
		})
	}

	var (
		zones        []domain.Zone
		zonesFetched bool
		catalog      []domain.ShippingMethodType
	)

	// An explicit fetch always refreshes the catalog.
	uc.cache.Delete(uc.catalogCacheKey())

	g := new(errgroup.Group)
	g.Go(func() error {
		c, err := uc.Catalog(ctx)
		if err != nil {
			fail(domain.FetchResourceCatalog, nil, err)
			return nil
		}
		catalog = c
		return nil
	})
	g.Go(func() error {
		list, err := uc.api.ListZones(ctx)
		if err != nil {
			fail(domain.FetchResourceZones, nil, err)
			return nil
		}
		zonesFetched = true
		zones = list

		sub := new(errgroup.Group)
		for i := range zones {
			z := &zones[i]
			if z.ID == nil {
				continue
			}
			zoneID := *z.ID
			if zoneID != domain.RestOfWorldZoneID {
				sub.Go(func() error {
					locations, err := uc.api.ListZoneLocations(ctx, zoneID)
					if err != nil {
						fail(domain.FetchResourceLocations, domain.Int64Ptr(zoneID), err)
						return nil
					}
					z.Locations = locations
					return nil
				})
			}
			sub.Go(func() error {
				methods, err := uc.api.ListZoneMethods(ctx, zoneID)
				if err != nil {
					fail(domain.FetchResourceMethods, domain.Int64Ptr(zoneID), err)
					return nil
				}
				z.Methods = methods
				return nil
			})
		}
		return sub.Wait()
	})
	_ = g.Wait()

	for _, fe := range report.Errors {
		log.Warn().Err(fe.Err).Str("resource", fe.Resource).Msg("Shipping fetch failed")
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	st, err := uc.loadState(ctx)
	if err != nil {
		return nil, err
	}
	if catalog != nil {
		st.Catalog = catalog
	}
	if zonesFetched {
		for i := range zones {
			if zones[i].Locations == nil {
				zones[i].Locations = []domain.Location{}
			}
			if zones[i].Methods == nil {
				zones[i].Methods = []domain.Method{}
			}
		}
		sortZones(zones)
		report.Zones = len(zones)

		st.ServerZones = zones
		st.Zones = domain.CloneZones(zones)
		st.Editing = nil
		// A snapshot with holes would make the diff wipe what it could not see.
		st.Loaded = !hasSnapshotErrors(report)
		now := time.Now()
		st.FetchedAt = &now
	}
	if err := uc.saveState(ctx, st); err != nil {
		return nil, err
	}

	log.Info().
		Str("site_id", uc.siteID).
		Int("zones", report.Zones).
		Int("errors", len(report.Errors)).
		Msg("Shipping settings fetched")
	return report, nil
}

func hasSnapshotErrors(report *domain.FetchReport) bool {
	for _, fe := range report.Errors {
		if fe.Resource != domain.FetchResourceCatalog {
			return true
		}
	}
	return false
}

// Catalog returns the method types the store offers, cached.
func (uc *ShippingUsecase) Catalog(ctx context.Context) ([]domain.ShippingMethodType, error) {
	key := uc.catalogCacheKey()
	if val, found := uc.cache.Get(key); found {
		return val.([]domain.ShippingMethodType), nil
	}
	catalog, err := uc.api.ListShippingMethods(ctx)
	if err != nil {
		return nil, err
	}
	uc.cache.Set(key, catalog, uc.catalogTTL)
	return catalog, nil
}

// Operations previews what a submit would send.
func (uc *ShippingUsecase) Operations(ctx context.Context) ([]domain.Operation, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	st, err := uc.loadState(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Loaded {
		return nil, domain.ErrSnapshotNotLoaded
	}
	return DiffZones(st.Zones, st.ServerZones)
}

// SubmitChanges diffs the edit buffer against the snapshot and applies the
// result to the store. The snapshot follows every confirmation as it
// arrives. When everything succeeded the edit buffer is rebased onto the
// snapshot; otherwise it is kept, with the ids of created entities filled
// in, so the next submit only sends what is still missing.
//
// The report is returned even when some operations failed; the error then
// aggregates the failures. Once started, a submit runs to completion even if
// ctx is cancelled.
func (uc *ShippingUsecase) SubmitChanges(ctx context.Context) (*domain.SubmitReport, error) {
	if err := uc.begin(activitySubmit); err != nil {
		return nil, err
	}
	defer uc.end()

	ctx = context.WithoutCancel(ctx)
	log := logger.WithContext(ctx)

	uc.mu.Lock()
	st, err := uc.loadState(ctx)
	if err != nil {
		uc.mu.Unlock()
		return nil, err
	}
	if !st.Loaded {
		uc.mu.Unlock()
		return nil, domain.ErrSnapshotNotLoaded
	}
	ops, err := DiffZones(st.Zones, st.ServerZones)
	uc.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var applyErr error
	var applyMu sync.Mutex
	onApplied := func(op domain.Operation, res *domain.OperationResult) {
		uc.mu.Lock()
		defer uc.mu.Unlock()
		cur, err := uc.loadState(ctx)
		if err == nil {
			applyConfirmed(cur, op, res)
			err = uc.saveState(ctx, cur)
		}
		if err != nil {
			applyMu.Lock()
			applyErr = multierror.Append(applyErr, err)
			applyMu.Unlock()
		}
	}

	report, runErr := uc.runner.Run(ctx, uc.siteID, ops, onApplied)

	if uc.archive != nil {
		if url, err := uc.archive.ArchiveReport(ctx, report); err != nil {
			log.Warn().Err(err).Str("report_id", report.ID).Msg("Failed to archive shipping report")
		} else {
			report.ArchiveURL = url
		}
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	cur, err := uc.loadState(ctx)
	if err != nil {
		return report, multierror.Append(runErr, applyErr, err).ErrorOrNil()
	}
	sortZones(cur.ServerZones)
	switch {
	case applyErr != nil:
		// Some confirmations never reached the snapshot, so it no longer
		// matches the store and has to be fetched again.
		cur.Loaded = false
	case report.Succeeded():
		cur.Zones = domain.CloneZones(cur.ServerZones)
		cur.Editing = nil
	}
	now := time.Now()
	cur.SubmittedAt = &now
	cur.LastReport = report
	if err := uc.saveState(ctx, cur); err != nil {
		return report, multierror.Append(runErr, applyErr, err).ErrorOrNil()
	}

	log.Info().
		Str("site_id", uc.siteID).
		Str("report_id", report.ID).
		Int("operations", len(ops)).
		Int("applied", len(report.Applied)).
		Int("failed", len(report.Failures)).
		Msg("Shipping settings submitted")

	return report, multierror.Append(runErr, applyErr).ErrorOrNil()
}
