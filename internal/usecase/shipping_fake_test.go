package usecase

import (
	"context"
	"errors"
	"sync"

	"shipzone-sync/internal/domain"
)

var errStoreDown = errors.New("store unavailable")

// fakeShippingAPI is an in-memory store. Created zones and methods get
// sequential ids starting at nextID.
type fakeShippingAPI struct {
	mu       sync.Mutex
	zones    []domain.Zone
	catalog  []domain.ShippingMethodType
	nextID   int64
	executed []domain.Operation

	// failExecute rejects matching operations.
	failExecute func(op domain.Operation) error
	// failList rejects list calls by resource and zone id.
	failList func(resource string, zoneID int64) error
	// beforeExecute runs before an operation is handled, without the lock.
	beforeExecute func(op domain.Operation)
	// beforeList runs before a list call is handled, without the lock.
	beforeList func(resource string, zoneID int64)

	catalogCalls int
}

func newFakeShippingAPI(zones ...domain.Zone) *fakeShippingAPI {
	return &fakeShippingAPI{
		zones:  domain.CloneZones(zones),
		nextID: 100,
		catalog: []domain.ShippingMethodType{
			{ID: "flat_rate", Title: "Flat rate"},
			{ID: "free_shipping", Title: "Free shipping"},
			{ID: "local_pickup", Title: "Local pickup"},
		},
	}
}

// listStart runs the hooks of a list call. It must be called before f.mu is
// taken.
func (f *fakeShippingAPI) listStart(ctx context.Context, resource string, zoneID int64) error {
	if f.beforeList != nil {
		f.beforeList(resource, zoneID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failList == nil {
		return nil
	}
	return f.failList(resource, zoneID)
}

func (f *fakeShippingAPI) ListZones(ctx context.Context) ([]domain.Zone, error) {
	if err := f.listStart(ctx, domain.FetchResourceZones, 0); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Zone, len(f.zones))
	for i, z := range f.zones {
		out[i] = domain.Zone{ID: domain.Int64Ptr(*z.ID), Name: z.Name, Order: z.Order}
	}
	return out, nil
}

func (f *fakeShippingAPI) ListZoneLocations(ctx context.Context, zoneID int64) ([]domain.Location, error) {
	if err := f.listStart(ctx, domain.FetchResourceLocations, zoneID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if z := findZone(f.zones, zoneID); z != nil {
		return append([]domain.Location{}, z.Locations...), nil
	}
	return []domain.Location{}, nil
}

func (f *fakeShippingAPI) ListZoneMethods(ctx context.Context, zoneID int64) ([]domain.Method, error) {
	if err := f.listStart(ctx, domain.FetchResourceMethods, zoneID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if z := findZone(f.zones, zoneID); z != nil {
		return domain.CloneZones([]domain.Zone{*z})[0].Methods, nil
	}
	return []domain.Method{}, nil
}

func (f *fakeShippingAPI) ListShippingMethods(ctx context.Context) ([]domain.ShippingMethodType, error) {
	f.mu.Lock()
	f.catalogCalls++
	f.mu.Unlock()
	if err := f.listStart(ctx, domain.FetchResourceCatalog, 0); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ShippingMethodType(nil), f.catalog...), nil
}

func (f *fakeShippingAPI) Execute(ctx context.Context, op domain.Operation) (*domain.OperationResult, error) {
	if f.beforeExecute != nil {
		f.beforeExecute(op)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.executed = append(f.executed, op)
	if f.failExecute != nil {
		if err := f.failExecute(op); err != nil {
			return nil, err
		}
	}

	switch op.Action {
	case domain.ActionAddZone:
		f.nextID++
		info := op.Payload.(domain.ZoneInfo)
		z := domain.Zone{
			ID:        domain.Int64Ptr(f.nextID),
			Name:      info.Name,
			Order:     info.Order,
			Locations: []domain.Location{},
			Methods:   []domain.Method{},
		}
		f.zones = append(f.zones, z)
		return &domain.OperationResult{ID: f.nextID, Zone: &z}, nil

	case domain.ActionUpdateZone:
		z := findZone(f.zones, op.ZoneID)
		if z == nil {
			return nil, errors.New("zone not found")
		}
		info := op.Payload.(domain.ZoneInfo)
		z.Name, z.Order = info.Name, info.Order
		return &domain.OperationResult{ID: op.ZoneID}, nil

	case domain.ActionDeleteZone:
		f.zones = removeZone(f.zones, op.ZoneID)
		return &domain.OperationResult{ID: op.ZoneID}, nil

	case domain.ActionAddMethod:
		z := findZone(f.zones, op.ZoneID)
		if z == nil {
			return nil, errors.New("zone not found")
		}
		f.nextID++
		m := domain.Method{
			ID:       domain.Int64Ptr(f.nextID),
			MethodID: op.Payload.(domain.MethodCreate).MethodID,
			Enabled:  true,
			Order:    len(z.Methods),
			Settings: map[string]interface{}{},
		}
		z.Methods = append(z.Methods, m)
		res := m.Clone()
		return &domain.OperationResult{ID: f.nextID, Method: &res}, nil

	case domain.ActionUpdateMethod:
		z := findZone(f.zones, op.ZoneID)
		if z == nil {
			return nil, errors.New("zone not found")
		}
		m := findMethod(z.Methods, op.ID)
		if m == nil {
			return nil, errors.New("method not found")
		}
		update := op.Payload.(domain.MethodUpdate)
		m.Enabled, m.Order = update.Enabled, update.Order
		m.Settings = domain.Method{Settings: update.Settings}.Clone().Settings
		res := m.Clone()
		return &domain.OperationResult{ID: op.ID, Method: &res}, nil

	case domain.ActionDeleteMethod:
		if z := findZone(f.zones, op.ZoneID); z != nil {
			z.Methods = removeMethod(z.Methods, op.ID)
		}
		return &domain.OperationResult{ID: op.ID}, nil

	case domain.ActionUpdateLocations:
		z := findZone(f.zones, op.ZoneID)
		if z == nil {
			return nil, errors.New("zone not found")
		}
		z.Locations = append([]domain.Location{}, op.Payload.([]domain.Location)...)
		return &domain.OperationResult{ID: op.ZoneID}, nil
	}
	return nil, domain.ErrUnknownAction
}

func (f *fakeShippingAPI) executedActions() []domain.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Action, len(f.executed))
	for i, op := range f.executed {
		out[i] = op.Action
	}
	return out
}

func (f *fakeShippingAPI) storeZones() []domain.Zone {
	f.mu.Lock()
	defer f.mu.Unlock()
	zones := domain.CloneZones(f.zones)
	sortZones(zones)
	return zones
}
