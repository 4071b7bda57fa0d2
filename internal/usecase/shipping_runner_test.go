package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shipzone-sync/internal/domain"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(actions []domain.Action, a domain.Action) int {
	for i, x := range actions {
		if x == a {
			return i
		}
	}
	return -1
}

func TestRunner_SubOperationsFollowParent(t *testing.T) {
	api := newFakeShippingAPI(restOfWorld())
	runner := NewRunner(api, 4)

	client := []domain.Zone{
		newZone("zone", "Asia", []domain.Location{country("JP")},
			pendingMethod("m", "flat_rate", map[string]interface{}{"cost": "5"})),
		restOfWorld(),
	}
	ops, err := DiffZones(client, api.storeZones())
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), "site", ops, nil)
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Equal(t, "site", report.SiteID)
	assert.NotEmpty(t, report.ID)
	assert.Len(t, report.Applied, 4)

	actions := api.executedActions()
	require.Len(t, actions, 4)
	assert.Equal(t, domain.ActionAddZone, actions[0])
	assert.Less(t, indexOf(actions, domain.ActionAddMethod), indexOf(actions, domain.ActionUpdateMethod))
	assert.Contains(t, actions, domain.ActionUpdateLocations)

	// Everything landed in the zone the store created.
	zones := api.storeZones()
	require.Len(t, zones, 2)
	created := zones[0]
	assert.Equal(t, int64(101), *created.ID)
	assert.Equal(t, []domain.Location{country("JP")}, created.Locations)
	require.Len(t, created.Methods, 1)
	assert.Equal(t, "flat_rate", created.Methods[0].MethodID)
	assert.Equal(t, map[string]interface{}{"cost": "5"}, created.Methods[0].Settings)
}

func TestRunner_BestEffort(t *testing.T) {
	api := newFakeShippingAPI(
		zone(1, "A", 0, nil),
		zone(2, "B", 1, nil),
		zone(3, "C", 2, nil),
		restOfWorld(),
	)
	api.failExecute = func(op domain.Operation) error {
		if op.Action == domain.ActionUpdateZone && op.ZoneID != 2 {
			return errStoreDown
		}
		return nil
	}
	runner := NewRunner(api, 2)

	ops := []domain.Operation{
		{Action: domain.ActionUpdateZone, ZoneID: 1, Payload: domain.ZoneInfo{Name: "A1"}},
		{Action: domain.ActionUpdateZone, ZoneID: 2, Payload: domain.ZoneInfo{Name: "B1", Order: 1}},
		{Action: domain.ActionUpdateZone, ZoneID: 3, Payload: domain.ZoneInfo{Name: "C1", Order: 2}},
	}

	report, err := runner.Run(context.Background(), "site", ops, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)

	assert.False(t, report.Succeeded())
	assert.Len(t, report.Failures, 2)
	require.Len(t, report.Applied, 1)
	assert.Equal(t, int64(2), report.Applied[0].ZoneID)
	assert.Equal(t, "B1", api.storeZones()[1].Name)
}

func TestRunner_FailedParentSkipsDependents(t *testing.T) {
	api := newFakeShippingAPI(restOfWorld())
	api.failExecute = func(op domain.Operation) error {
		if op.Action == domain.ActionAddZone {
			return errStoreDown
		}
		return nil
	}
	runner := NewRunner(api, 0)

	client := []domain.Zone{
		newZone("zone", "Asia", []domain.Location{country("JP")}, pendingMethod("m", "flat_rate", nil)),
		restOfWorld(),
	}
	ops, err := DiffZones(client, api.storeZones())
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), "site", ops, nil)
	require.Error(t, err)
	assert.Empty(t, report.Applied)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 2, report.Failures[0].SkippedDependents)
	assert.Equal(t, errStoreDown.Error(), report.Failures[0].Error)
	assert.Equal(t, []domain.Action{domain.ActionAddZone}, api.executedActions())
}

func TestRunner_OnAppliedSeesEveryConfirmation(t *testing.T) {
	api := newFakeShippingAPI(zone(1, "A", 0, nil, method(10, "flat_rate", true, 0, nil)), restOfWorld())
	runner := NewRunner(api, 4)

	ops := []domain.Operation{
		{Action: domain.ActionDeleteMethod, ZoneID: 1, ID: 10},
		{
			Action:  domain.ActionAddMethod,
			ZoneID:  1,
			Payload: domain.MethodCreate{MethodID: "free_shipping"},
			SubOperations: []domain.SubOperation{func(id int64) []domain.Operation {
				return []domain.Operation{{
					Action:  domain.ActionUpdateMethod,
					ZoneID:  1,
					ID:      id,
					Payload: domain.MethodUpdate{Enabled: false, Settings: map[string]interface{}{}},
				}}
			}},
		},
	}

	var mu sync.Mutex
	seen := map[domain.Action]int64{}
	onApplied := func(op domain.Operation, res *domain.OperationResult) {
		mu.Lock()
		defer mu.Unlock()
		seen[op.Action] = res.ID
	}

	_, err := runner.Run(context.Background(), "site", ops, onApplied)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Action]int64{
		domain.ActionDeleteMethod: 10,
		domain.ActionAddMethod:    101,
		domain.ActionUpdateMethod: 101,
	}, seen)
}

func TestRunner_CancelledContext(t *testing.T) {
	api := newFakeShippingAPI(zone(1, "A", 0, nil), restOfWorld())
	runner := NewRunner(api, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx, "site", []domain.Operation{
		{Action: domain.ActionDeleteZone, ZoneID: 1},
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Failures, 1)
	assert.Empty(t, api.executedActions())
}

func TestRunner_ConcurrencyLimit(t *testing.T) {
	var zones []domain.Zone
	var ops []domain.Operation
	for i := int64(1); i <= 12; i++ {
		zones = append(zones, zone(i, "Z", int(i), nil))
		ops = append(ops, domain.Operation{Action: domain.ActionDeleteZone, ZoneID: i})
	}
	api := newFakeShippingAPI(append(zones, restOfWorld())...)

	var inFlight, peak int32
	api.beforeExecute = func(op domain.Operation) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}

	report, err := NewRunner(api, 3).Run(context.Background(), "site", ops, nil)
	require.NoError(t, err)
	assert.Len(t, report.Applied, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Len(t, api.storeZones(), 1)
}
