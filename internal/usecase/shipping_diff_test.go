package usecase

import (
	"fmt"
	"testing"

	"shipzone-sync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func euZone() domain.Zone {
	return zone(5, "EU", 0,
		[]domain.Location{country("DE")},
		method(10, "flat_rate", true, 0, map[string]interface{}{"rate": 5}),
	)
}

func TestDiffZones_IdenticalZoneYieldsNothing(t *testing.T) {
	server := []domain.Zone{euZone(), restOfWorld()}
	client := domain.CloneZones(server)

	ops, err := DiffZones(client, server)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDiffZones_DisabledMethod(t *testing.T) {
	server := []domain.Zone{euZone(), restOfWorld()}
	client := domain.CloneZones(server)
	client[0].Methods[0].Enabled = false

	ops, err := DiffZones(client, server)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	op := ops[0]
	assert.Equal(t, domain.ActionUpdateMethod, op.Action)
	assert.Equal(t, int64(5), op.ZoneID)
	assert.Equal(t, int64(10), op.ID)
	assert.Equal(t, domain.MethodUpdate{
		Enabled:  false,
		Order:    0,
		Settings: map[string]interface{}{"rate": 5},
	}, op.Payload)
}

func TestDiffZones_NewZoneWithNewMethod(t *testing.T) {
	server := []domain.Zone{restOfWorld()}
	client := []domain.Zone{
		newZone("zone-key", "Asia", nil, pendingMethod("method-key", "free_shipping", nil)),
		restOfWorld(),
	}

	ops, err := DiffZones(client, server)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	add := ops[0]
	assert.Equal(t, domain.ActionAddZone, add.Action)
	assert.Equal(t, "zone-key", add.Ref)
	assert.Equal(t, domain.ZoneInfo{Name: "Asia"}, add.Payload)
	assert.Equal(t, 2, add.Dependents())

	// No locations on either side, so only the method is produced.
	children := expand(add, 42)
	require.Len(t, children, 1)
	assert.Equal(t, domain.ActionAddMethod, children[0].Action)
	assert.Equal(t, int64(42), children[0].ZoneID)
	assert.Equal(t, "method-key", children[0].Ref)
	assert.Equal(t, domain.MethodCreate{MethodID: "free_shipping"}, children[0].Payload)

	settings := expand(children[0], 7)
	require.Len(t, settings, 1)
	assert.Equal(t, domain.ActionUpdateMethod, settings[0].Action)
	assert.Equal(t, int64(42), settings[0].ZoneID)
	assert.Equal(t, int64(7), settings[0].ID)
	assert.Equal(t, domain.MethodUpdate{
		Enabled:  true,
		Settings: map[string]interface{}{},
	}, settings[0].Payload)
}

func TestDiffZones_NewZoneWithLocations(t *testing.T) {
	server := []domain.Zone{restOfWorld()}
	client := []domain.Zone{
		newZone("k", "Nordics", []domain.Location{country("SE"), country("NO")}),
		restOfWorld(),
	}

	ops, err := DiffZones(client, server)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	children := expand(ops[0], 3)
	require.Len(t, children, 1)
	assert.Equal(t, domain.ActionUpdateLocations, children[0].Action)
	assert.Equal(t, int64(3), children[0].ZoneID)
	assert.Equal(t, []domain.Location{country("SE"), country("NO")}, children[0].Payload)
}

func TestDiffZones_ServerOnlyZoneIsDeleted(t *testing.T) {
	server := []domain.Zone{euZone(), restOfWorld()}
	client := []domain.Zone{restOfWorld()}

	ops, err := DiffZones(client, server)
	require.NoError(t, err)
	assert.Equal(t, []domain.Operation{{Action: domain.ActionDeleteZone, ZoneID: 5}}, ops)
}

func TestDiffZones_ZoneFields(t *testing.T) {
	server := []domain.Zone{euZone(), restOfWorld()}

	tests := []struct {
		name   string
		mutate func(z *domain.Zone)
		want   []domain.Operation
	}{
		{
			name:   "rename",
			mutate: func(z *domain.Zone) { z.Name = "Europe" },
			want: []domain.Operation{{
				Action:  domain.ActionUpdateZone,
				ZoneID:  5,
				Payload: domain.ZoneInfo{Name: "Europe"},
			}},
		},
		{
			name:   "reorder",
			mutate: func(z *domain.Zone) { z.Order = 3 },
			want: []domain.Operation{{
				Action:  domain.ActionUpdateZone,
				ZoneID:  5,
				Payload: domain.ZoneInfo{Name: "EU", Order: 3},
			}},
		},
		{
			name:   "add location",
			mutate: func(z *domain.Zone) { z.Locations = append(z.Locations, country("FR")) },
			want: []domain.Operation{{
				Action:  domain.ActionUpdateLocations,
				ZoneID:  5,
				Payload: []domain.Location{country("DE"), country("FR")},
			}},
		},
		{
			name:   "clear locations",
			mutate: func(z *domain.Zone) { z.Locations = nil },
			want: []domain.Operation{{
				Action:  domain.ActionUpdateLocations,
				ZoneID:  5,
				Payload: []domain.Location{},
			}},
		},
		{
			name:   "remove method",
			mutate: func(z *domain.Zone) { z.Methods = nil },
			want: []domain.Operation{{
				Action: domain.ActionDeleteMethod,
				ZoneID: 5,
				ID:     10,
			}},
		},
		{
			name:   "change setting",
			mutate: func(z *domain.Zone) { z.Methods[0].Settings["rate"] = 7 },
			want: []domain.Operation{{
				Action: domain.ActionUpdateMethod,
				ZoneID: 5,
				ID:     10,
				Payload: domain.MethodUpdate{
					Enabled:  true,
					Settings: map[string]interface{}{"rate": 7},
				},
			}},
		},
		{
			name:   "reorder method",
			mutate: func(z *domain.Zone) { z.Methods[0].Order = 2 },
			want: []domain.Operation{{
				Action: domain.ActionUpdateMethod,
				ZoneID: 5,
				ID:     10,
				Payload: domain.MethodUpdate{
					Enabled:  true,
					Order:    2,
					Settings: map[string]interface{}{"rate": 5},
				},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := domain.CloneZones(server)
			tt.mutate(&client[0])

			ops, err := DiffZones(client, server)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stripSubOperations(ops))
		})
	}
}

func TestDiffZones_AddMethodToExistingZone(t *testing.T) {
	server := []domain.Zone{euZone(), restOfWorld()}
	client := domain.CloneZones(server)
	client[0].Methods = append(client[0].Methods, pendingMethod("pickup", "local_pickup", map[string]interface{}{"cost": "2"}))

	ops, err := DiffZones(client, server)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.ActionAddMethod, ops[0].Action)
	assert.Equal(t, int64(5), ops[0].ZoneID)

	children := expand(ops[0], 11)
	require.Len(t, children, 1)
	assert.Equal(t, domain.MethodUpdate{
		Enabled:  true,
		Settings: map[string]interface{}{"cost": "2"},
	}, children[0].Payload)
}

func TestDiffZones_RestOfWorldOnlySyncsMethods(t *testing.T) {
	server := []domain.Zone{restOfWorld(method(1, "flat_rate", true, 0, nil))}
	client := domain.CloneZones(server)
	client[0].Name = "Everywhere"
	client[0].Locations = []domain.Location{country("US")}
	client[0].Methods = append(client[0].Methods, pendingMethod("k", "free_shipping", nil))
	client[0].Methods[0].Enabled = false

	ops, err := DiffZones(client, server)
	require.NoError(t, err)

	actions := make([]domain.Action, len(ops))
	for i, op := range ops {
		actions[i] = op.Action
		assert.Equal(t, domain.RestOfWorldZoneID, op.ZoneID)
	}
	assert.Equal(t, []domain.Action{domain.ActionAddMethod, domain.ActionUpdateMethod}, actions)
}

func TestDiffZones_MissingRestOfWorld(t *testing.T) {
	withRestOfWorld := []domain.Zone{euZone(), restOfWorld()}
	withoutRestOfWorld := []domain.Zone{euZone()}

	_, err := DiffZones(withRestOfWorld, withoutRestOfWorld)
	assert.ErrorIs(t, err, domain.ErrRestOfWorldMissing)

	_, err = DiffZones(withoutRestOfWorld, withRestOfWorld)
	assert.ErrorIs(t, err, domain.ErrRestOfWorldDeleted)
}

func TestDiffZones_OrderIndependent(t *testing.T) {
	server := []domain.Zone{
		restOfWorld(method(1, "flat_rate", true, 0, nil)),
		zone(2, "North", 0, []domain.Location{country("SE")}, method(20, "flat_rate", true, 0, nil)),
		zone(3, "South", 1, []domain.Location{country("ES")}),
		zone(4, "East", 2, nil, method(40, "free_shipping", true, 0, nil), method(41, "flat_rate", false, 1, nil)),
	}
	client := []domain.Zone{
		zone(4, "East", 2, nil, method(41, "flat_rate", true, 1, nil)),
		newZone("west", "West", []domain.Location{country("PT")}),
		zone(2, "Norden", 0, []domain.Location{country("NO"), country("SE")}, method(20, "flat_rate", true, 0, nil)),
		restOfWorld(),
	}

	base, err := DiffZones(client, server)
	require.NoError(t, err)
	want := describe(base)
	require.NotEmpty(t, want)

	permutations := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, p := range permutations {
		shuffledClient := make([]domain.Zone, len(client))
		shuffledServer := make([]domain.Zone, len(server))
		for i, j := range p {
			shuffledClient[i] = client[j]
			shuffledServer[i] = server[j]
		}

		ops, err := DiffZones(shuffledClient, shuffledServer)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, describe(ops), "permutation %v", p)
	}
}

func TestDiffZones_DoesNotMutateInput(t *testing.T) {
	server := []domain.Zone{
		zone(9, "B", 0, nil),
		zone(3, "A", 1, nil, method(31, "flat_rate", true, 0, nil), method(30, "flat_rate", true, 1, nil)),
		restOfWorld(),
	}
	snapshot := domain.CloneZones(server)

	_, err := DiffZones([]domain.Zone{restOfWorld()}, server)
	require.NoError(t, err)
	assert.Equal(t, snapshot, server)
}

func TestSameLocations_Symmetric(t *testing.T) {
	tests := []struct {
		name string
		a, b []domain.Location
		same bool
	}{
		{"both empty", nil, []domain.Location{}, true},
		{"reordered", []domain.Location{country("DE"), country("FR")}, []domain.Location{country("FR"), country("DE")}, true},
		{"extra", []domain.Location{country("DE")}, []domain.Location{country("DE"), country("FR")}, false},
		{"different type", []domain.Location{country("US")}, []domain.Location{{Type: domain.LocationTypeState, Code: "US"}}, false},
		{"duplicate", []domain.Location{country("DE"), country("DE")}, []domain.Location{country("DE")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.same, sameLocations(tt.a, tt.b))
			assert.Equal(t, tt.same, sameLocations(tt.b, tt.a))

			forward := syncLocations(tt.a, tt.b)(1)
			backward := syncLocations(tt.b, tt.a)(1)
			assert.Equal(t, len(forward), len(backward))
			for _, op := range append(forward, backward...) {
				assert.Equal(t, domain.ActionUpdateLocations, op.Action)
			}
		})
	}
}

// describe flattens operations, including one level of resolved
// sub-operations, into comparable strings.
func describe(ops []domain.Operation) []string {
	var out []string
	for _, op := range ops {
		out = append(out, fmt.Sprintf("%s ref=%s %v", op, op.Ref, op.Payload))
		for _, child := range expand(op, 100) {
			out = append(out, fmt.Sprintf("  %s ref=%s %v", child, child.Ref, child.Payload))
		}
	}
	return out
}
