package usecase

import (
	"sort"

	"shipzone-sync/internal/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// nil and empty settings/lists are the same value for the store.
var equalOpts = cmp.Options{cmpopts.EquateEmpty()}

// DiffZones computes the operations that bring the store from serverZones to
// zones. It has no side effects. Both lists must contain the rest-of-world
// zone.
func DiffZones(zones, serverZones []domain.Zone) ([]domain.Operation, error) {
	restOfWorldServer, otherServer := splitRestOfWorld(serverZones)
	if restOfWorldServer == nil {
		return nil, domain.ErrRestOfWorldMissing
	}
	restOfWorld, others := splitRestOfWorld(zones)
	if restOfWorld == nil {
		return nil, domain.ErrRestOfWorldDeleted
	}

	var newZones []domain.Zone
	byID := make(map[int64]domain.Zone, len(others))
	for _, z := range others {
		if z.IsNew() {
			newZones = append(newZones, z)
			continue
		}
		byID[*z.ID] = z
	}

	sort.SliceStable(otherServer, func(i, j int) bool {
		return *otherServer[i].ID < *otherServer[j].ID
	})

	var ops []domain.Operation
	for _, z := range newZones {
		ops = append(ops, addZoneOperations(z)...)
	}
	for _, serverZone := range otherServer {
		z, ok := byID[*serverZone.ID]
		if !ok {
			ops = append(ops, domain.Operation{
				Action: domain.ActionDeleteZone,
				ZoneID: *serverZone.ID,
			})
			continue
		}
		ops = append(ops, updateZoneOperations(z, serverZone)...)
	}

	// Rest of the world can't have a custom name or locations, only methods.
	ops = append(ops, syncMethods(restOfWorld.Methods, restOfWorldServer.Methods)(domain.RestOfWorldZoneID)...)
	return ops, nil
}

// splitRestOfWorld returns the rest-of-world zone and a copy of the others.
func splitRestOfWorld(zones []domain.Zone) (*domain.Zone, []domain.Zone) {
	var row *domain.Zone
	others := make([]domain.Zone, 0, len(zones))
	for i := range zones {
		if zones[i].IsRestOfWorld() {
			if row == nil {
				row = &zones[i]
			}
			continue
		}
		others = append(others, zones[i])
	}
	return row, others
}

func addZoneOperations(z domain.Zone) []domain.Operation {
	return []domain.Operation{{
		Action:  domain.ActionAddZone,
		Ref:     z.Key,
		Payload: z.Info(),
		SubOperations: []domain.SubOperation{
			syncMethods(z.Methods, nil),
			syncLocations(z.Locations, nil),
		},
	}}
}

func updateZoneOperations(z, serverZone domain.Zone) []domain.Operation {
	zoneID := *serverZone.ID

	var ops []domain.Operation
	if !cmp.Equal(z.Info(), serverZone.Info(), equalOpts) {
		ops = append(ops, domain.Operation{
			Action:  domain.ActionUpdateZone,
			ZoneID:  zoneID,
			Payload: z.Info(),
		})
	}
	ops = append(ops, syncMethods(z.Methods, serverZone.Methods)(zoneID)...)
	ops = append(ops, syncLocations(z.Locations, serverZone.Locations)(zoneID)...)
	return ops
}

// syncMethods is deferred on the zone id because a new zone has none yet.
func syncMethods(methods, serverMethods []domain.Method) func(zoneID int64) []domain.Operation {
	return func(zoneID int64) []domain.Operation {
		var newMethods []domain.Method
		byID := make(map[int64]domain.Method, len(methods))
		for _, m := range methods {
			if m.IsNew() {
				newMethods = append(newMethods, m)
				continue
			}
			byID[*m.ID] = m
		}

		server := append([]domain.Method(nil), serverMethods...)
		sort.SliceStable(server, func(i, j int) bool {
			return *server[i].ID < *server[j].ID
		})

		var ops []domain.Operation
		for _, m := range newMethods {
			ops = append(ops, addMethodOperations(m, zoneID)...)
		}
		for _, serverMethod := range server {
			m, ok := byID[*serverMethod.ID]
			if !ok {
				ops = append(ops, domain.Operation{
					Action: domain.ActionDeleteMethod,
					ZoneID: zoneID,
					ID:     *serverMethod.ID,
				})
				continue
			}
			if !methodsEqual(m, serverMethod) {
				ops = append(ops, updateMethodOperation(m, zoneID, *serverMethod.ID))
			}
		}
		return ops
	}
}

// addMethodOperations creates the instance first; settings can only be sent
// once the store has assigned an instance id.
func addMethodOperations(m domain.Method, zoneID int64) []domain.Operation {
	return []domain.Operation{{
		Action:  domain.ActionAddMethod,
		ZoneID:  zoneID,
		Ref:     m.Key,
		Payload: domain.MethodCreate{MethodID: m.MethodID},
		SubOperations: []domain.SubOperation{
			func(instanceID int64) []domain.Operation {
				return []domain.Operation{updateMethodOperation(m, zoneID, instanceID)}
			},
		},
	}}
}

func updateMethodOperation(m domain.Method, zoneID, instanceID int64) domain.Operation {
	settings := m.Settings
	if settings == nil {
		settings = map[string]interface{}{}
	}
	return domain.Operation{
		Action: domain.ActionUpdateMethod,
		ZoneID: zoneID,
		ID:     instanceID,
		Ref:    m.Key,
		Payload: domain.MethodUpdate{
			Enabled:  m.Enabled,
			Order:    m.Order,
			Settings: settings,
		},
	}
}

type methodFields struct {
	MethodID string
	Enabled  bool
	Order    int
	Settings map[string]interface{}
}

func methodsEqual(a, b domain.Method) bool {
	return cmp.Equal(
		methodFields{a.MethodID, a.Enabled, a.Order, a.Settings},
		methodFields{b.MethodID, b.Enabled, b.Order, b.Settings},
		equalOpts,
	)
}

// syncLocations replaces the whole location set when it differs in any
// element, ignoring order.
func syncLocations(locations, serverLocations []domain.Location) func(zoneID int64) []domain.Operation {
	return func(zoneID int64) []domain.Operation {
		if sameLocations(locations, serverLocations) {
			return nil
		}
		payload := append([]domain.Location{}, locations...)
		return []domain.Operation{{
			Action:  domain.ActionUpdateLocations,
			ZoneID:  zoneID,
			Payload: payload,
		}}
	}
}

// sameLocations reports whether the symmetric difference of a and b is empty.
func sameLocations(a, b []domain.Location) bool {
	inA := make(map[domain.Location]struct{}, len(a))
	for _, l := range a {
		inA[l] = struct{}{}
	}
	inB := make(map[domain.Location]struct{}, len(b))
	for _, l := range b {
		inB[l] = struct{}{}
		if _, ok := inA[l]; !ok {
			return false
		}
	}
	for l := range inA {
		if _, ok := inB[l]; !ok {
			return false
		}
	}
	return true
}
