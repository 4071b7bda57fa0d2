package usecase

import (
	"sort"

	"shipzone-sync/internal/domain"
)

// applyConfirmed folds one confirmed operation into the server snapshot and
// writes ids the store assigned back to the edit-buffer entity that asked
// for them, so a later submit does not create it twice.
func applyConfirmed(st *domain.ShippingState, op domain.Operation, res *domain.OperationResult) {
	switch op.Action {
	case domain.ActionAddZone:
		info, _ := op.Payload.(domain.ZoneInfo)
		zone := domain.Zone{
			ID:        domain.Int64Ptr(res.ID),
			Name:      info.Name,
			Order:     info.Order,
			Locations: []domain.Location{},
			Methods:   []domain.Method{},
		}
		if res.Zone != nil {
			zone.Name = res.Zone.Name
			zone.Order = res.Zone.Order
		}
		st.ServerZones = append(st.ServerZones, zone)
		if z := findZoneByKey(st.Zones, op.Ref); z != nil {
			z.ID = domain.Int64Ptr(res.ID)
		}

	case domain.ActionUpdateZone:
		if z := findZone(st.ServerZones, op.ZoneID); z != nil {
			if info, ok := op.Payload.(domain.ZoneInfo); ok {
				z.Name = info.Name
				z.Order = info.Order
			}
		}

	case domain.ActionDeleteZone:
		st.ServerZones = removeZone(st.ServerZones, op.ZoneID)

	case domain.ActionAddMethod:
		z := findZone(st.ServerZones, op.ZoneID)
		if z == nil {
			return
		}
		method := domain.Method{ID: domain.Int64Ptr(res.ID)}
		if res.Method != nil {
			method = res.Method.Clone()
			method.ID = domain.Int64Ptr(res.ID)
			method.Key = ""
		}
		if create, ok := op.Payload.(domain.MethodCreate); ok && method.MethodID == "" {
			method.MethodID = create.MethodID
		}
		z.Methods = append(z.Methods, method)
		if local := findZone(st.Zones, op.ZoneID); local != nil {
			if m := findMethodByKey(local.Methods, op.Ref); m != nil {
				m.ID = domain.Int64Ptr(res.ID)
			}
		}

	case domain.ActionUpdateMethod:
		z := findZone(st.ServerZones, op.ZoneID)
		if z == nil {
			return
		}
		m := findMethod(z.Methods, op.ID)
		if m == nil {
			return
		}
		if update, ok := op.Payload.(domain.MethodUpdate); ok {
			m.Enabled = update.Enabled
			m.Order = update.Order
			m.Settings = domain.Method{Settings: update.Settings}.Clone().Settings
		}

	case domain.ActionDeleteMethod:
		if z := findZone(st.ServerZones, op.ZoneID); z != nil {
			z.Methods = removeMethod(z.Methods, op.ID)
		}

	case domain.ActionUpdateLocations:
		if z := findZone(st.ServerZones, op.ZoneID); z != nil {
			if locations, ok := op.Payload.([]domain.Location); ok {
				z.Locations = append([]domain.Location{}, locations...)
			}
		}
	}
}

// sortZones orders zones the way the store lists them: by rank, then id,
// with the rest-of-world zone last.
func sortZones(zones []domain.Zone) {
	sort.SliceStable(zones, func(i, j int) bool {
		a, b := zones[i], zones[j]
		if a.IsRestOfWorld() != b.IsRestOfWorld() {
			return b.IsRestOfWorld()
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if a.ID == nil || b.ID == nil {
			return b.ID == nil && a.ID != nil
		}
		return *a.ID < *b.ID
	})
	for i := range zones {
		sort.SliceStable(zones[i].Methods, func(x, y int) bool {
			return zones[i].Methods[x].Order < zones[i].Methods[y].Order
		})
	}
}

func findZone(zones []domain.Zone, id int64) *domain.Zone {
	for i := range zones {
		if zones[i].ID != nil && *zones[i].ID == id {
			return &zones[i]
		}
	}
	return nil
}

func findZoneByKey(zones []domain.Zone, key string) *domain.Zone {
	if key == "" {
		return nil
	}
	for i := range zones {
		if zones[i].Key == key {
			return &zones[i]
		}
	}
	return nil
}

func removeZone(zones []domain.Zone, id int64) []domain.Zone {
	out := zones[:0]
	for _, z := range zones {
		if z.ID != nil && *z.ID == id {
			continue
		}
		out = append(out, z)
	}
	return out
}

func findMethod(methods []domain.Method, id int64) *domain.Method {
	for i := range methods {
		if methods[i].ID != nil && *methods[i].ID == id {
			return &methods[i]
		}
	}
	return nil
}

func findMethodByKey(methods []domain.Method, key string) *domain.Method {
	if key == "" {
		return nil
	}
	for i := range methods {
		if methods[i].Key == key {
			return &methods[i]
		}
	}
	return nil
}

func removeMethod(methods []domain.Method, id int64) []domain.Method {
	out := methods[:0]
	for _, m := range methods {
		if m.ID != nil && *m.ID == id {
			continue
		}
		out = append(out, m)
	}
	return out
}
