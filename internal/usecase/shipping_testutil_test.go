package usecase

import (
	"shipzone-sync/internal/domain"
)

func restOfWorld(methods ...domain.Method) domain.Zone {
	if methods == nil {
		methods = []domain.Method{}
	}
	return domain.Zone{
		ID:        domain.Int64Ptr(domain.RestOfWorldZoneID),
		Name:      "Locations not covered by your other zones",
		Locations: []domain.Location{},
		Methods:   methods,
	}
}

func zone(id int64, name string, order int, locations []domain.Location, methods ...domain.Method) domain.Zone {
	if locations == nil {
		locations = []domain.Location{}
	}
	if methods == nil {
		methods = []domain.Method{}
	}
	return domain.Zone{
		ID:        domain.Int64Ptr(id),
		Name:      name,
		Order:     order,
		Locations: locations,
		Methods:   methods,
	}
}

func newZone(key, name string, locations []domain.Location, methods ...domain.Method) domain.Zone {
	z := zone(0, name, 0, locations, methods...)
	z.ID = nil
	z.Key = key
	return z
}

func method(id int64, methodID string, enabled bool, order int, settings map[string]interface{}) domain.Method {
	return domain.Method{
		ID:       domain.Int64Ptr(id),
		MethodID: methodID,
		Enabled:  enabled,
		Order:    order,
		Settings: settings,
	}
}

func pendingMethod(key, methodID string, settings map[string]interface{}) domain.Method {
	return domain.Method{
		Key:      key,
		MethodID: methodID,
		Enabled:  true,
		Settings: settings,
	}
}

func country(code string) domain.Location {
	return domain.Location{Type: domain.LocationTypeCountry, Code: code}
}

// expand resolves every sub-operation with id and returns the produced
// operations.
func expand(op domain.Operation, id int64) []domain.Operation {
	var out []domain.Operation
	for _, produce := range op.SubOperations {
		out = append(out, produce(id)...)
	}
	return out
}

// stripSubOperations drops the producers so operation lists can be compared.
func stripSubOperations(ops []domain.Operation) []domain.Operation {
	out := make([]domain.Operation, len(ops))
	for i, op := range ops {
		op.SubOperations = nil
		out[i] = op
	}
	return out
}
