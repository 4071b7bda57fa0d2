package usecase

import (
	"context"
	"fmt"

	"shipzone-sync/internal/domain"

	"github.com/google/uuid"
)

const defaultMethodType = "flat_rate"

// mutate runs fn on the stored state and saves the result. Edits are refused
// while a submit runs, since the submit rebases the buffer when it ends.
func (uc *ShippingUsecase) mutate(ctx context.Context, fn func(st *domain.ShippingState) error) (*domain.ShippingState, error) {
	if uc.submitting() {
		return nil, domain.ErrSubmitInProgress
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	st, err := uc.loadState(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Loaded {
		return nil, domain.ErrSnapshotNotLoaded
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	if err := uc.saveState(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// editingZone returns the zone open in the editor.
func editingZone(st *domain.ShippingState) (*domain.Zone, error) {
	if st.Editing == nil {
		return nil, domain.ErrNoZoneEditing
	}
	if st.Editing.Index < 0 || st.Editing.Index >= len(st.Zones) {
		return nil, fmt.Errorf("editing zone %d: %w", st.Editing.Index, domain.ErrIndexOutOfRange)
	}
	return &st.Zones[st.Editing.Index], nil
}

func editingMethod(st *domain.ShippingState, index int) (*domain.Zone, *domain.Method, error) {
	z, err := editingZone(st)
	if err != nil {
		return nil, nil, err
	}
	if index < 0 || index >= len(z.Methods) {
		return nil, nil, fmt.Errorf("method %d: %w", index, domain.ErrIndexOutOfRange)
	}
	return z, &z.Methods[index], nil
}

// AddZone appends a pending zone and opens it in the editor.
func (uc *ShippingUsecase) AddZone(ctx context.Context) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		if st.Editing != nil {
			return domain.ErrAlreadyEditing
		}
		order := 0
		for _, z := range st.Zones {
			if !z.IsRestOfWorld() && z.Order >= order {
				order = z.Order + 1
			}
		}
		st.Zones = append(st.Zones, domain.Zone{
			Key:       uuid.New().String(),
			Order:     order,
			Locations: []domain.Location{},
			Methods:   []domain.Method{},
		})
		st.Editing = &domain.ZoneEdit{Index: len(st.Zones) - 1}
		return nil
	})
}

// EditZone opens the zone at index in the editor.
func (uc *ShippingUsecase) EditZone(ctx context.Context, index int) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		if st.Editing != nil {
			return domain.ErrAlreadyEditing
		}
		if index < 0 || index >= len(st.Zones) {
			return fmt.Errorf("zone %d: %w", index, domain.ErrIndexOutOfRange)
		}
		original := st.Zones[index].Clone()
		st.Editing = &domain.ZoneEdit{Index: index, Original: &original}
		return nil
	})
}

// CancelEditingZone discards the changes made since the editor opened. A zone
// that was added in this editing session is dropped.
func (uc *ShippingUsecase) CancelEditingZone(ctx context.Context) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		if _, err := editingZone(st); err != nil {
			return err
		}
		index := st.Editing.Index
		if st.Editing.Original == nil {
			st.Zones = append(st.Zones[:index], st.Zones[index+1:]...)
		} else {
			st.Zones[index] = *st.Editing.Original
		}
		st.Editing = nil
		return nil
	})
}

// CloseEditingZone keeps the changes and closes the editor.
func (uc *ShippingUsecase) CloseEditingZone(ctx context.Context) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		if st.Editing == nil {
			return domain.ErrNoZoneEditing
		}
		st.Editing = nil
		return nil
	})
}

// RemoveZone drops the zone at index from the edit buffer.
func (uc *ShippingUsecase) RemoveZone(ctx context.Context, index int) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		if index < 0 || index >= len(st.Zones) {
			return fmt.Errorf("zone %d: %w", index, domain.ErrIndexOutOfRange)
		}
		if st.Zones[index].IsRestOfWorld() {
			return domain.ErrRestOfWorldImmutable
		}
		if st.Editing != nil {
			switch {
			case st.Editing.Index == index:
				st.Editing = nil
			case st.Editing.Index > index:
				st.Editing.Index--
			}
		}
		st.Zones = append(st.Zones[:index], st.Zones[index+1:]...)
		return nil
	})
}

// RenameZone sets the name of the zone being edited.
func (uc *ShippingUsecase) RenameZone(ctx context.Context, name string) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		z, err := editingZone(st)
		if err != nil {
			return err
		}
		if z.IsRestOfWorld() {
			return domain.ErrRestOfWorldImmutable
		}
		z.Name = name
		return nil
	})
}

// AddLocation adds a location to the zone being edited.
func (uc *ShippingUsecase) AddLocation(ctx context.Context, locationType, code string) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		z, err := editingZone(st)
		if err != nil {
			return err
		}
		if z.IsRestOfWorld() {
			return domain.ErrRestOfWorldImmutable
		}
		loc := domain.Location{Type: locationType, Code: code}
		for _, l := range z.Locations {
			if l == loc {
				return fmt.Errorf("%s %s: %w", locationType, code, domain.ErrLocationExists)
			}
		}
		z.Locations = append(z.Locations, loc)
		return nil
	})
}

// RemoveLocation removes a location from the zone being edited.
func (uc *ShippingUsecase) RemoveLocation(ctx context.Context, locationType, code string) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		z, err := editingZone(st)
		if err != nil {
			return err
		}
		loc := domain.Location{Type: locationType, Code: code}
		for i, l := range z.Locations {
			if l == loc {
				z.Locations = append(z.Locations[:i], z.Locations[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%s %s: %w", locationType, code, domain.ErrLocationNotFound)
	})
}

// AddMethod appends a pending method to the zone being edited. An empty
// methodID picks the first type of the catalog.
func (uc *ShippingUsecase) AddMethod(ctx context.Context, methodID string) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		z, err := editingZone(st)
		if err != nil {
			return err
		}
		if methodID == "" {
			methodID = defaultMethodType
			if len(st.Catalog) > 0 {
				methodID = st.Catalog[0].ID
			}
		}
		z.Methods = append(z.Methods, newMethod(methodID, true, len(z.Methods)))
		return nil
	})
}

func newMethod(methodID string, enabled bool, order int) domain.Method {
	return domain.Method{
		Key:      uuid.New().String(),
		MethodID: methodID,
		Enabled:  enabled,
		Order:    order,
		Settings: map[string]interface{}{},
	}
}

// ChangeMethodType switches the type of the method at index. The type of a
// method the store already created cannot change, so such a method is
// replaced by a pending one of the new type.
func (uc *ShippingUsecase) ChangeMethodType(ctx context.Context, index int, methodID string) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		_, m, err := editingMethod(st, index)
		if err != nil {
			return err
		}
		if m.MethodID == methodID {
			return nil
		}
		if m.IsNew() {
			m.MethodID = methodID
			m.Settings = map[string]interface{}{}
			return nil
		}
		*m = newMethod(methodID, m.Enabled, m.Order)
		return nil
	})
}

// EditMethod sets one field of the method at index. "enabled" and "order"
// are top-level fields; any other field is a setting.
func (uc *ShippingUsecase) EditMethod(ctx context.Context, index int, field string, value interface{}) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		_, m, err := editingMethod(st, index)
		if err != nil {
			return err
		}
		switch field {
		case "enabled":
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("enabled must be a boolean: %w", domain.ErrInvalidMethodField)
			}
			m.Enabled = b
		case "order":
			n, ok := toInt(value)
			if !ok {
				return fmt.Errorf("order must be an integer: %w", domain.ErrInvalidMethodField)
			}
			m.Order = n
		case "id", "method_id", "key", "settings":
			return fmt.Errorf("%s cannot be edited: %w", field, domain.ErrInvalidMethodField)
		default:
			if m.Settings == nil {
				m.Settings = map[string]interface{}{}
			}
			m.Settings[field] = value
		}
		return nil
	})
}

// RemoveMethod drops the method at index from the zone being edited.
func (uc *ShippingUsecase) RemoveMethod(ctx context.Context, index int) (*domain.ShippingState, error) {
	return uc.mutate(ctx, func(st *domain.ShippingState) error {
		z, _, err := editingMethod(st, index)
		if err != nil {
			return err
		}
		z.Methods = append(z.Methods[:index], z.Methods[index+1:]...)
		return nil
	})
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
