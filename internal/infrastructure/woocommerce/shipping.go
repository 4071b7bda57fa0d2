package woocommerce

import (
	"context"
	"fmt"

	"shipzone-sync/internal/domain"
)

type zoneResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

func (z zoneResponse) toDomain() domain.Zone {
	return domain.Zone{
		ID:    domain.Int64Ptr(z.ID),
		Name:  z.Name,
		Order: z.Order,
	}
}

type methodResponse struct {
	ID         int64                  `json:"id"`
	InstanceID int64                  `json:"instance_id"`
	Title      string                 `json:"title"`
	Order      int                    `json:"order"`
	Enabled    bool                   `json:"enabled"`
	MethodID   string                 `json:"method_id"`
	Settings   map[string]interface{} `json:"settings"`
}

func (m methodResponse) instanceID() int64 {
	if m.InstanceID != 0 {
		return m.InstanceID
	}
	return m.ID
}

func (m methodResponse) toDomain() domain.Method {
	return domain.Method{
		ID:       domain.Int64Ptr(m.instanceID()),
		MethodID: m.MethodID,
		Enabled:  m.Enabled,
		Order:    m.Order,
		Settings: flattenSettings(m.Settings),
	}
}

// flattenSettings turns the store's setting descriptors
// ({"cost": {"id": "cost", "type": "text", "value": "10", ...}}) into plain
// values ({"cost": "10"}). Values that are not descriptors are kept.
func flattenSettings(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if desc, ok := v.(map[string]interface{}); ok {
			if value, ok := desc["value"]; ok {
				out[k] = value
				continue
			}
		}
		out[k] = v
	}
	return out
}

// ShippingService exposes the shipping endpoints of the store.
type ShippingService struct {
	c *Client
}

func NewShippingService(c *Client) *ShippingService {
	return &ShippingService{c: c}
}

func zonePath(zoneID int64) string {
	return fmt.Sprintf("shipping/zones/%d", zoneID)
}

func (s *ShippingService) ListZones(ctx context.Context) ([]domain.Zone, error) {
	var resp []zoneResponse
	if err := s.c.Get(ctx, "shipping/zones", &resp); err != nil {
		return nil, err
	}
	zones := make([]domain.Zone, len(resp))
	for i, z := range resp {
		zones[i] = z.toDomain()
	}
	return zones, nil
}

func (s *ShippingService) ListZoneLocations(ctx context.Context, zoneID int64) ([]domain.Location, error) {
	var resp []domain.Location
	if err := s.c.Get(ctx, zonePath(zoneID)+"/locations", &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = []domain.Location{}
	}
	return resp, nil
}

func (s *ShippingService) ListZoneMethods(ctx context.Context, zoneID int64) ([]domain.Method, error) {
	var resp []methodResponse
	if err := s.c.Get(ctx, zonePath(zoneID)+"/methods", &resp); err != nil {
		return nil, err
	}
	methods := make([]domain.Method, len(resp))
	for i, m := range resp {
		methods[i] = m.toDomain()
	}
	return methods, nil
}

func (s *ShippingService) ListShippingMethods(ctx context.Context) ([]domain.ShippingMethodType, error) {
	var resp []domain.ShippingMethodType
	if err := s.c.Get(ctx, "shipping_methods", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Execute sends the REST call an operation stands for.
func (s *ShippingService) Execute(ctx context.Context, op domain.Operation) (*domain.OperationResult, error) {
	switch op.Action {
	case domain.ActionAddZone:
		var resp zoneResponse
		if err := s.c.Post(ctx, "shipping/zones", op.Payload, &resp); err != nil {
			return nil, err
		}
		zone := resp.toDomain()
		return &domain.OperationResult{ID: resp.ID, Zone: &zone}, nil

	case domain.ActionUpdateZone:
		var resp zoneResponse
		if err := s.c.Put(ctx, zonePath(op.ZoneID), op.Payload, &resp); err != nil {
			return nil, err
		}
		zone := resp.toDomain()
		return &domain.OperationResult{ID: resp.ID, Zone: &zone}, nil

	case domain.ActionDeleteZone:
		// Already gone is as good as deleted.
		if err := s.c.Delete(ctx, zonePath(op.ZoneID), nil); err != nil && !IsNotFound(err) {
			return nil, err
		}
		return &domain.OperationResult{ID: op.ZoneID}, nil

	case domain.ActionAddMethod:
		var resp methodResponse
		if err := s.c.Post(ctx, zonePath(op.ZoneID)+"/methods", op.Payload, &resp); err != nil {
			return nil, err
		}
		method := resp.toDomain()
		return &domain.OperationResult{ID: resp.instanceID(), Method: &method}, nil

	case domain.ActionUpdateMethod:
		var resp methodResponse
		path := fmt.Sprintf("%s/methods/%d", zonePath(op.ZoneID), op.ID)
		if err := s.c.Put(ctx, path, op.Payload, &resp); err != nil {
			return nil, err
		}
		method := resp.toDomain()
		return &domain.OperationResult{ID: resp.instanceID(), Method: &method}, nil

	case domain.ActionDeleteMethod:
		path := fmt.Sprintf("%s/methods/%d", zonePath(op.ZoneID), op.ID)
		if err := s.c.Delete(ctx, path, nil); err != nil && !IsNotFound(err) {
			return nil, err
		}
		return &domain.OperationResult{ID: op.ID}, nil

	case domain.ActionUpdateLocations:
		if err := s.c.Put(ctx, zonePath(op.ZoneID)+"/locations", op.Payload, nil); err != nil {
			return nil, err
		}
		return &domain.OperationResult{ID: op.ZoneID}, nil

	default:
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownAction, op.Action)
	}
}
