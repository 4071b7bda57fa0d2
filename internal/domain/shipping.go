package domain

import (
	"context"
	"time"
)

// RestOfWorldZoneID is the id of the mandatory catch-all zone.
const RestOfWorldZoneID int64 = 0

// Location types accepted by the store.
const (
	LocationTypeCountry   = "country"
	LocationTypeState     = "state"
	LocationTypePostcode  = "postcode"
	LocationTypeContinent = "continent"
)

var LocationTypes = []string{
	LocationTypeCountry,
	LocationTypeState,
	LocationTypePostcode,
	LocationTypeContinent,
}

// Location scopes a zone. It has no identity of its own; a zone's locations
// are compared as a set.
type Location struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// Method is a shipping method instance attached to a zone.
// ID is nil until the store has created the instance.
type Method struct {
	ID       *int64                 `json:"id"`
	Key      string                 `json:"key,omitempty"`
	MethodID string                 `json:"method_id"`
	Enabled  bool                   `json:"enabled"`
	Order    int                    `json:"order"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// IsNew reports whether the method is still pending creation.
func (m *Method) IsNew() bool {
	return m.ID == nil
}

// Zone is a named shipping region. ID is nil until the store has created it;
// RestOfWorldZoneID is reserved for the catch-all zone.
type Zone struct {
	ID        *int64     `json:"id"`
	Key       string     `json:"key,omitempty"`
	Name      string     `json:"name"`
	Order     int        `json:"order"`
	Locations []Location `json:"locations"`
	Methods   []Method   `json:"methods"`
}

func (z *Zone) IsNew() bool {
	return z.ID == nil
}

func (z *Zone) IsRestOfWorld() bool {
	return z.ID != nil && *z.ID == RestOfWorldZoneID
}

// Info returns the zone fields that are sent to the store on create/update.
func (z *Zone) Info() ZoneInfo {
	return ZoneInfo{Name: z.Name, Order: z.Order}
}

// ZoneInfo is the non-nested part of a zone.
type ZoneInfo struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// MethodUpdate is the payload of an update_method operation.
type MethodUpdate struct {
	Enabled  bool                   `json:"enabled"`
	Order    int                    `json:"order"`
	Settings map[string]interface{} `json:"settings"`
}

// MethodCreate is the payload of an add_method operation.
type MethodCreate struct {
	MethodID string `json:"method_id"`
}

// ShippingMethodType is an entry of the store's method catalog.
type ShippingMethodType struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ZoneEdit tracks the zone currently open in the editor. Original holds the
// zone as it was before editing started; nil when the zone was just added.
type ZoneEdit struct {
	Index    int   `json:"index"`
	Original *Zone `json:"original,omitempty"`
}

// ShippingState is everything kept for one site: the last confirmed server
// snapshot, the local edit buffer and the editor cursor.
type ShippingState struct {
	SiteID      string               `json:"siteId"`
	ServerZones []Zone               `json:"serverZones"`
	Zones       []Zone               `json:"zones"`
	Editing     *ZoneEdit            `json:"editing,omitempty"`
	Catalog     []ShippingMethodType `json:"catalog,omitempty"`
	Loaded      bool                 `json:"loaded"`
	FetchedAt   *time.Time           `json:"fetchedAt,omitempty"`
	SubmittedAt *time.Time           `json:"submittedAt,omitempty"`
	LastReport  *SubmitReport        `json:"lastReport,omitempty"`
}

// ShippingStateRepository persists per-site shipping state.
type ShippingStateRepository interface {
	Get(ctx context.Context, siteID string) (*ShippingState, error)
	Save(ctx context.Context, state *ShippingState) error
}

// ShippingAPI is the remote store as seen by the usecases.
type ShippingAPI interface {
	ListZones(ctx context.Context) ([]Zone, error)
	ListZoneLocations(ctx context.Context, zoneID int64) ([]Location, error)
	ListZoneMethods(ctx context.Context, zoneID int64) ([]Method, error)
	ListShippingMethods(ctx context.Context) ([]ShippingMethodType, error)
	Execute(ctx context.Context, op Operation) (*OperationResult, error)
}

// ReportArchive stores finished submit reports.
type ReportArchive interface {
	ArchiveReport(ctx context.Context, report *SubmitReport) (string, error)
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
