package domain

import (
	"fmt"
	"time"
)

// Action names the REST call an Operation turns into.
type Action string

const (
	ActionAddZone         Action = "add_zone"
	ActionUpdateZone      Action = "update_zone"
	ActionDeleteZone      Action = "delete_zone"
	ActionAddMethod       Action = "add_method"
	ActionUpdateMethod    Action = "update_method"
	ActionDeleteMethod    Action = "delete_method"
	ActionUpdateLocations Action = "update_locations"
)

var Actions = []Action{
	ActionAddZone,
	ActionUpdateZone,
	ActionDeleteZone,
	ActionAddMethod,
	ActionUpdateMethod,
	ActionDeleteMethod,
	ActionUpdateLocations,
}

// SubOperation produces the operations that depend on an id the store
// assigns when the parent operation succeeds.
type SubOperation func(id int64) []Operation

// Operation is one declarative change against the store.
//
// ZoneID is meaningless for add_zone. ID is the method instance id for
// update_method and delete_method. Ref is the local key of the edit-buffer
// entity an add_* operation creates.
type Operation struct {
	Action        Action         `json:"action"`
	ZoneID        int64          `json:"zoneId"`
	ID            int64          `json:"id,omitempty"`
	Ref           string         `json:"ref,omitempty"`
	Payload       interface{}    `json:"payload,omitempty"`
	SubOperations []SubOperation `json:"-"`
}

// Dependents is the number of deferred producers waiting on this operation.
func (o Operation) Dependents() int {
	return len(o.SubOperations)
}

func (o Operation) String() string {
	switch o.Action {
	case ActionAddZone:
		return string(o.Action)
	case ActionUpdateZone, ActionDeleteZone, ActionAddMethod, ActionUpdateLocations:
		return fmt.Sprintf("%s zone=%d", o.Action, o.ZoneID)
	default:
		return fmt.Sprintf("%s zone=%d method=%d", o.Action, o.ZoneID, o.ID)
	}
}

// OperationResult is what the store answered to a confirmed operation.
// ID is the id the store assigned (zone id, or method instance id); Zone and
// Method carry the decoded entity when the response had one.
type OperationResult struct {
	ID     int64   `json:"id,omitempty"`
	Zone   *Zone   `json:"zone,omitempty"`
	Method *Method `json:"method,omitempty"`
}

// OperationFailure records one operation the store rejected. Dependent
// operations waiting on its result are never produced; SkippedDependents
// counts their producers.
type OperationFailure struct {
	Operation         Operation `json:"operation"`
	Error             string    `json:"error"`
	SkippedDependents int       `json:"skippedDependents,omitempty"`
}

// SubmitReport is the outcome of running a list of operations.
type SubmitReport struct {
	ID         string             `json:"id"`
	SiteID     string             `json:"siteId"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	Applied    []Operation        `json:"applied"`
	Failures   []OperationFailure `json:"failures"`
	ArchiveURL string             `json:"archiveUrl,omitempty"`
}

// Succeeded reports whether every operation was applied.
func (r *SubmitReport) Succeeded() bool {
	return len(r.Failures) == 0
}

// Fetch resources, used to tag FetchError.
const (
	FetchResourceZones     = "zones"
	FetchResourceLocations = "locations"
	FetchResourceMethods   = "methods"
	FetchResourceCatalog   = "shipping_methods"
)

// FetchError is a failed sub-request of a bulk fetch.
type FetchError struct {
	Resource string `json:"resource"`
	ZoneID   *int64 `json:"zoneId,omitempty"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

func (e *FetchError) Error() string {
	if e.ZoneID != nil {
		return fmt.Sprintf("fetch %s of zone %d: %v", e.Resource, *e.ZoneID, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchReport lists the sub-requests of a bulk fetch that failed.
type FetchReport struct {
	Zones  int           `json:"zones"`
	Errors []*FetchError `json:"errors"`
}
