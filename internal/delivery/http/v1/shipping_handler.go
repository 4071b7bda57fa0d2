package v1

import (
	"errors"
	"net/http"
	"strconv"

	"shipzone-sync/internal/domain"
	"shipzone-sync/internal/usecase"
	"shipzone-sync/pkg/logger"
	"shipzone-sync/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

type ShippingHandler struct {
	uc       *usecase.ShippingUsecase
	siteID   string
	validate *validator.Validate
}

func NewShippingHandler(uc *usecase.ShippingUsecase, siteID string) *ShippingHandler {
	return &ShippingHandler{
		uc:       uc,
		siteID:   siteID,
		validate: validator.New(),
	}
}

type renameZoneRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type locationRequest struct {
	Type string `json:"type" validate:"required,oneof=postcode state country continent"`
	Code string `json:"code" validate:"required,max=100"`
}

type addMethodRequest struct {
	MethodID string `json:"method_id" validate:"omitempty,max=100"`
}

type methodTypeRequest struct {
	MethodID string `json:"method_id" validate:"required,max=100"`
}

type editMethodRequest struct {
	Field string      `json:"field" validate:"required,max=100"`
	Value interface{} `json:"value"`
}

type operationsResponse struct {
	Operations []domain.Operation `json:"operations"`
}

// decode reads and validates a JSON body. It writes the 400 itself.
func (h *ShippingHandler) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid index")
		return 0, false
	}
	return index, true
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrSubmitInProgress),
		errors.Is(err, domain.ErrFetchInProgress),
		errors.Is(err, domain.ErrAlreadyEditing),
		errors.Is(err, domain.ErrNoZoneEditing),
		errors.Is(err, domain.ErrSnapshotNotLoaded),
		errors.Is(err, domain.ErrLocationExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIndexOutOfRange),
		errors.Is(err, domain.ErrLocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRestOfWorldImmutable),
		errors.Is(err, domain.ErrRestOfWorldMissing),
		errors.Is(err, domain.ErrRestOfWorldDeleted),
		errors.Is(err, domain.ErrInvalidMethodField):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *ShippingHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log := logger.WithSiteID(*logger.WithContext(r.Context()), h.siteID)
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Shipping request failed")
		utils.WriteError(w, status, "Internal server error")
		return
	}
	utils.WriteError(w, status, err.Error())
}

func (h *ShippingHandler) writeState(w http.ResponseWriter, r *http.Request, st *domain.ShippingState, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if version, err := usecase.StateVersion(st); err == nil {
		w.Header().Set("ETag", `"`+version+`"`)
	}
	utils.WriteJSON(w, http.StatusOK, st)
}

// GetState returns the snapshot, the edit buffer and the editor state.
// Honors If-None-Match.
func (h *ShippingHandler) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.uc.State(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	version, err := usecase.StateVersion(st)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	etag := `"` + version + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	utils.WriteJSON(w, http.StatusOK, st)
}

func (h *ShippingHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	report, err := h.uc.FetchServerData(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, report)
}

func (h *ShippingHandler) Operations(w http.ResponseWriter, r *http.Request) {
	ops, err := h.uc.Operations(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, operationsResponse{Operations: ops})
}

// Submit applies pending changes. A run with failed operations still
// returns its report, with 502.
func (h *ShippingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	report, err := h.uc.SubmitChanges(r.Context())
	if report == nil {
		h.fail(w, r, err)
		return
	}
	if err != nil {
		log := logger.WithSiteID(*logger.WithContext(r.Context()), h.siteID)
		log.Warn().Err(err).Str("report_id", report.ID).Msg("Shipping submit finished with failures")
		utils.WriteJSON(w, http.StatusBadGateway, report)
		return
	}
	utils.WriteJSON(w, http.StatusOK, report)
}

func (h *ShippingHandler) AddZone(w http.ResponseWriter, r *http.Request) {
	st, err := h.uc.AddZone(r.Context())
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) EditZone(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	st, err := h.uc.EditZone(r.Context(), index)
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) RemoveZone(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	st, err := h.uc.RemoveZone(r.Context(), index)
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) CancelEditing(w http.ResponseWriter, r *http.Request) {
	st, err := h.uc.CancelEditingZone(r.Context())
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) CloseEditing(w http.ResponseWriter, r *http.Request) {
	st, err := h.uc.CloseEditingZone(r.Context())
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) RenameZone(w http.ResponseWriter, r *http.Request) {
	var req renameZoneRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := h.uc.RenameZone(r.Context(), req.Name)
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) AddLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := h.uc.AddLocation(r.Context(), req.Type, req.Code)
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) RemoveLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := h.uc.RemoveLocation(r.Context(), req.Type, req.Code)
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) AddMethod(w http.ResponseWriter, r *http.Request) {
	var req addMethodRequest
	// An empty body picks the default method type.
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	st, err := h.uc.AddMethod(r.Context(), req.MethodID)
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) ChangeMethodType(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var req methodTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := h.uc.ChangeMethodType(r.Context(), index, req.MethodID)
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) EditMethod(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var req editMethodRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := h.uc.EditMethod(r.Context(), index, req.Field, req.Value)
	h.writeState(w, r, st, err)
}

func (h *ShippingHandler) RemoveMethod(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	st, err := h.uc.RemoveMethod(r.Context(), index)
	h.writeState(w, r, st, err)
}
