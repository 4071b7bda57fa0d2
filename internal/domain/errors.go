package domain

import "errors"

var (
	ErrRestOfWorldMissing   = errors.New("the store did not provide a \"Rest Of The World\" shipping zone")
	ErrRestOfWorldDeleted   = errors.New("the \"Rest Of The World\" shipping zone has been deleted")
	ErrRestOfWorldImmutable = errors.New("the \"Rest Of The World\" shipping zone cannot be changed that way")
	ErrNoZoneEditing        = errors.New("no shipping zone is being edited")
	ErrAlreadyEditing       = errors.New("another shipping zone is being edited")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrLocationExists       = errors.New("location already in zone")
	ErrLocationNotFound     = errors.New("location not in zone")
	ErrSubmitInProgress     = errors.New("a submit is already in progress")
	ErrFetchInProgress      = errors.New("a fetch is in progress")
	ErrSnapshotNotLoaded    = errors.New("shipping settings have not been fetched yet")
	ErrUnknownAction        = errors.New("unrecognized action")
	ErrStateNotFound        = errors.New("shipping state not found")
	ErrInvalidMethodField   = errors.New("invalid shipping method field")
)
