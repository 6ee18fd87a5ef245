package ingest

import (
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

const sourceName = "liverc"

// Upserter writes canonical racing records into PocketBase keyed by the
// composite (source, sourceId) identity, so repeated imports of the same
// upstream document converge instead of duplicating.
type Upserter struct {
	App core.App
}

func NewUpserter(app core.App) *Upserter { return &Upserter{App: app} }

// findExistingId returns the record id for a given (source, sourceId) if it exists.
func (u *Upserter) findExistingId(collection string, sourceId string) (string, error) {
	rec, err := u.App.FindFirstRecordByFilter(collection, "source = {:source} && sourceId = {:sourceId}", dbx.Params{
		"source":   sourceName,
		"sourceId": sourceId,
	})
	if err == nil && rec != nil {
		return rec.Id, nil
	}
	return "", nil
}

// GetExistingId returns the record id for a given (source, sourceId), or an
// EntityNotFoundError when no such record exists yet.
func (u *Upserter) GetExistingId(collection string, sourceId string) (string, error) {
	id, err := u.findExistingId(collection, sourceId)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &EntityNotFoundError{Collection: collection, SourceID: sourceId}
	}
	return id, nil
}

// Upsert creates or updates a record by (source, sourceId).
func (u *Upserter) Upsert(collection string, sourceId string, fields map[string]any) (string, error) {
	col, err := u.App.FindCollectionByNameOrId(collection)
	if err != nil {
		return "", &PersistenceError{Op: "find collection " + collection, Err: err}
	}

	existingId, err := u.findExistingId(collection, sourceId)
	if err != nil {
		return "", err
	}

	var record *core.Record
	if existingId != "" {
		record, err = u.App.FindRecordById(col, existingId)
		if err != nil {
			return "", &PersistenceError{Op: "load " + collection + "/" + existingId, Err: err}
		}
	} else {
		record = core.NewRecord(col)
	}

	record.Set("source", sourceName)
	record.Set("sourceId", sourceId)
	for k, v := range fields {
		record.Set(k, v)
	}

	if err := u.App.Save(record); err != nil {
		return "", &PersistenceError{Op: "save " + collection, Err: err}
	}
	return record.Id, nil
}
