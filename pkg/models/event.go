package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a single occurrence of a failure, immutable once written.
// RequestSnapshot and StackSnapshot are stored as opaque JSON blobs and
// parsed lazily on access.
type Event struct {
	ID                 uuid.UUID `db:"id"                    json:"id"`
	ErrorID            uuid.UUID `db:"error_id"              json:"error_id"`
	Created            time.Time `db:"created"               json:"created"`
	RequestMethod      string    `db:"request_method"        json:"request_method"`
	RequestURL         string    `db:"request_url"           json:"request_url"`
	RequestQuerystring string    `db:"request_querystring"   json:"request_querystring"`
	RequestRepr        string    `db:"request_repr"          json:"request_repr"`
	RequestSnapshot    []byte    `db:"request_snapshot"      json:"-"`
	StackSnapshot      []byte    `db:"stack_snapshot"        json:"-"`
	AppVersion         string    `db:"app_version"           json:"app_version"`
	LoggedInUserEmail  string    `db:"logged_in_user_email"  json:"logged_in_user_email"`
}

// ParsedRequestSnapshot decodes the stored request snapshot. An absent or
// empty blob decodes to an empty object rather than an error.
func (e *Event) ParsedRequestSnapshot() (map[string]map[string]string, error) {
	out := map[string]map[string]string{}
	if len(e.RequestSnapshot) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(e.RequestSnapshot, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParsedStackSnapshot decodes the stored stack snapshot. An absent or empty
// blob decodes to an empty object.
func (e *Event) ParsedStackSnapshot() (map[string]any, error) {
	out := map[string]any{}
	if len(e.StackSnapshot) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(e.StackSnapshot, &out); err != nil {
		return nil, err
	}
	return out, nil
}
