package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nostrpay/peerd/src/common"
)

// Wire-level kinds.
const (
	KindFollowList           = 3
	KindPeerAdvertisement    = 10032
	KindPaymentSetupInfo     = 10047
	KindPaymentSetupRequest  = 23194
	KindPaymentSetupResponse = 23195
)

// Types shared with the event network library.
type (
	Record    = nostr.Event
	Filter    = nostr.Filter
	Filters   = nostr.Filters
	TagMap    = nostr.TagMap
	Tag       = nostr.Tag
	Tags      = nostr.Tags
	Timestamp = nostr.Timestamp
)

var validate = validator.New()

// IsReplaceable reports whether only the newest record of a given author is
// authoritative for kind.
func IsReplaceable(kind int) bool {
	return kind == 0 || kind == KindFollowList || (kind >= 10000 && kind < 20000)
}

// Now returns the current time as a record timestamp.
func Now() Timestamp {
	return nostr.Now()
}

// KindName returns a human readable name for the kinds used by peerd.
func KindName(kind int) string {
	switch kind {
	case KindFollowList:
		return "follow-list"
	case KindPeerAdvertisement:
		return "peer-advertisement"
	case KindPaymentSetupInfo:
		return "payment-setup-static"
	case KindPaymentSetupRequest:
		return "payment-setup-request"
	case KindPaymentSetupResponse:
		return "payment-setup-response"
	}
	return fmt.Sprintf("kind-%d", kind)
}

func invalid(rec *Record, format string, args ...interface{}) error {
	key := ""
	if rec != nil {
		key = rec.ID
	}
	return common.Errorf("record", common.InvalidRecord, key, format, args...)
}

func checkKind(rec *Record, kind int) error {
	if rec == nil {
		return invalid(nil, "nil record")
	}
	if rec.Kind != kind {
		return invalid(rec, "kind %d, expected %d (%s)", rec.Kind, kind, KindName(kind))
	}
	return nil
}

// encodePayload validates v and serializes it. Fields tagged omitempty and left
// unset do not appear in the output.
func encodePayload(v interface{}) (string, error) {
	if err := validate.Struct(v); err != nil {
		return "", common.NewError("record", common.InvalidRecord, "", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// decodePayload parses data into out, a pointer to a payload struct. Keys are
// matched exactly against the json tags of out, nested objects included, and
// anything else is dropped before decoding. A field whose tag lacks omitempty
// is required and may not be null.
func decodePayload(rec *Record, data string, out interface{}) error {
	raw := json.RawMessage(data)
	if !json.Valid(raw) {
		return invalid(rec, "content is not valid JSON")
	}
	if string(bytes.TrimSpace(raw)) == "null" {
		return invalid(rec, "content is null")
	}

	exact, err := exactFields(rec, raw, reflect.TypeOf(out).Elem(), "content")
	if err != nil {
		return err
	}

	if err := json.Unmarshal(exact, out); err != nil {
		return invalid(rec, "%v", err)
	}

	if err := validate.Struct(out); err != nil {
		return invalid(rec, "%v", err)
	}

	return nil
}

// exactFields rewrites raw so that every object decoded into a struct type
// only carries the keys named by its json tags.
func exactFields(rec *Record, raw json.RawMessage, t reflect.Type, path string) (json.RawMessage, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			return nil, invalid(rec, "%s is not a JSON object", path)
		}

		kept := make(map[string]json.RawMessage, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			name, required := wireName(t.Field(i))
			if name == "" {
				continue
			}
			v, ok := fields[name]
			if !ok || string(v) == "null" {
				if required {
					return nil, invalid(rec, "missing field %q in %s", name, path)
				}
				continue
			}
			v, err := exactFields(rec, v, t.Field(i).Type, path+"."+name)
			if err != nil {
				return nil, err
			}
			kept[name] = v
		}
		return json.Marshal(kept)

	case reflect.Slice:
		elem := t.Elem()
		for elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct {
			return raw, nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, invalid(rec, "%s is not a JSON array", path)
		}
		for i := range items {
			v, err := exactFields(rec, items[i], elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return json.Marshal(items)
	}

	return raw, nil
}

// wireName returns the json key of f, and whether the field is required.
func wireName(f reflect.StructField) (string, bool) {
	if f.PkgPath != "" {
		return "", false
	}
	parts := strings.Split(f.Tag.Get("json"), ",")
	if parts[0] == "" || parts[0] == "-" {
		return "", false
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			return parts[0], false
		}
	}
	return parts[0], true
}

// FirstTag returns the value of the first tag named name, or "" if there is
// none.
func FirstTag(rec *Record, name string) string {
	for _, t := range rec.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}
