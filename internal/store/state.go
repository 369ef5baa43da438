package store

// StateRecord is the persistent metadata written atomically after every
// transition (spec.md §3): current l_id/wl_id, last-known runtime
// fingerprint, platform fingerprint.
type StateRecord struct {
	SchemaVersion    int    `json:"schema_version"`
	LID              string `json:"l_id,omitempty"`
	WLID             string `json:"wl_id,omitempty"`
	RuntimeKey       string `json:"runtime_key"`
	Platform         string `json:"platform"`
	LastMFingerprint string `json:"last_mfingerprint,omitempty"`
}

// EnvMetadata is the recorded-on-disk shape of an Env (E), sufficient
// to evaluate env_clean without re-materializing anything.
type EnvMetadata struct {
	SchemaVersion int    `json:"schema_version"`
	LID           string `json:"l_id"`
	RuntimeKey    string `json:"runtime_key"`
	Platform      string `json:"platform"`
	ProfileOID    string `json:"profile_oid"`
}

// CurrentStateSchemaVersion is the on-disk schema state.json/env
// metadata is written at. Bumping it is a breaking change gated like
// any other lock-schema version (spec.md §4.1).
const CurrentStateSchemaVersion = 1
