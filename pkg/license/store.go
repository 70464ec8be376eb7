package license

// Store is the persistence boundary for license records and the global
// fingerprint denylist. Implementations must provide atomic per-key upsert
// semantics; the Engine supplies per-key serialization on top.
//
// Get and Delete return ErrNotFound for unknown keys. Keys handed to a Store
// are already canonicalized by the Engine.
type Store interface {
	Get(key string) (*Record, error)
	Save(rec *Record) error
	Delete(key string) error
	List() ([]*Record, error)

	GetBan(hash string) (*FingerprintBan, error)
	SaveBan(ban *FingerprintBan) error
	DeleteBan(hash string) error
	ListBans() ([]*FingerprintBan, error)
}
