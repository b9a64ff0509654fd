package persistence

import "fmt"

// CurrentSchemaVersion is the schema_version written by Save for newly
// produced snapshots. Load migrates any older snapshot up to this version
// before handing it to the caller.
const CurrentSchemaVersion = 1

// Migration upgrades a decoded snapshot tree from one schema version to
// the next. Once registered, a migration never changes: fixing a bug in
// v_n->v_{n+1} means adding v_{n+1}->v_{n+2}, not editing history.
type Migration func(map[string]interface{}) (map[string]interface{}, error)

// migrations is indexed by source version: migrations[1] takes a v1
// snapshot to v2, etc. Empty today — schema version 1 is current — but
// the chain-application machinery is exercised by the tests so a future
// migration only needs to append here.
var migrations = map[int]Migration{}

// Migrate runs the sequential chain from fromVersion up to
// CurrentSchemaVersion, applying each registered step in order. A
// snapshot already at the current version is returned unchanged.
func Migrate(snapshot map[string]interface{}, fromVersion int) (map[string]interface{}, error) {
	version := fromVersion
	for version < CurrentSchemaVersion {
		step, ok := migrations[version]
		if !ok {
			return nil, fmt.Errorf("persistence: no migration registered from schema version %d", version)
		}
		next, err := step(snapshot)
		if err != nil {
			return nil, fmt.Errorf("persistence: migration v%d->v%d: %w", version, version+1, err)
		}
		snapshot = next
		version++
	}
	return snapshot, nil
}
