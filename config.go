package relay

import "time"

// Config holds the configuration for a Relay instance.
type Config struct {
	// PurgeInterval is how often every stored event is discarded.
	// Zero disables the purge schedule.
	PurgeInterval time.Duration

	// VerifyIDs rejects events whose id is not the hash of their content.
	// Signatures are never checked.
	VerifyIDs bool
}

// DefaultPurgeInterval is the retention horizon shared by all clients.
const DefaultPurgeInterval = time.Hour

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PurgeInterval: DefaultPurgeInterval,
	}
}
