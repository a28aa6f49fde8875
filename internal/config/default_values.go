package config

const (
	DefaultContextTokenLimit = 16000

	DefaultTrackerMaxItems = 100
)
