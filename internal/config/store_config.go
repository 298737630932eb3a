package config

import "github.com/spf13/viper"

const (
	databaseURLVar = "DATABASE_URL"
	autoMigrateVar = "AUTO_MIGRATE"
	redisURLVar    = "REDIS_URL"
)

type StoreConfig interface {
	GetDatabaseURL() string
	GetAutoMigrate() bool
	GetRedisURL() string
}

type Store struct {
	v *viper.Viper
}

var _ StoreConfig = Store{}

// GetDatabaseURL returns the Postgres DSN. Empty means the in-memory stores are used.
func (s Store) GetDatabaseURL() string {
	return s.v.GetString(databaseURLVar)
}

func (s Store) GetAutoMigrate() bool {
	return s.v.GetBool(autoMigrateVar)
}

// GetRedisURL returns the revoked-token cache address. Empty means an in-memory cache.
func (s Store) GetRedisURL() string {
	return s.v.GetString(redisURLVar)
}
