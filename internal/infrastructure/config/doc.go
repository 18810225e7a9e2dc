// Package config loads claimd's settings.
//
// Load reads an optional YAML file, applies defaults, then lets the
// environment override it through envconfig. Each variable is tried as
// CLAIMD_<NAME> first and then as the bare name, so the usual deployment
// variables work as-is:
//
//	DATABASE_URL  PGHOST  PGPORT  PGDATABASE  PGUSER  PGPASSWORD
//	DB_SSL_CA_FILE  DB_SSL_CA  DB_ALLOW_SELF_SIGNED
//	BASE_URL  PORT  REDIS_URL
//
// Keep passwords and CA material in the environment rather than the file.
//
//	cfg, err := config.Load(os.Getenv("CLAIMD_CONFIG"))
package config
