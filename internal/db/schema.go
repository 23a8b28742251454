package db

const cacheTable = "cache_entry"

// SchemaSQL defines the cache table. Record IDs are the cache keys.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS cache_entry SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS key ON cache_entry TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON cache_entry TYPE string;
    DEFINE FIELD IF NOT EXISTS payload ON cache_entry TYPE string;
    DEFINE FIELD IF NOT EXISTS fetched_at ON cache_entry TYPE datetime;

    DEFINE INDEX IF NOT EXISTS cache_entry_kind ON cache_entry FIELDS kind;
`
