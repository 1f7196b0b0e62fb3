package db

// DB is a generic database port that lets repositories stay agnostic of the
// concrete client (GORM on Postgres in production, GORM on SQLite in tests).
type DB interface {
	Conn() any
}
