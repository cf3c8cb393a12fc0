package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/jobs?sslmode=disable", pgx5URL("postgresql://u:p@db:5432/jobs?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/jobs", pgx5URL("postgres://u@db/jobs"))
	assert.Equal(t, "pgx5://already", pgx5URL("pgx5://already"))
}
