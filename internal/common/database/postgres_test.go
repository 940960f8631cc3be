package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert submission: %w", &pq.Error{Code: "23505", Constraint: "submissions_user_id_key"})

	constraint, ok := UniqueViolation(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "submissions_user_id_key", constraint)

	_, ok = UniqueViolation(&pq.Error{Code: "23503"})
	assert.False(t, ok)

	_, ok = UniqueViolation(errors.New("boom"))
	assert.False(t, ok)
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(&pq.Error{Code: "40001"}))
	assert.True(t, Transient(fmt.Errorf("tx: %w", &pq.Error{Code: "40P01"})))
	assert.False(t, Transient(&pq.Error{Code: "23505"}))
	assert.False(t, Transient(errors.New("boom")))
}
