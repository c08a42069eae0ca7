package vector

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPointID(t *testing.T) {
	a := PointID(7, 0)
	assert.Equal(t, a, PointID(7, 0))
	assert.NotEqual(t, a, PointID(7, 1))
	assert.NotEqual(t, a, PointID(70, 0))

	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
