package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSortedKeys(t *testing.T) {
	m := map[int][]string{2007: nil, 2001: nil, 2011: nil}
	assert.Equal(t, []int{2001, 2007, 2011}, GetSortedKeys(m, true))
	assert.Equal(t, []int{2011, 2007, 2001}, GetSortedKeys(m, false))
	assert.Empty(t, GetSortedKeys(map[string]int{}, true))
}
