package paging

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, Request{Page: 1, Limit: DefaultLimit}, Request{}.Normalize())
	assert.Equal(t, Request{Page: 2, Limit: MaxLimit}, Request{Page: 2, Limit: 500}.Normalize())
	assert.Equal(t, Request{Page: 1, Limit: 5}, Request{Page: -3, Limit: 5}.Normalize())
}

func TestWindow(t *testing.T) {
	start, end := Request{Page: 2, Limit: 10}.Window(25)
	assert.Equal(t, 10, start)
	assert.Equal(t, 20, end)

	start, end = Request{Page: 3, Limit: 10}.Window(25)
	assert.Equal(t, 20, start)
	assert.Equal(t, 25, end)

	start, end = Request{Page: 9, Limit: 10}.Window(25)
	assert.Equal(t, 25, start)
	assert.Equal(t, 25, end)
}

func TestHugePageDoesNotOverflow(t *testing.T) {
	r := Request{Page: 922337203685477582, Limit: 10}
	assert.Equal(t, MaxPage, r.Normalize().Page)
	assert.GreaterOrEqual(t, r.Offset(), 0)

	start, end := r.Window(25)
	assert.Equal(t, 25, start)
	assert.Equal(t, 25, end)

	start, end = Request{Page: math.MaxInt, Limit: MaxLimit}.Window(3)
	assert.Equal(t, 3, start)
	assert.Equal(t, 3, end)
}

func TestNewMeta(t *testing.T) {
	assert.Equal(t, Meta{Total: 25, Page: 1, Limit: 10, Pages: 3}, NewMeta(25, Request{Page: 1, Limit: 10}))
	assert.Equal(t, Meta{Total: 0, Page: 1, Limit: 10, Pages: 0}, NewMeta(0, Request{}))
	assert.Equal(t, Meta{Total: 10, Page: 2, Limit: 5, Pages: 2}, NewMeta(10, Request{Page: 2, Limit: 5}))
}
