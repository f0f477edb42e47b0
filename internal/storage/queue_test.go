package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/styledrop/internal/model"
)

func TestQueue_ReplacesSameDestinationAndStyle(t *testing.T) {
	var q Queue
	q.QueueWrite(Staging, "upload", BytesSource("one"))
	q.QueueWrite(Durable, "upload", BytesSource("durable"))
	q.QueueWrite(Staging, "small", BytesSource("small"))
	q.QueueWrite(Staging, "upload", BytesSource("two"))

	writes := q.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, "upload", writes[0].Style)
	assert.Equal(t, BytesSource("two"), writes[0].Source)
	assert.Equal(t, Durable, writes[1].Dest)
	assert.Equal(t, "small", writes[2].Style)
}

func TestQueue_DeletesAreDeduplicated(t *testing.T) {
	var q Queue
	q.QueueDelete(Staging, "small")
	q.QueueDelete(Staging, "small")
	q.QueueDelete(Durable, "small")

	_, deletes := q.Pending()
	assert.Equal(t, 2, deletes)
}

func TestQueue_DiscardWrites(t *testing.T) {
	var q Queue
	q.QueueWrite(Staging, "upload", BytesSource("x"))
	q.QueueDelete(Staging, "upload")
	q.DiscardWrites()

	writes, deletes := q.Pending()
	assert.Zero(t, writes)
	assert.Equal(t, 1, deletes)
}

func TestQueue_DropKeepsRemainder(t *testing.T) {
	var q Queue
	q.QueueWrite(Staging, "a", BytesSource("a"))
	q.QueueWrite(Staging, "b", BytesSource("b"))
	q.QueueWrite(Staging, "c", BytesSource("c"))
	q.dropWrites(1)

	writes := q.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "b", writes[0].Style)

	q.QueueWrite(Staging, "b", BytesSource("b2"))
	assert.Len(t, q.Writes(), 2)
}

func TestDestinations(t *testing.T) {
	assert.Equal(t, Staging, WriteDestination(model.StatusInvalid))
	assert.Equal(t, Staging, WriteDestination(model.StatusUploaded))
	assert.Equal(t, Staging, WriteDestination(model.StatusStyling))
	assert.Equal(t, Durable, WriteDestination(model.StatusStyled))

	assert.Equal(t, Staging, DeleteDestination(model.StatusStyled))
	assert.Equal(t, Durable, DeleteDestination(model.StatusStored))
	assert.Equal(t, Durable, ReadDestination(model.StatusStored))
}
