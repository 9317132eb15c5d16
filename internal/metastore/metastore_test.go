package metastore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samograsic/ion-dtn-dtnex/internal/wireproto"
)

func TestPutGetUpsert(t *testing.T) {
	s := New()
	_, ok := s.Get(1)
	assert.False(t, ok)

	s.Put(wireproto.MetadataPayload{NodeID: 1, Name: "a"})
	s.Put(wireproto.MetadataPayload{NodeID: 1, Name: "b"})

	got, ok := s.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "b", got.Name, "later payload wins for the same node id")
	assert.Equal(t, 1, s.Len())
}

func TestIterEnumeratesAll(t *testing.T) {
	s := New()
	s.Put(wireproto.MetadataPayload{NodeID: 1})
	s.Put(wireproto.MetadataPayload{NodeID: 2})
	assert.Len(t, s.Iter(), 2)
}
