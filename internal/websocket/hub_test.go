package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adi-253/Talkie/chatsync/internal/models"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func TestJoinIsVisibleOnReturn(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub, nil, nil, models.Participant{ID: "ann"})
	hub.Register(c)

	hub.Join(c, "c1")
	assert.True(t, hub.InRoom(c, "c1"))
	assert.Equal(t, 1, hub.RoomClientCount("c1"))

	hub.Leave(c, "c1")
	assert.False(t, hub.InRoom(c, "c1"))
	assert.Equal(t, 0, hub.RoomClientCount("c1"))
}

func TestJoinAfterStopReturns(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub, nil, nil, models.Participant{ID: "ann"})
	hub.Register(c)
	hub.Stop()

	hub.Join(c, "c1")
	hub.Leave(c, "c1")
	assert.False(t, hub.InRoom(c, "c1"))
	assert.Equal(t, 0, hub.ClientCount())
}
