package types

import (
	"time"
)

const (
	ChannelCart     = "cart"
	ChannelWishlist = "wishlist"
)

// ChangeMessage is the schema carried on the collection sync channel.
// Items holds the full new list after the mutation; receivers adopt it
// wholesale (last-writer-wins, no merge).
type ChangeMessage struct {
	Collection string      `json:"collection"`
	Items      interface{} `json:"items"`
	Source     string      `json:"source"`
	Timestamp  time.Time   `json:"timestamp"`
}

type ChangeHandler func(msg ChangeMessage)

// Bus fans collection changes out to every subscribed instance, in this
// process or another same-origin context. Delivery is eventually
// consistent and unordered across collections.
type Bus interface {
	LifecycleManager
	Publish(msg ChangeMessage) error
	Subscribe(collection string, handler ChangeHandler) (func(), error)
}

type BusCreator func(config interface{}) (Bus, error)
