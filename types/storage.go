package types

const (
	StorageKeyCart          = "storefront:cart"
	StorageKeyWishlist      = "storefront:wishlist"
	StorageKeySearchHistory = "storefront:search_history"
	StorageKeyProfile       = "storefront:profile"
)

// Storage is the durable client-side key/value layer collections persist
// to. Values are opaque byte slices; callers own serialization. A missing
// key is reported as ErrStorageKeyNotFound, never as empty data.
type Storage interface {
	LifecycleManager
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Delete(key string) error
	Keys() ([]string, error)
}

type StorageCreator func(config interface{}) (Storage, error)
