package field

import (
	"github.com/syssam/relorm"
)

// Owner is the entity an identity belongs to.
type Owner interface {
	IsNew() bool
}

// Identity is the integer primary key of an entity. It can be assigned once,
// and only after its owner left the new state.
type Identity struct {
	Field[int64]
	owner Owner
}

// NewIdentity returns the identity field of owner.
func NewIdentity(name string, owner Owner) *Identity {
	return &Identity{
		Field: *New(name, toInt, decodeInt, Message("identity must be an integer")),
		owner: owner,
	}
}

// Set assigns the identity.
func (f *Identity) Set(v any) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Field.Set(v)
}

// Decode assigns the identity from a stored value.
func (f *Identity) Decode(v any) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Field.Decode(v)
}

// Clear is a no-op: an assigned identity never changes.
func (f *Identity) Clear() {}

func (f *Identity) check() error {
	if f.owner != nil && f.owner.IsNew() {
		return relorm.NewFieldError(relorm.ErrNotPersisted, f.name, "cannot assign the identity of a new entity")
	}
	if f.set {
		return relorm.NewFieldError(relorm.ErrIdentityReassigned, f.name, "identity is already assigned")
	}
	return nil
}

// ID returns the identity without loading.
func (f *Identity) ID() (int64, bool) {
	return f.Peek()
}

var _ Value = (*Identity)(nil)
