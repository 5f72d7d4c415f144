package vm

import "fmt"

// ---------------------------------------------------------------------------
// UserInfoObject: refcounted wrapper around host data
// ---------------------------------------------------------------------------

// UserInfoObject carries an opaque host payload through the value
// system under reference counting. An optional finalizer runs exactly
// once, when the last reference is released.
type UserInfoObject struct {
	object
	Payload   any
	finalizer func(any)
	serial    uint64
}

// NewUserInfo wraps payload in a refcounted object. finalizer may be nil.
func NewUserInfo(payload any, finalizer func(any)) *UserInfoObject {
	return &UserInfoObject{
		object:    newObject(),
		Payload:   payload,
		finalizer: finalizer,
		serial:    nextSerial(),
	}
}

// Tag implements Object.
func (u *UserInfoObject) Tag() TypeTag { return TagUserInfo }

// Equals implements Object: identity only.
func (u *UserInfoObject) Equals(other Object) bool {
	o, ok := other.(*UserInfoObject)
	return ok && o == u
}

// Hash implements Object.
func (u *UserInfoObject) Hash() uint64 {
	return hashUint(u.serial)
}

// Describe implements Object.
func (u *UserInfoObject) Describe(debug bool) string {
	return fmt.Sprintf("<userinfo %T>", u.Payload)
}

// destroy implements Object.
func (u *UserInfoObject) destroy() {
	if u.finalizer != nil {
		u.finalizer(u.Payload)
		u.finalizer = nil
	}
	u.Payload = nil
}
