package protocol

// Directory resolves ids of currently live identities. Reserved ids are
// handled by Resolve and need not be known to a Directory.
type Directory interface {
	Lookup(id int32) (*Identity, bool)
}

// Resolve maps id to ALL, SERVER, a live identity from dir, or a freshly
// synthesized unknown identity. It never fails: stale or foreign ids are
// tolerated so a client can learn its own id from the first frame it sees.
func Resolve(dir Directory, id int32) *Identity {
	switch id {
	case AllID:
		return All
	case ServerID:
		return Server
	}
	if dir != nil {
		if u, ok := dir.Lookup(id); ok {
			return u
		}
	}
	return NewUnknown(id)
}

// Roster is an ordered set of live identities. It does no locking of its own;
// the owner serialises access.
type Roster struct {
	users []*Identity
}

// Add appends u unless an identity with the same id is already present.
// It reports whether the roster changed.
func (r *Roster) Add(u *Identity) bool {
	if u == nil || r.indexOf(u.ID) >= 0 {
		return false
	}
	r.users = append(r.users, u)
	return true
}

// Remove drops the identity with u's id. It reports whether the roster changed.
func (r *Roster) Remove(u *Identity) bool {
	if u == nil {
		return false
	}
	i := r.indexOf(u.ID)
	if i < 0 {
		return false
	}
	r.users = append(r.users[:i], r.users[i+1:]...)
	return true
}

// Lookup implements Directory.
func (r *Roster) Lookup(id int32) (*Identity, bool) {
	if i := r.indexOf(id); i >= 0 {
		return r.users[i], true
	}
	return nil, false
}

// LookupNickname finds a live identity by exact, case-sensitive nickname.
func (r *Roster) LookupNickname(nickname string) (*Identity, bool) {
	for _, u := range r.users {
		if u.Nickname() == nickname {
			return u, true
		}
	}
	return nil, false
}

// Snapshot returns a copy of the roster in order.
func (r *Roster) Snapshot() []*Identity {
	out := make([]*Identity, len(r.users))
	copy(out, r.users)
	return out
}

// Len returns the number of live identities.
func (r *Roster) Len() int {
	return len(r.users)
}

func (r *Roster) indexOf(id int32) int {
	for i, u := range r.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
