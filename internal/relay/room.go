package relay

import "slices"

// Room is one chat room and its members, keyed by user identity.
type Room struct {
	ID string

	members map[string]*Client
	order   []string
}

func newRoom(id string) *Room {
	return &Room{ID: id, members: make(map[string]*Client)}
}

// add places c in the room under its identity and returns the connection it
// displaced, if the identity was already present.
func (r *Room) add(c *Client) *Client {
	prev := r.members[c.userID]
	if prev == nil {
		r.order = append(r.order, c.userID)
	}
	r.members[c.userID] = c
	return prev
}

// remove drops c if it still holds its identity in the room.
func (r *Room) remove(c *Client) bool {
	if r.members[c.userID] != c {
		return false
	}
	delete(r.members, c.userID)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == c.userID })
	return true
}

func (r *Room) member(userID string) *Client {
	return r.members[userID]
}

// users returns member identities in join order.
func (r *Room) users() []string {
	return slices.Clone(r.order)
}

func (r *Room) empty() bool {
	return len(r.members) == 0
}
