package matrix

import (
	"sync"

	"maunium.net/go/mautrix/id"
)

// choiceKeys are the reaction keys offered under a reply, in order.
var choiceKeys = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣"}

// DefaultChoiceCapacity bounds how many offered replies are remembered.
const DefaultChoiceCapacity = 1024

type offer struct {
	user   id.UserID
	tokens map[string]string // reaction key -> choice token
}

// choiceIndex maps (reply event, reaction key) back to the choice token the
// engine issued. Offers are single-use and the oldest are evicted once the
// index is full.
type choiceIndex struct {
	mu     sync.Mutex
	cap    int
	order  []id.EventID
	offers map[id.EventID]offer
}

func newChoiceIndex(capacity int) *choiceIndex {
	if capacity <= 0 {
		capacity = DefaultChoiceCapacity
	}
	return &choiceIndex{cap: capacity, offers: make(map[id.EventID]offer)}
}

// put records the tokens offered to user under evt, keyed by reaction key.
func (ix *choiceIndex) put(evt id.EventID, user id.UserID, tokens map[string]string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.offers[evt]; !ok {
		ix.order = append(ix.order, evt)
	}
	ix.offers[evt] = offer{user: user, tokens: tokens}

	for len(ix.order) > ix.cap {
		oldest := ix.order[0]
		ix.order = ix.order[1:]
		delete(ix.offers, oldest)
	}
}

// take returns the token behind a reaction and forgets the whole offer.
// Reactions from anyone but the user the offer was made to are ignored and
// leave the offer in place.
func (ix *choiceIndex) take(evt id.EventID, key string, reactor id.UserID) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	o, ok := ix.offers[evt]
	if !ok || o.user != reactor {
		return "", false
	}
	token, ok := o.tokens[key]
	if !ok {
		return "", false
	}
	delete(ix.offers, evt)
	for i, e := range ix.order {
		if e == evt {
			ix.order = append(ix.order[:i], ix.order[i+1:]...)
			break
		}
	}
	return token, true
}

func (ix *choiceIndex) len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.offers)
}
