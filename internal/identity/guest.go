// Package identity derives stable display identities for guest participants.
//
// Guests hold nothing but an opaque client-side key, so every derivation must
// be a pure function of that key: a reconnecting guest has to land on the
// same nickname and avatar it had before.
package identity

// AvatarCount is the number of avatar slots clients can render.
const AvatarCount = 20

var adjectives = []string{
	"Brave", "Clever", "Swift", "Mighty", "Silent",
	"Lucky", "Fierce", "Gentle", "Nimble", "Bold",
	"Cosmic", "Electric", "Golden", "Crimson", "Frosty",
	"Shadow", "Turbo", "Wild", "Royal", "Sneaky",
}

var nouns = []string{
	"Falcon", "Tiger", "Panda", "Otter", "Wolf",
	"Raven", "Fox", "Badger", "Lynx", "Hawk",
	"Dolphin", "Cobra", "Moose", "Gecko", "Bison",
	"Puffin", "Mantis", "Walrus", "Heron", "Yak",
}

// hashKey folds the guest key's bytes into a non-negative integer.
func hashKey(guestKey string) uint32 {
	var h uint32
	for i := 0; i < len(guestKey); i++ {
		h = h*31 + uint32(guestKey[i])
	}
	return h
}

// DeriveNickname maps a guest key to a stable "<adjective> <noun>" nickname.
func DeriveNickname(guestKey string) string {
	h := hashKey(guestKey)
	adj := adjectives[h%uint32(len(adjectives))]
	noun := nouns[(h>>7)%uint32(len(nouns))]
	return adj + " " + noun
}

// DeriveAvatarIndex maps a guest key to an avatar slot in [0, AvatarCount).
func DeriveAvatarIndex(guestKey string) int {
	return int(hashKey(guestKey) % AvatarCount)
}
