package towns

import (
	"errors"
	"strings"

	"github.com/Zechen-Wang/covey.town/internal/authn"
	"github.com/google/uuid"
	"github.com/teris-io/shortid"
)

const (
	DefaultCapacity = 50
)

var (
	ErrMissingFriendlyName = errors.New("FriendlyName must be specified")
	ErrMissingUsername     = errors.New("username must be specified")
)

// Town is the mutable state of one town. It performs no locking; callers
// serialize access.
type Town struct {
	id               string
	friendlyName     string
	isPubliclyListed bool
	creator          string
	capacity         int
	occupancy        int
	credential       authn.Credential

	admins   Usernames
	blockers Usernames
}

// New creates a town with a fresh ID and a fresh update/delete secret. The
// secret is only ever returned here.
func New(
	friendlyName string,
	isPubliclyListed bool,
	creator string,
	capacity int,
	hashCost int,
) (*Town, string, error) {
	if friendlyName == "" {
		return nil, "", ErrMissingFriendlyName
	}

	id, err := NewID()
	if err != nil {
		return nil, "", err
	}

	rawSecret, err := uuid.NewRandom()
	if err != nil {
		return nil, "", err
	}
	secret := strings.ReplaceAll(rawSecret.String(), "-", "")

	credential, err := authn.NewCredential(secret, hashCost)
	if err != nil {
		return nil, "", err
	}

	t := Restore(id, friendlyName, isPubliclyListed, creator, capacity, nil, nil)
	t.credential = credential

	return t, secret, nil
}

// Restore instantiates a town from a persisted record. Secrets are not
// persisted, so the restored town can only be unlocked by the master secret.
func Restore(
	id string,
	friendlyName string,
	isPubliclyListed bool,
	creator string,
	capacity int,
	admins []string,
	blockers []string,
) *Town {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Town{
		id:               id,
		friendlyName:     friendlyName,
		isPubliclyListed: isPubliclyListed,
		creator:          creator,
		capacity:         capacity,
		admins:           NewUsernames(admins...),
		blockers:         NewUsernames(blockers...),
	}
}

// NewID returns a short, URL-safe town ID
func NewID() (string, error) {
	return shortid.Generate()
}

func (t *Town) ID() string             { return t.id }
func (t *Town) FriendlyName() string   { return t.friendlyName }
func (t *Town) IsPubliclyListed() bool { return t.isPubliclyListed }
func (t *Town) Creator() string        { return t.creator }
func (t *Town) Capacity() int          { return t.capacity }
func (t *Town) Occupancy() int         { return t.occupancy }

func (t *Town) Rename(friendlyName string) error {
	if friendlyName == "" {
		return ErrMissingFriendlyName
	}

	t.friendlyName = friendlyName

	return nil
}

func (t *Town) SetPubliclyListed(isPubliclyListed bool) {
	t.isPubliclyListed = isPubliclyListed
}

func (t *Town) AddAdmin(username string) bool      { return t.admins.Add(username) }
func (t *Town) RemoveAdmin(username string) bool   { return t.admins.Remove(username) }
func (t *Town) AddBlocker(username string) bool    { return t.blockers.Add(username) }
func (t *Town) RemoveBlocker(username string) bool { return t.blockers.Remove(username) }

func (t *Town) IsBlocked(username string) bool {
	return t.blockers.Has(username)
}

func (t *Town) Admins() []string   { return t.admins.Sorted() }
func (t *Town) Blockers() []string { return t.blockers.Sorted() }

func (t *Town) IncrementOccupancy() {
	t.occupancy++
}

// DecrementOccupancy clamps at zero so duplicate leave events are harmless
func (t *Town) DecrementOccupancy() {
	if t.occupancy > 0 {
		t.occupancy--
	}
}

func (t *Town) Full() bool {
	return t.occupancy >= t.capacity
}

// Credential never changes after creation, so callers may check it without
// holding the town
func (t *Town) Credential() authn.Credential {
	return t.credential
}
