package authority

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Zechen-Wang/covey.town/internal/authn"
	"github.com/Zechen-Wang/covey.town/internal/brokers"
	"github.com/Zechen-Wang/covey.town/internal/persisters"
	"github.com/Zechen-Wang/covey.town/internal/towns"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	opCreate         = "create"
	opUpdateListing  = "update-listing"
	opUpdateAdmins   = "update-admins"
	opUpdateBlockers = "update-blockers"
	opUpdateUsers    = "update-users"
	opDelete         = "delete"
	opKick           = "kick"
	opOccupancy      = "occupancy"

	maxIDAttempts = 8
)

var (
	ErrTownNotFound = errors.New("town not found")
	ErrBlocked      = errors.New("user is blocked from this town")
	ErrTownFull     = errors.New("town is full")

	errIDsExhausted = errors.New("could not allocate a unique town ID")
)

type Config struct {
	MasterSecret     string
	DefaultCapacity  int
	SecretHashCost   int
	WriteTimeout     time.Duration
	WriteConcurrency int64

	// OnWriteError observes failed write-through and signal deliveries
	OnWriteError func(town, op string, err error)
}

// TownHandle is returned once, on creation. It is the only place the secret
// is ever exposed.
type TownHandle struct {
	ID     string `json:"coveyTownID"`
	Secret string `json:"coveyTownPassword"`
}

type TownListing struct {
	ID               string `json:"coveyTownID"`
	FriendlyName     string `json:"friendlyName"`
	CurrentOccupancy int    `json:"currentOccupancy"`
	MaximumOccupancy int    `json:"maximumOccupancy"`
}

type TownInfo struct {
	TownListing
	IsPubliclyListed bool     `json:"isPubliclyListed"`
	Creator          string   `json:"creator"`
	Admins           []string `json:"admins"`
	Blockers         []string `json:"blockers"`
}

type Membership struct {
	Admins   []string `json:"admins"`
	Blockers []string `json:"blockers"`
}

type Session struct {
	ID       string `json:"id"`
	Town     string `json:"coveyTownID"`
	Username string `json:"username"`
}

type entry struct {
	lock     sync.Mutex
	seq      uint64
	town     *towns.Town
	sessions map[string]string
	deleted  bool
}

// Authority is the registry of live towns. Mutations of one town are
// serialized by that town's lock; the registry lock only guards the map.
type Authority struct {
	store  persisters.TownsPersister
	broker brokers.TownsBroker
	config *Config
	ctx    context.Context
	master authn.Master

	townsLock sync.RWMutex
	towns     map[string]*entry
	retired   map[string]struct{}
	seq       uint64

	loadLock sync.Mutex
	loaded   bool

	writes    *outbox
	transport *outbox
}

func NewAuthority(
	store persisters.TownsPersister,
	broker brokers.TownsBroker,
	config *Config,
	ctx context.Context,
) *Authority {
	if config == nil {
		config = &Config{}
	}

	if config.DefaultCapacity <= 0 {
		config.DefaultCapacity = towns.DefaultCapacity
	}

	if config.WriteTimeout <= 0 {
		config.WriteTimeout = time.Second * 10
	}

	if config.WriteConcurrency <= 0 {
		config.WriteConcurrency = 16
	}

	return &Authority{
		store:  store,
		broker: broker,
		config: config,
		ctx:    ctx,
		master: authn.NewMaster(config.MasterSecret),

		towns:   map[string]*entry{},
		retired: map[string]struct{}{},

		writes:    newOutbox("store", config.WriteConcurrency, config.WriteTimeout, config.OnWriteError, ctx),
		transport: newOutbox("transport", config.WriteConcurrency, config.WriteTimeout, config.OnWriteError, ctx),
	}
}

// acquire returns the live entry for id with its lock held
func (a *Authority) acquire(id string) (*entry, error) {
	a.townsLock.RLock()
	e, ok := a.towns[id]
	a.townsLock.RUnlock()

	if !ok {
		return nil, ErrTownNotFound
	}

	e.lock.Lock()
	if e.deleted {
		e.lock.Unlock()

		return nil, ErrTownNotFound
	}

	return e, nil
}

// unlock checks secret against the town's credential without holding the
// town, then returns the entry locked if the town survived the check
func (a *Authority) unlock(id, secret, op string) (*entry, bool) {
	e, err := a.acquire(id)
	if err != nil {
		return nil, false
	}
	credential := e.town.Credential()
	e.lock.Unlock()

	if !authn.Authorize(credential, a.master, secret) {
		log.Debug().
			Str("town", id).
			Str("op", op).
			Msg("Rejected town secret")

		return nil, false
	}

	e.lock.Lock()
	if e.deleted {
		e.lock.Unlock()

		return nil, false
	}

	return e, true
}

func (a *Authority) write(id, op string, run func(ctx context.Context) error) {
	if a.store == nil {
		return
	}

	a.writes.enqueue(id, op, run)
}

func (a *Authority) signal(id, op string, run func(ctx context.Context) error) {
	if a.broker == nil {
		return
	}

	a.transport.enqueue(id, op, run)
}

func (a *Authority) CreateTown(
	friendlyName string,
	isPubliclyListed bool,
	creator string,
	maxOccupancy int,
) (*TownHandle, error) {
	capacity := maxOccupancy
	if capacity <= 0 {
		capacity = a.config.DefaultCapacity
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		t, secret, err := towns.New(friendlyName, isPubliclyListed, creator, capacity, a.config.SecretHashCost)
		if err != nil {
			return nil, err
		}

		id := t.ID()
		e := &entry{
			town:     t,
			sessions: map[string]string{},
		}

		a.townsLock.Lock()
		_, live := a.towns[id]
		_, retired := a.retired[id]
		if live || retired {
			a.townsLock.Unlock()

			log.Debug().
				Str("town", id).
				Msg("Town ID collision, retrying")

			continue
		}

		e.lock.Lock()
		a.seq++
		e.seq = a.seq
		a.towns[id] = e
		a.townsLock.Unlock()

		record := persisters.Town{
			ID:               id,
			FriendlyName:     t.FriendlyName(),
			IsPubliclyListed: t.IsPubliclyListed(),
			Creator:          t.Creator(),
			Admins:           t.Admins(),
			Blockers:         t.Blockers(),
			MaxOccupancy:     t.Capacity(),
		}
		a.write(id, opCreate, func(ctx context.Context) error {
			return a.store.CreateTown(ctx, record)
		})
		e.lock.Unlock()

		log.Debug().
			Str("town", id).
			Str("creator", creator).
			Bool("public", isPubliclyListed).
			Msg("Created town")

		return &TownHandle{
			ID:     id,
			Secret: secret,
		}, nil
	}

	return nil, errIDsExhausted
}

func listing(t *towns.Town) TownListing {
	return TownListing{
		ID:               t.ID(),
		FriendlyName:     t.FriendlyName(),
		CurrentOccupancy: t.Occupancy(),
		MaximumOccupancy: t.Capacity(),
	}
}

func (a *Authority) GetTown(id string) (TownInfo, error) {
	e, err := a.acquire(id)
	if err != nil {
		return TownInfo{}, err
	}
	defer e.lock.Unlock()

	return TownInfo{
		TownListing:      listing(e.town),
		IsPubliclyListed: e.town.IsPubliclyListed(),
		Creator:          e.town.Creator(),
		Admins:           e.town.Admins(),
		Blockers:         e.town.Blockers(),
	}, nil
}

// ListPublicTowns lists publicly listed towns in creation order
func (a *Authority) ListPublicTowns() []TownListing {
	return a.list(func(t *towns.Town) bool {
		return t.IsPubliclyListed()
	})
}

// ListTowns lists every live town, including private ones
func (a *Authority) ListTowns() []TownListing {
	return a.list(func(t *towns.Town) bool {
		return true
	})
}

func (a *Authority) list(include func(t *towns.Town) bool) []TownListing {
	a.townsLock.RLock()
	entries := make([]*entry, 0, len(a.towns))
	for _, e := range a.towns {
		entries = append(entries, e)
	}
	a.townsLock.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	tt := []TownListing{}
	for _, e := range entries {
		e.lock.Lock()
		if !e.deleted && include(e.town) {
			tt = append(tt, listing(e.town))
		}
		e.lock.Unlock()
	}

	return tt
}

// Authorize reports whether secret unlocks the town without mutating it
func (a *Authority) Authorize(id, secret string) bool {
	e, err := a.acquire(id)
	if err != nil {
		return false
	}
	credential := e.town.Credential()
	e.lock.Unlock()

	return authn.Authorize(credential, a.master, secret)
}

// UpdateTown renames and/or changes the visibility of a town. It is all or
// nothing: an empty name rejects the whole update.
func (a *Authority) UpdateTown(id, secret string, friendlyName *string, isPubliclyListed *bool) bool {
	e, ok := a.unlock(id, secret, opUpdateListing)
	if !ok {
		return false
	}
	defer e.lock.Unlock()

	if friendlyName != nil {
		if err := e.town.Rename(*friendlyName); err != nil {
			return false
		}
	}

	if isPubliclyListed != nil {
		e.town.SetPubliclyListed(*isPubliclyListed)
	}

	if friendlyName != nil || isPubliclyListed != nil {
		name, public := e.town.FriendlyName(), e.town.IsPubliclyListed()
		a.write(id, opUpdateListing, func(ctx context.Context) error {
			return a.store.UpdateListing(ctx, id, name, public)
		})
	}

	return true
}

// DeleteTown removes a town for good and disconnects its members
func (a *Authority) DeleteTown(id, secret string) bool {
	e, ok := a.unlock(id, secret, opDelete)
	if !ok {
		return false
	}

	e.deleted = true
	members := len(e.sessions)
	e.sessions = map[string]string{}

	a.townsLock.Lock()
	delete(a.towns, id)
	a.retired[id] = struct{}{}
	a.townsLock.Unlock()

	a.write(id, opDelete, func(ctx context.Context) error {
		return a.store.DeleteTown(ctx, id)
	})
	a.signal(id, opKick, func(ctx context.Context) error {
		return a.broker.PublishKick(ctx, brokers.Kick{Town: id})
	})
	e.lock.Unlock()

	log.Debug().
		Str("town", id).
		Int("members", members).
		Msg("Deleted town")

	return true
}

func onTown(mutate func(t *towns.Town, username string) bool) func(e *entry, username string) bool {
	return func(e *entry, username string) bool {
		return mutate(e.town, username)
	}
}

func (a *Authority) AddAdmin(id, username string) error {
	return a.updateMembership(id, username, opUpdateAdmins, onTown((*towns.Town).AddAdmin))
}

func (a *Authority) RemoveAdmin(id, username string) error {
	return a.updateMembership(id, username, opUpdateAdmins, onTown((*towns.Town).RemoveAdmin))
}

// AddBlocker also ends every session the user holds in the town
func (a *Authority) AddBlocker(id, username string) error {
	return a.updateMembership(id, username, opUpdateBlockers, func(e *entry, username string) bool {
		changed := e.town.AddBlocker(username)
		a.evict(e, username)

		return changed
	})
}

func (a *Authority) RemoveBlocker(id, username string) error {
	return a.updateMembership(id, username, opUpdateBlockers, onTown((*towns.Town).RemoveBlocker))
}

// updateMembership applies an idempotent set mutation and mirrors the
// resulting set to the store, whether or not it changed
func (a *Authority) updateMembership(id, username, op string, mutate func(e *entry, username string) bool) error {
	e, err := a.acquire(id)
	if err != nil {
		return err
	}
	defer e.lock.Unlock()

	if username == "" {
		return towns.ErrMissingUsername
	}

	changed := mutate(e, username)

	switch op {
	case opUpdateAdmins:
		admins := e.town.Admins()
		a.write(id, op, func(ctx context.Context) error {
			return a.store.UpdateAdmins(ctx, id, admins)
		})
	case opUpdateBlockers:
		blockers := e.town.Blockers()
		a.write(id, op, func(ctx context.Context) error {
			return a.store.UpdateBlockers(ctx, id, blockers)
		})
	}

	log.Debug().
		Str("town", id).
		Str("username", username).
		Str("op", op).
		Bool("changed", changed).
		Msg("Updated membership")

	return nil
}

func (a *Authority) ListMembership(id string) (Membership, error) {
	e, err := a.acquire(id)
	if err != nil {
		return Membership{}, err
	}
	defer e.lock.Unlock()

	return Membership{
		Admins:   e.town.Admins(),
		Blockers: e.town.Blockers(),
	}, nil
}

// Join registers a session for username in the town
func (a *Authority) Join(id, username string) (*Session, error) {
	e, err := a.acquire(id)
	if err != nil {
		return nil, err
	}
	defer e.lock.Unlock()

	if username == "" {
		return nil, towns.ErrMissingUsername
	}

	if e.town.IsBlocked(username) {
		return nil, ErrBlocked
	}

	if e.town.Full() {
		return nil, ErrTownFull
	}

	session := &Session{
		ID:       uuid.NewString(),
		Town:     id,
		Username: username,
	}

	e.sessions[session.ID] = username
	e.town.IncrementOccupancy()
	a.mirrorUsers(e)
	a.publishOccupancy(e.town)

	return session, nil
}

// Leave ends a session. Unknown sessions are ignored.
func (a *Authority) Leave(id, sessionID string) error {
	e, err := a.acquire(id)
	if err != nil {
		return err
	}
	defer e.lock.Unlock()

	if _, ok := e.sessions[sessionID]; !ok {
		return nil
	}

	delete(e.sessions, sessionID)
	e.town.DecrementOccupancy()
	a.mirrorUsers(e)
	a.publishOccupancy(e.town)

	return nil
}

// HasSession reports whether a session is still live. Sessions end on leave,
// on deletion of their town and when their user gets blocked.
func (a *Authority) HasSession(id, sessionID string) bool {
	e, err := a.acquire(id)
	if err != nil {
		return false
	}
	defer e.lock.Unlock()

	_, ok := e.sessions[sessionID]

	return ok
}

func (a *Authority) evict(e *entry, username string) {
	evicted := 0
	for sessionID, candidate := range e.sessions {
		if candidate != username {
			continue
		}

		delete(e.sessions, sessionID)
		e.town.DecrementOccupancy()
		evicted++
	}

	if evicted == 0 {
		return
	}

	a.mirrorUsers(e)
	a.publishOccupancy(e.town)

	id := e.town.ID()
	a.signal(id, opKick, func(ctx context.Context) error {
		return a.broker.PublishKick(ctx, brokers.Kick{Town: id, Username: username})
	})

	log.Debug().
		Str("town", id).
		Str("username", username).
		Int("sessions", evicted).
		Msg("Evicted blocked user")
}

// mirrorUsers writes one username per live session to the store
func (a *Authority) mirrorUsers(e *entry) {
	users := make([]string, 0, len(e.sessions))
	for _, username := range e.sessions {
		users = append(users, username)
	}
	sort.Strings(users)

	id := e.town.ID()
	a.write(id, opUpdateUsers, func(ctx context.Context) error {
		return a.store.UpdateUsers(ctx, id, users)
	})
}

func (a *Authority) publishOccupancy(t *towns.Town) {
	occupancy := brokers.Occupancy{
		Town:    t.ID(),
		Current: t.Occupancy(),
		Maximum: t.Capacity(),
	}

	a.signal(t.ID(), opOccupancy, func(ctx context.Context) error {
		return a.broker.PublishOccupancy(ctx, occupancy)
	})
}

// LoadFromStore instantiates one town per persisted record. It only ever
// loads once; later calls are no-ops. A failed load leaves the authority
// unloaded.
func (a *Authority) LoadFromStore(ctx context.Context) error {
	a.loadLock.Lock()
	defer a.loadLock.Unlock()

	if a.loaded {
		return nil
	}

	if a.store == nil {
		a.loaded = true

		return nil
	}

	records, err := a.store.ListTowns(ctx)
	if err != nil {
		return fmt.Errorf("could not load towns from store: %w", err)
	}

	a.townsLock.Lock()
	loaded := 0
	for _, r := range records {
		if r.ID == "" {
			log.Warn().
				Str("name", r.FriendlyName).
				Msg("Skipping stored town without ID")

			continue
		}

		_, live := a.towns[r.ID]
		_, retired := a.retired[r.ID]
		if live || retired {
			log.Warn().
				Str("town", r.ID).
				Msg("Skipping duplicate stored town")

			continue
		}

		capacity := r.MaxOccupancy
		if capacity <= 0 {
			capacity = a.config.DefaultCapacity
		}

		a.seq++
		a.towns[r.ID] = &entry{
			seq:      a.seq,
			town:     towns.Restore(r.ID, r.FriendlyName, r.IsPubliclyListed, r.Creator, capacity, r.Admins, r.Blockers),
			sessions: map[string]string{},
		}
		loaded++
	}
	a.townsLock.Unlock()

	a.loaded = true

	log.Info().
		Int("towns", loaded).
		Msg("Loaded towns from store")

	return nil
}

// Flush waits for queued write-through and transport signals
func (a *Authority) Flush() {
	a.writes.wait()
	a.transport.wait()
}

// Close waits for queued deliveries. Later writes and signals are dropped.
func (a *Authority) Close() error {
	log.Trace().Msg("Closing authority")

	a.writes.close()
	a.transport.close()

	return nil
}
