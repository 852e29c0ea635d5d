package coveysrv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	rediserr "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/Zechen-Wang/covey.town/internal/api/rest"
	api "github.com/Zechen-Wang/covey.town/internal/api/websocket"
	"github.com/Zechen-Wang/covey.town/internal/authn"
	"github.com/Zechen-Wang/covey.town/internal/authn/basic"
	"github.com/Zechen-Wang/covey.town/internal/authority"
	"github.com/Zechen-Wang/covey.town/internal/brokers"
	"github.com/Zechen-Wang/covey.town/internal/brokers/process"
	"github.com/Zechen-Wang/covey.town/internal/brokers/redis"
	"github.com/Zechen-Wang/covey.town/internal/persisters"
	"github.com/Zechen-Wang/covey.town/internal/persisters/memory"
	"github.com/Zechen-Wang/covey.town/internal/persisters/mongo"
	"github.com/Zechen-Wang/covey.town/internal/persisters/psql"
	"github.com/Zechen-Wang/covey.town/internal/towns"
)

var (
	ErrUnsupportedDatabase = errors.New("unsupported database URL scheme")

	errInvalidPassword    = &statusError{http.StatusBadRequest, errors.New("Invalid password. Please double check your town update password.")}
	errUnauthorized       = &statusError{http.StatusUnauthorized, errors.New("invalid master password")}
	errManagementDisabled = &statusError{http.StatusNotImplemented, errors.New("master password not set, management API is disabled")}

	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

const (
	eventBuffer = 8

	reasonTownClosed = "town closed"
	reasonBlocked    = "blocked from town"
)

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string {
	return e.err.Error()
}

func (e *statusError) Unwrap() error {
	return e.err
}

type connection struct {
	username string
	events   chan interface{}
	closer   chan struct{}

	// reason is set before closer is closed
	reason string
}

type ServerConfig struct {
	Heartbeat                time.Duration
	MasterSecret             string
	DefaultCapacity          int
	SecretHashCost           int
	WriteTimeout             time.Duration
	AllowedOrigins           []string
	MembershipRequiresSecret bool

	OnConnect    func(raddr string, town string, username string)
	OnDisconnect func(raddr string, town string, username string, err error)
}

type Server struct {
	laddr     string
	dbURL     string
	brokerURL string
	config    *ServerConfig
	ctx       context.Context

	errs            chan error
	connectionsLock sync.Mutex
	connections     map[string]map[string]*connection
	sessions        sync.WaitGroup
	db              persisters.TownsPersister
	broker          brokers.TownsBroker
	authn           authn.Authn
	master          authn.Master
	authority       *authority.Authority
	upgrader        websocket.Upgrader
	listener        net.Listener
	srv             *http.Server
	closeKicks      func() error
	closeOccupancy  func() error
}

func NewServer(
	laddr string,
	dbURL string,
	brokerURL string,
	config *ServerConfig,
	ctx context.Context,
) *Server {
	if config == nil {
		config = &ServerConfig{}
	}

	if config.Heartbeat <= 0 {
		config.Heartbeat = time.Second * 10
	}

	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	return &Server{
		laddr:     laddr,
		dbURL:     dbURL,
		brokerURL: brokerURL,
		config:    config,
		ctx:       ctx,

		errs: make(chan error),
	}
}

// NewTownsPersister picks the store implementation from the URL scheme. An
// empty URL selects the in-memory store.
func NewTownsPersister(dbURL string) (persisters.TownsPersister, error) {
	if strings.TrimSpace(dbURL) == "" {
		return memory.NewTownsPersister(), nil
	}

	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		return psql.NewTownsPersister(), nil
	case "mongodb", "mongodb+srv":
		return mongo.NewTownsPersister(), nil
	}

	return nil, fmt.Errorf("%w: %v", ErrUnsupportedDatabase, u.Scheme)
}

func (s *Server) Open() error {
	log.Trace().Msg("Opening server")

	db, err := NewTownsPersister(s.dbURL)
	if err != nil {
		return err
	}

	if err := db.Open(s.ctx, s.dbURL); err != nil {
		return err
	}
	s.db = db

	if strings.TrimSpace(s.brokerURL) == "" {
		s.broker = process.NewTownsBroker()
	} else {
		s.broker = redis.NewTownsBroker()
	}

	if err := s.broker.Open(s.ctx, s.brokerURL); err != nil {
		return err
	}

	s.master = authn.NewMaster(s.config.MasterSecret)
	if !s.master.Enabled() {
		log.Debug().Msg("Master password not set, disabling management API")
	}

	s.authn = basic.NewAuthn(s.master)
	if err := s.authn.Open(s.ctx); err != nil {
		return err
	}

	s.authority = authority.NewAuthority(
		s.db,
		s.broker,
		&authority.Config{
			MasterSecret:    s.config.MasterSecret,
			DefaultCapacity: s.config.DefaultCapacity,
			SecretHashCost:  s.config.SecretHashCost,
			WriteTimeout:    s.config.WriteTimeout,
		},
		s.ctx,
	)

	if err := s.authority.LoadFromStore(s.ctx); err != nil {
		return err
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	s.connections = map[string]map[string]*connection{}

	kicks, closeKicks := s.broker.SubscribeToKicks(s.ctx, s.errs)
	s.closeKicks = closeKicks

	occupancy, closeOccupancy := s.broker.SubscribeToOccupancy(s.ctx, s.errs)
	s.closeOccupancy = closeOccupancy

	go func() {
		for {
			select {
			case <-s.ctx.Done():
				return
			case kick, ok := <-kicks:
				if !ok {
					return
				}

				s.kick(kick)
			case o, ok := <-occupancy:
				if !ok {
					return
				}

				s.notify(o.Town, api.NewOccupancy(o.Town, o.Current, o.Maximum))
			}
		}
	}()

	s.listener, err = net.Listen("tcp", s.laddr)
	if err != nil {
		return err
	}

	s.srv = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.srv.Serve(s.listener); err != nil {
			if err == http.ErrServerClosed {
				close(s.errs)

				return
			}

			s.errs <- err

			return
		}
	}()

	return nil
}

// Addr is the address the server is listening on
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /towns", s.handle(s.listPublicTowns))
	mux.HandleFunc("GET /towns/all", s.handle(s.listAllTowns))
	mux.HandleFunc("POST /towns", s.handle(s.createTown))
	mux.HandleFunc("GET /towns/{id}", s.handle(s.getTown))
	mux.HandleFunc("PATCH /towns/{id}", s.handle(s.updateTown))
	mux.HandleFunc("DELETE /towns/{id}", s.handle(s.deleteTown))
	mux.HandleFunc("GET /towns/{id}/members", s.handle(s.listMembership))
	mux.HandleFunc("PUT /towns/{id}/admins/{username}", s.handle(s.updateMembership(s.authority.AddAdmin)))
	mux.HandleFunc("DELETE /towns/{id}/admins/{username}", s.handle(s.updateMembership(s.authority.RemoveAdmin)))
	mux.HandleFunc("PUT /towns/{id}/blockers/{username}", s.handle(s.updateMembership(s.authority.AddBlocker)))
	mux.HandleFunc("DELETE /towns/{id}/blockers/{username}", s.handle(s.updateMembership(s.authority.RemoveBlocker)))
	mux.HandleFunc("GET /towns/{id}/join", s.handle(s.joinTown))

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.config.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	return handlers.RecoveryHandler()(cors(mux))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}

func (s *Server) handle(fn func(rw http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		err := fn(rw, r)
		if err == nil {
			return
		}

		status := statusFor(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			message = http.StatusText(status)

			log.Error().
				Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("Could not handle request")
		} else {
			log.Debug().
				Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Msg("Rejected request")
		}

		if status == http.StatusUnauthorized {
			rw.Header().Set("WWW-Authenticate", `Basic realm="covey"`)
		}

		writeJSON(rw, status, rest.ErrorResponse{Message: message})
	}
}

func statusFor(err error) int {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.status
	case errors.Is(err, towns.ErrMissingFriendlyName), errors.Is(err, towns.ErrMissingUsername):
		return http.StatusBadRequest
	case errors.Is(err, authority.ErrTownNotFound):
		return http.StatusNotFound
	case errors.Is(err, authority.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, authority.ErrTownFull):
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Debug().
			Err(err).
			Msg("Could not write response")
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &statusError{http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)}
	}

	return nil
}

func (s *Server) listPublicTowns(rw http.ResponseWriter, r *http.Request) error {
	writeJSON(rw, http.StatusOK, rest.TownsResponse{Towns: s.authority.ListPublicTowns()})

	return nil
}

func (s *Server) listAllTowns(rw http.ResponseWriter, r *http.Request) error {
	if !s.master.Enabled() {
		return errManagementDisabled
	}

	u, p, ok := r.BasicAuth()
	if err := s.authn.Validate(u, p); !ok || err != nil {
		return errUnauthorized
	}

	writeJSON(rw, http.StatusOK, rest.TownsResponse{Towns: s.authority.ListTowns()})

	return nil
}

func (s *Server) createTown(rw http.ResponseWriter, r *http.Request) error {
	req := rest.CreateTownRequest{}
	if err := decode(r, &req); err != nil {
		return err
	}

	handle, err := s.authority.CreateTown(req.FriendlyName, req.IsPubliclyListed, req.Creator, req.MaxOccupancy)
	if err != nil {
		return err
	}

	writeJSON(rw, http.StatusOK, handle)

	return nil
}

func (s *Server) getTown(rw http.ResponseWriter, r *http.Request) error {
	info, err := s.authority.GetTown(r.PathValue("id"))
	if err != nil {
		return err
	}

	writeJSON(rw, http.StatusOK, info)

	return nil
}

// rejected tells unknown towns apart from wrong passwords after a refused
// update or delete
func (s *Server) rejected(id string) error {
	if _, err := s.authority.GetTown(id); err != nil {
		return err
	}

	return errInvalidPassword
}

func (s *Server) updateTown(rw http.ResponseWriter, r *http.Request) error {
	req := rest.UpdateTownRequest{}
	if err := decode(r, &req); err != nil {
		return err
	}

	id := r.PathValue("id")
	if !s.authority.UpdateTown(id, req.Password, req.FriendlyName, req.IsPubliclyListed) {
		return s.rejected(id)
	}

	rw.WriteHeader(http.StatusNoContent)

	return nil
}

func (s *Server) deleteTown(rw http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if !s.authority.DeleteTown(id, r.URL.Query().Get("password")) {
		return s.rejected(id)
	}

	rw.WriteHeader(http.StatusNoContent)

	return nil
}

func (s *Server) listMembership(rw http.ResponseWriter, r *http.Request) error {
	membership, err := s.authority.ListMembership(r.PathValue("id"))
	if err != nil {
		return err
	}

	writeJSON(rw, http.StatusOK, membership)

	return nil
}

func (s *Server) updateMembership(update func(id, username string) error) func(rw http.ResponseWriter, r *http.Request) error {
	return func(rw http.ResponseWriter, r *http.Request) error {
		id := r.PathValue("id")

		if s.config.MembershipRequiresSecret && !s.authority.Authorize(id, r.URL.Query().Get("password")) {
			return s.rejected(id)
		}

		if err := update(id, r.PathValue("username")); err != nil {
			return err
		}

		rw.WriteHeader(http.StatusNoContent)

		return nil
	}
}

func (s *Server) joinTown(rw http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	username := r.URL.Query().Get("username")

	session, err := s.authority.Join(id, username)
	if err != nil {
		return err
	}

	s.sessions.Add(1)
	defer s.sessions.Done()

	defer func() {
		if err := s.authority.Leave(id, session.ID); err != nil && !errors.Is(err, authority.ErrTownNotFound) {
			log.Warn().
				Err(err).
				Str("town", id).
				Msg("Could not leave town")
		}
	}()

	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		// The upgrader has already replied
		log.Debug().
			Err(err).
			Str("town", id).
			Msg("Could not upgrade connection")

		return nil
	}

	raddr := uuid.New().String()
	c := &connection{
		username: username,
		events:   make(chan interface{}, eventBuffer),
		closer:   make(chan struct{}),
	}

	var disconnectErr error
	defer func() {
		s.connectionsLock.Lock()
		if cc, ok := s.connections[id]; ok {
			delete(cc, raddr)
			if len(cc) <= 0 {
				delete(s.connections, id)
			}
		}
		s.connectionsLock.Unlock()

		log.Debug().
			Str("address", raddr).
			Str("town", id).
			Msg("Disconnected from client")

		if s.config.OnDisconnect != nil {
			s.config.OnDisconnect(raddr, id, username, disconnectErr)
		}

		_ = conn.Close()
	}()

	s.connectionsLock.Lock()
	if _, exists := s.connections[id]; !exists {
		s.connections[id] = map[string]*connection{}
	}
	s.connections[id][raddr] = c
	s.connectionsLock.Unlock()

	// A kick published before we registered would have missed us
	info, err := s.authority.GetTown(id)
	if err != nil || !s.authority.HasSession(id, session.ID) {
		_ = s.write(conn, api.NewKick(id))

		return nil
	}

	log.Debug().
		Str("address", raddr).
		Str("town", id).
		Str("username", username).
		Msg("Connected from client")

	if s.config.OnConnect != nil {
		s.config.OnConnect(raddr, id, username)
	}

	if err := s.write(conn, api.NewWelcome(session.ID, id, info.FriendlyName, username)); err != nil {
		disconnectErr = err

		return nil
	}

	if err := conn.SetReadDeadline(time.Now().Add(s.config.Heartbeat)); err != nil {
		disconnectErr = err

		return nil
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.Heartbeat))
	})

	pings := time.NewTicker(s.config.Heartbeat / 2)
	defer pings.Stop()

	errs := make(chan error, 1)
	go func() {
		for {
			// Clients have nothing to say; reading keeps pongs and closes flowing
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					errs <- err

					return
				}

				errs <- nil

				return
			}
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-c.closer:
			_ = s.write(conn, api.NewKick(id))
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason),
				time.Now().Add(s.config.Heartbeat),
			)

			return nil
		case err := <-errs:
			disconnectErr = err

			return nil
		case event := <-c.events:
			if err := s.write(conn, event); err != nil {
				disconnectErr = err

				return nil
			}
		case <-pings.C:
			log.Trace().
				Str("address", raddr).
				Str("town", id).
				Msg("Sending ping to client")

			if err := conn.SetWriteDeadline(time.Now().Add(s.config.Heartbeat)); err != nil {
				disconnectErr = err

				return nil
			}

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				disconnectErr = err

				return nil
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, event interface{}) error {
	p, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := conn.SetWriteDeadline(time.Now().Add(s.config.Heartbeat)); err != nil {
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, p)
}

// kick disconnects the local sessions of a town, or only those of one user
func (s *Server) kick(kick brokers.Kick) {
	s.connectionsLock.Lock()
	kicked := 0
	for raddr, c := range s.connections[kick.Town] {
		if kick.Username != "" && c.username != kick.Username {
			continue
		}

		c.reason = reasonTownClosed
		if kick.Username != "" {
			c.reason = reasonBlocked
		}
		close(c.closer)

		delete(s.connections[kick.Town], raddr)
		kicked++
	}

	if len(s.connections[kick.Town]) <= 0 {
		delete(s.connections, kick.Town)
	}
	s.connectionsLock.Unlock()

	log.Debug().
		Str("town", kick.Town).
		Str("username", kick.Username).
		Int("sessions", kicked).
		Msg("Kicked sessions")
}

// notify drops events for sessions that are not keeping up
func (s *Server) notify(town string, event interface{}) {
	s.connectionsLock.Lock()
	defer s.connectionsLock.Unlock()

	for _, c := range s.connections[town] {
		select {
		case c.events <- event:
		default:
		}
	}
}

func (s *Server) Close() error {
	log.Trace().Msg("Closing server")

	s.connectionsLock.Lock()
	for town, cc := range s.connections {
		for _, c := range cc {
			c.reason = reasonTownClosed
			close(c.closer)
		}

		delete(s.connections, town)
	}
	s.connectionsLock.Unlock()

	if err := s.srv.Shutdown(s.ctx); err != nil {
		if err != context.Canceled {
			return err
		}
	}

	s.sessions.Wait()

	if err := s.authority.Close(); err != nil {
		return err
	}

	if err := s.closeKicks(); err != nil {
		if err != context.Canceled {
			return err
		}
	}

	if err := s.closeOccupancy(); err != nil {
		if err != context.Canceled {
			return err
		}
	}

	if err := s.broker.Close(); err != nil {
		if err != context.Canceled && err != rediserr.ErrClosed {
			return err
		}
	}

	return s.db.Close()
}

func (s *Server) Wait() error {
	for err := range s.errs {
		if err != nil {
			return err
		}
	}

	return nil
}
