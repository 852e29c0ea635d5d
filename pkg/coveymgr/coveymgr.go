package coveymgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/Zechen-Wang/covey.town/internal/api/rest"
	api "github.com/Zechen-Wang/covey.town/internal/api/websocket"
	"github.com/Zechen-Wang/covey.town/internal/authority"
)

var (
	ErrUnknownEvent = errors.New("unknown event type")

	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// StatusError is returned for every non-2xx response
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.StatusCode)
	}

	return fmt.Sprintf("%v: %v", http.StatusText(e.StatusCode), e.Message)
}

type Manager struct {
	url            string
	masterPassword string
	ctx            context.Context

	client *http.Client
}

func NewManager(
	url string,
	masterPassword string,
	ctx context.Context,
) *Manager {
	return &Manager{
		url:            url,
		masterPassword: masterPassword,
		ctx:            ctx,

		client: &http.Client{},
	}
}

func (m *Manager) endpoint(query url.Values, elem ...string) (*url.URL, error) {
	u, err := url.Parse(m.url)
	if err != nil {
		return nil, err
	}

	escaped := make([]string, len(elem))
	for i, e := range elem {
		escaped[i] = url.PathEscape(e)
	}

	u = u.JoinPath(escaped...)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	return u, nil
}

func (m *Manager) do(method string, query url.Values, body interface{}, out interface{}, master bool, elem ...string) error {
	u, err := m.endpoint(query, elem...)
	if err != nil {
		return err
	}

	var reqBody io.Reader = http.NoBody
	if body != nil {
		p, err := json.Marshal(body)
		if err != nil {
			return err
		}

		reqBody = bytes.NewReader(p)
	}

	req, err := http.NewRequestWithContext(m.ctx, method, u.String(), reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if master {
		req.SetBasicAuth("admin", m.masterPassword)
	}

	res, err := m.client.Do(req)
	if err != nil {
		return err
	}
	if res.Body != nil {
		defer res.Body.Close()
	}

	p, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		e := rest.ErrorResponse{}
		_ = json.Unmarshal(p, &e)

		return &StatusError{
			StatusCode: res.StatusCode,
			Message:    e.Message,
		}
	}

	if out == nil {
		return nil
	}

	return json.Unmarshal(p, out)
}

func (m *Manager) CreateTown(friendlyName string, isPubliclyListed bool, creator string, maxOccupancy int) (*authority.TownHandle, error) {
	h := authority.TownHandle{}
	if err := m.do(http.MethodPost, nil, rest.CreateTownRequest{
		FriendlyName:     friendlyName,
		IsPubliclyListed: isPubliclyListed,
		Creator:          creator,
		MaxOccupancy:     maxOccupancy,
	}, &h, false, "towns"); err != nil {
		return nil, err
	}

	return &h, nil
}

func (m *Manager) ListPublicTowns() ([]authority.TownListing, error) {
	res := rest.TownsResponse{}
	if err := m.do(http.MethodGet, nil, nil, &res, false, "towns"); err != nil {
		return nil, err
	}

	return res.Towns, nil
}

// ListTowns includes private towns and requires the master password
func (m *Manager) ListTowns() ([]authority.TownListing, error) {
	res := rest.TownsResponse{}
	if err := m.do(http.MethodGet, nil, nil, &res, true, "towns", "all"); err != nil {
		return nil, err
	}

	return res.Towns, nil
}

func (m *Manager) GetTown(id string) (*authority.TownInfo, error) {
	info := authority.TownInfo{}
	if err := m.do(http.MethodGet, nil, nil, &info, false, "towns", id); err != nil {
		return nil, err
	}

	return &info, nil
}

func (m *Manager) UpdateTown(id string, password string, friendlyName *string, isPubliclyListed *bool) error {
	return m.do(http.MethodPatch, nil, rest.UpdateTownRequest{
		Password:         password,
		FriendlyName:     friendlyName,
		IsPubliclyListed: isPubliclyListed,
	}, nil, false, "towns", id)
}

func (m *Manager) DeleteTown(id string, password string) error {
	return m.do(http.MethodDelete, url.Values{"password": {password}}, nil, nil, false, "towns", id)
}

func (m *Manager) ListMembership(id string) (*authority.Membership, error) {
	membership := authority.Membership{}
	if err := m.do(http.MethodGet, nil, nil, &membership, false, "towns", id, "members"); err != nil {
		return nil, err
	}

	return &membership, nil
}

// The password is only checked by servers that require it for membership changes
func (m *Manager) AddAdmin(id, username, password string) error {
	return m.membership(http.MethodPut, "admins", id, username, password)
}

func (m *Manager) RemoveAdmin(id, username, password string) error {
	return m.membership(http.MethodDelete, "admins", id, username, password)
}

func (m *Manager) AddBlocker(id, username, password string) error {
	return m.membership(http.MethodPut, "blockers", id, username, password)
}

func (m *Manager) RemoveBlocker(id, username, password string) error {
	return m.membership(http.MethodDelete, "blockers", id, username, password)
}

func (m *Manager) membership(method, set, id, username, password string) error {
	var query url.Values
	if password != "" {
		query = url.Values{"password": {password}}
	}

	return m.do(method, query, nil, nil, false, "towns", id, set, username)
}

// Session is a live membership in a town. Events receives *websocket.Welcome,
// *websocket.Occupancy and *websocket.Kick values until the session ends.
type Session struct {
	Events chan interface{}

	conn      *websocket.Conn
	closeOnce sync.Once
	errs      chan error
}

func (m *Manager) Join(id, username string) (*Session, error) {
	u, err := m.endpoint(url.Values{"username": {username}}, "towns", id, "join")
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, res, err := websocket.DefaultDialer.DialContext(m.ctx, u.String(), nil)
	if err != nil {
		if res != nil && res.StatusCode != http.StatusSwitchingProtocols {
			e := rest.ErrorResponse{}
			if res.Body != nil {
				defer res.Body.Close()

				if p, err := io.ReadAll(res.Body); err == nil {
					_ = json.Unmarshal(p, &e)
				}
			}

			return nil, &StatusError{
				StatusCode: res.StatusCode,
				Message:    e.Message,
			}
		}

		return nil, err
	}

	s := &Session{
		Events: make(chan interface{}),

		conn: conn,
		errs: make(chan error, 1),
	}

	go func() {
		defer close(s.Events)

		for {
			_, p, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					s.errs <- err
				}

				return
			}

			event, err := decodeEvent(p)
			if err != nil {
				log.Debug().
					Err(err).
					Str("town", id).
					Msg("Could not decode event, skipping")

				continue
			}

			select {
			case s.Events <- event:
			case <-m.ctx.Done():
				return
			}
		}
	}()

	return s, nil
}

func decodeEvent(p []byte) (interface{}, error) {
	raw := map[string]interface{}{}
	if err := json.Unmarshal(p, &raw); err != nil {
		return nil, err
	}

	var event interface{}
	switch raw["type"] {
	case api.TypeWelcome:
		event = &api.Welcome{}
	case api.TypeOccupancy:
		event = &api.Occupancy{}
	case api.TypeKick:
		event = &api.Kick{}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownEvent, raw["type"])
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           event,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}

	return event, nil
}

// Err returns the error that ended the session, if any
func (s *Session) Err() error {
	select {
	case err := <-s.errs:
		return err
	default:
		return nil
	}
}

// Close leaves the town
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

		err = s.conn.Close()
	})

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
