package psql

import (
	"context"
	"database/sql"

	"github.com/Zechen-Wang/covey.town/internal/drivers/psql"
	"github.com/Zechen-Wang/covey.town/internal/persisters"
	"github.com/friendsofgo/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/types"
)

const (
	listTownsQuery = `select id, friendly_name, is_publicly_listed, creator, admins, blockers, max_occupancy, users from towns order by id`

	createTownQuery = `insert into towns (id, friendly_name, is_publicly_listed, creator, admins, blockers, max_occupancy) values ($1, $2, $3, $4, $5, $6, $7)`

	updateListingQuery  = `update towns set friendly_name = $2, is_publicly_listed = $3 where id = $1`
	updateAdminsQuery   = `update towns set admins = $2 where id = $1`
	updateBlockersQuery = `update towns set blockers = $2 where id = $1`
	updateUsersQuery    = `update towns set users = $2 where id = $1`
	deleteTownQuery     = `delete from towns where id = $1`
)

type town struct {
	ID               string            `boil:"id"`
	FriendlyName     string            `boil:"friendly_name"`
	IsPubliclyListed bool              `boil:"is_publicly_listed"`
	Creator          string            `boil:"creator"`
	Admins           types.StringArray `boil:"admins"`
	Blockers         types.StringArray `boil:"blockers"`
	MaxOccupancy     null.Int          `boil:"max_occupancy"`
	Users            types.StringArray `boil:"users"`
}

type TownsPersister struct {
	driver *psql.PSQL
	db     *sql.DB
}

func NewTownsPersister() *TownsPersister {
	return &TownsPersister{}
}

func (p *TownsPersister) Open(ctx context.Context, dbURL string) error {
	p.driver = &psql.PSQL{
		DBUrl:        dbURL,
		Migrations:   migrations,
		MaxOpenConns: 8,
	}

	if err := p.driver.Open(ctx); err != nil {
		return errors.Wrap(err, "psql: could not open database")
	}

	p.db = p.driver.DB

	return nil
}

func (p *TownsPersister) ListTowns(ctx context.Context) ([]persisters.Town, error) {
	var rows []*town
	if err := queries.Raw(listTownsQuery).Bind(ctx, p.db, &rows); err != nil {
		return nil, errors.Wrap(err, "psql: failed to list towns")
	}

	tt := []persisters.Town{}
	for _, t := range rows {
		tt = append(tt, persisters.Town{
			ID:               t.ID,
			FriendlyName:     t.FriendlyName,
			IsPubliclyListed: t.IsPubliclyListed,
			Creator:          t.Creator,
			Admins:           []string(t.Admins),
			Blockers:         []string(t.Blockers),
			MaxOccupancy:     t.MaxOccupancy.Int,
			Users:            []string(t.Users),
		})
	}

	return tt, nil
}

func (p *TownsPersister) CreateTown(ctx context.Context, t persisters.Town) error {
	if _, err := queries.Raw(
		createTownQuery,
		t.ID,
		t.FriendlyName,
		t.IsPubliclyListed,
		t.Creator,
		nonNil(t.Admins),
		nonNil(t.Blockers),
		null.NewInt(t.MaxOccupancy, t.MaxOccupancy > 0),
	).ExecContext(ctx, p.db); err != nil {
		return errors.Wrap(err, "psql: unable to insert into towns")
	}

	return nil
}

func (p *TownsPersister) UpdateListing(ctx context.Context, id string, friendlyName string, isPubliclyListed bool) error {
	return p.update(ctx, updateListingQuery, id, friendlyName, isPubliclyListed)
}

func (p *TownsPersister) UpdateAdmins(ctx context.Context, id string, admins []string) error {
	return p.update(ctx, updateAdminsQuery, id, nonNil(admins))
}

func (p *TownsPersister) UpdateBlockers(ctx context.Context, id string, blockers []string) error {
	return p.update(ctx, updateBlockersQuery, id, nonNil(blockers))
}

func (p *TownsPersister) UpdateUsers(ctx context.Context, id string, users []string) error {
	return p.update(ctx, updateUsersQuery, id, nonNil(users))
}

func (p *TownsPersister) DeleteTown(ctx context.Context, id string) error {
	return p.update(ctx, deleteTownQuery, id)
}

func (p *TownsPersister) update(ctx context.Context, query string, args ...interface{}) error {
	res, err := queries.Raw(query, args...).ExecContext(ctx, p.db)
	if err != nil {
		return errors.Wrap(err, "psql: unable to update towns")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "psql: failed to get rows affected by update for towns")
	}

	if n <= 0 {
		return persisters.ErrNoSuchTown
	}

	return nil
}

func (p *TownsPersister) Close() error {
	if p.driver == nil {
		return nil
	}

	return p.driver.Close()
}

func nonNil(usernames []string) types.StringArray {
	if usernames == nil {
		return types.StringArray{}
	}

	return types.StringArray(usernames)
}
