package mongo

import (
	"context"
	"net/url"
	"strings"

	"github.com/Zechen-Wang/covey.town/internal/persisters"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultDatabase    = "covey"
	roomCollection     = "room"
	roomUserCollection = "roomUser"
)

// room is the document layout shared with the covey.town room service
type room struct {
	RoomID       string   `bson:"roomid"`
	RoomName     string   `bson:"roomname"`
	Admins       []string `bson:"admins"`
	Creator      string   `bson:"creator"`
	Blockers     []string `bson:"blockers"`
	IsPublic     bool     `bson:"isPublic"`
	MaxOccupancy int      `bson:"maxOccupancy,omitempty"`
}

// roomUser lists the users of a room, one entry per session
type roomUser struct {
	RoomID string   `bson:"roomid"`
	Users  []string `bson:"users"`
}

type TownsPersister struct {
	client    *mongo.Client
	rooms     *mongo.Collection
	roomUsers *mongo.Collection
}

func NewTownsPersister() *TownsPersister {
	return &TownsPersister{}
}

func (p *TownsPersister) Open(ctx context.Context, dbURL string) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dbURL))
	if err != nil {
		return err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)

		return err
	}

	db := client.Database(databaseName(dbURL))

	p.client = client
	p.rooms = db.Collection(roomCollection)
	p.roomUsers = db.Collection(roomUserCollection)

	for _, c := range []*mongo.Collection{p.rooms, p.roomUsers} {
		if _, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "roomid", Value: 1}},
			Options: options.Index().SetUnique(true),
		}); err != nil {
			return err
		}
	}

	return nil
}

func (p *TownsPersister) ListTowns(ctx context.Context) ([]persisters.Town, error) {
	cursor, err := p.rooms.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}

	var rooms []room
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, err
	}

	tt := []persisters.Town{}
	for _, r := range rooms {
		tt = append(tt, persisters.Town{
			ID:               r.RoomID,
			FriendlyName:     r.RoomName,
			IsPubliclyListed: r.IsPublic,
			Creator:          r.Creator,
			Admins:           r.Admins,
			Blockers:         r.Blockers,
			MaxOccupancy:     r.MaxOccupancy,
		})
	}

	return tt, nil
}

func (p *TownsPersister) CreateTown(ctx context.Context, t persisters.Town) error {
	if _, err := p.rooms.InsertOne(ctx, room{
		RoomID:       t.ID,
		RoomName:     t.FriendlyName,
		Admins:       nonNil(t.Admins),
		Creator:      t.Creator,
		Blockers:     nonNil(t.Blockers),
		IsPublic:     t.IsPubliclyListed,
		MaxOccupancy: t.MaxOccupancy,
	}); err != nil {
		return err
	}

	_, err := p.roomUsers.InsertOne(ctx, roomUser{
		RoomID: t.ID,
		Users:  nonNil(t.Users),
	})

	return err
}

func (p *TownsPersister) UpdateListing(ctx context.Context, id string, friendlyName string, isPubliclyListed bool) error {
	return p.set(ctx, id, bson.M{"roomname": friendlyName, "isPublic": isPubliclyListed})
}

func (p *TownsPersister) UpdateAdmins(ctx context.Context, id string, admins []string) error {
	return p.set(ctx, id, bson.M{"admins": nonNil(admins)})
}

func (p *TownsPersister) UpdateBlockers(ctx context.Context, id string, blockers []string) error {
	return p.set(ctx, id, bson.M{"blockers": nonNil(blockers)})
}

// UpdateUsers upserts, since rooms created by other services may lack a user list
func (p *TownsPersister) UpdateUsers(ctx context.Context, id string, users []string) error {
	if n, err := p.rooms.CountDocuments(ctx, bson.M{"roomid": id}); err != nil {
		return err
	} else if n <= 0 {
		return persisters.ErrNoSuchTown
	}

	_, err := p.roomUsers.UpdateOne(
		ctx,
		bson.M{"roomid": id},
		bson.M{"$set": bson.M{"users": nonNil(users)}},
		options.Update().SetUpsert(true),
	)

	return err
}

func (p *TownsPersister) set(ctx context.Context, id string, fields bson.M) error {
	res, err := p.rooms.UpdateOne(ctx, bson.M{"roomid": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}

	if res.MatchedCount <= 0 {
		return persisters.ErrNoSuchTown
	}

	return nil
}

func (p *TownsPersister) DeleteTown(ctx context.Context, id string) error {
	res, err := p.rooms.DeleteOne(ctx, bson.M{"roomid": id})
	if err != nil {
		return err
	}

	if res.DeletedCount <= 0 {
		return persisters.ErrNoSuchTown
	}

	if _, err := p.roomUsers.DeleteOne(ctx, bson.M{"roomid": id}); err != nil {
		return err
	}

	return nil
}

func (p *TownsPersister) Close() error {
	if p.client == nil {
		return nil
	}

	return p.client.Disconnect(context.Background())
}

// databaseName picks the database from the URL path, i.e. mongodb://host/covey
func databaseName(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return defaultDatabase
	}

	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}

	return defaultDatabase
}

func nonNil(usernames []string) []string {
	if usernames == nil {
		return []string{}
	}

	return usernames
}
