package psql

import migrate "github.com/rubenv/sql-migrate"

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1-towns",
			Up: []string{
				`create table if not exists towns (
    id text primary key,
    friendly_name text not null,
    is_publicly_listed boolean not null default false,
    creator text not null default '',
    admins text[] not null default '{}',
    blockers text[] not null default '{}',
    max_occupancy integer
)`,
			},
			Down: []string{
				`drop table if exists towns`,
			},
		},
		{
			Id: "2-town-users",
			Up: []string{
				`alter table towns add column if not exists users text[] not null default '{}'`,
			},
			Down: []string{
				`alter table towns drop column if exists users`,
			},
		},
	},
}
