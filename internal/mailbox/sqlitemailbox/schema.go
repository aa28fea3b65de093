package sqlitemailbox

const schema = `
CREATE TABLE IF NOT EXISTS namespaces (
	id     TEXT PRIMARY KEY,
	secret TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS identities (
	id           TEXT PRIMARY KEY,
	namespace_id TEXT NOT NULL REFERENCES namespaces(id),
	secret       TEXT NOT NULL,
	display_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	id           TEXT PRIMARY KEY,
	namespace_id TEXT NOT NULL REFERENCES namespaces(id),
	display_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id     TEXT NOT NULL REFERENCES rooms(id),
	identity_id TEXT NOT NULL REFERENCES identities(id),
	PRIMARY KEY (room_id, identity_id)
);

CREATE TABLE IF NOT EXISTS inbox_messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	to_id        TEXT NOT NULL,
	from_id      TEXT NOT NULL,
	body         BLOB NOT NULL,
	content_type TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inbox_to_seq ON inbox_messages(to_id, seq);

CREATE TABLE IF NOT EXISTS room_messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id      TEXT NOT NULL,
	from_id      TEXT NOT NULL,
	body         BLOB NOT NULL,
	content_type TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_room_seq ON room_messages(room_id, seq);
`
