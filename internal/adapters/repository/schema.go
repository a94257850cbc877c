package repository

// Schema defines the SQLite database structure.
//
// Dedup is enforced at the storage layer: the UNIQUE index on
// (white, black, date, round, event) is the sole serialization point
// for duplicate detection, so two ingestion workers racing on the
// same game resolve to exactly one row without any application-side
// check-then-insert.
//
// Embeddings carry no foreign key because owners may be instructional
// chunks that have no games row; game-owned embeddings are removed
// inside the DeleteGame transaction instead.
const schema = `
CREATE TABLE IF NOT EXISTS games (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL DEFAULT '',
	event TEXT NOT NULL DEFAULT '',
	site TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL DEFAULT '',
	round TEXT NOT NULL DEFAULT '',
	white TEXT NOT NULL,
	black TEXT NOT NULL,
	result TEXT NOT NULL DEFAULT '*',
	white_elo INTEGER NOT NULL DEFAULT 0,
	black_elo INTEGER NOT NULL DEFAULT 0,
	eco TEXT NOT NULL DEFAULT '',
	pgn_text TEXT NOT NULL,
	moves_san TEXT NOT NULL,
	move_count INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE(white, black, date, round, event)
);

CREATE INDEX IF NOT EXISTS idx_games_white ON games(white);
CREATE INDEX IF NOT EXISTS idx_games_black ON games(black);
CREATE INDEX IF NOT EXISTS idx_games_eco ON games(eco);
CREATE INDEX IF NOT EXISTS idx_games_date ON games(date);
CREATE INDEX IF NOT EXISTS idx_games_created_at ON games(created_at);

CREATE TABLE IF NOT EXISTS labels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	value TEXT NOT NULL,
	position_fen TEXT,
	half_move INTEGER,
	created_by TEXT NOT NULL DEFAULT 'operator',
	created_at DATETIME NOT NULL,
	FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_labels_kind_value ON labels(kind, value);
CREATE INDEX IF NOT EXISTS idx_labels_game_id ON labels(game_id);

CREATE TABLE IF NOT EXISTS embeddings (
	owner_id TEXT NOT NULL,
	owner_kind TEXT NOT NULL CHECK(owner_kind IN ('game', 'chunk')),
	model TEXT NOT NULL,
	vector BLOB NOT NULL,
	dim INTEGER NOT NULL,
	source_text TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	PRIMARY KEY (owner_id, model)
);

CREATE INDEX IF NOT EXISTS idx_embeddings_model_kind ON embeddings(model, owner_kind);

CREATE TABLE IF NOT EXISTS player_stats (
	player_name TEXT PRIMARY KEY,
	total_games INTEGER NOT NULL DEFAULT 0,
	wins INTEGER NOT NULL DEFAULT 0,
	draws INTEGER NOT NULL DEFAULT 0,
	losses INTEGER NOT NULL DEFAULT 0,
	avg_cpl REAL,
	blunder_rate REAL,
	best_move_rate REAL,
	most_played_eco TEXT NOT NULL DEFAULT '',
	theme_rates TEXT NOT NULL DEFAULT '{}',
	started_at DATETIME NOT NULL,
	analyzed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS openings (
	eco TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	moves_san TEXT NOT NULL DEFAULT '',
	fen TEXT NOT NULL DEFAULT ''
);
`
