package replay

import (
	"database/sql"
	"fmt"

	cerrors "github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/aeikum/fossilize/state"
)

// ResourceTag identifies one descriptor kind inside a replay database.
type ResourceTag int

const (
	ResourceShaderModule ResourceTag = iota
	ResourceSampler
	ResourceDescriptorSetLayout
	ResourcePipelineLayout
	ResourceRenderPass
	ResourceGraphicsPipeline
	ResourceComputePipeline
)

// Database is the store the supervisor and workers read. The supervisor only
// consults hash-list lengths to partition work; workers load the state
// document itself.
type Database interface {
	// Prepare readies the database for queries. It must be called before
	// any other method.
	Prepare() error
	// HashListForResourceTag returns the recorded hashes for one
	// descriptor kind, in insertion order.
	HashListForResourceTag(tag ResourceTag) ([]state.Hash, error)
	// StateDocument returns the serialized state document.
	StateDocument() ([]byte, error)
	Close() error
}

// SQLiteDatabase is the reference Database implementation: a single SQLite
// file holding the per-kind hash lists and the serialized document.
type SQLiteDatabase struct {
	path string
	db   *sql.DB
}

func OpenSQLiteDatabase(path string) *SQLiteDatabase {
	return &SQLiteDatabase{path: path}
}

const databaseSchema = `
CREATE TABLE IF NOT EXISTS hashes (
	seq  INTEGER PRIMARY KEY AUTOINCREMENT,
	tag  INTEGER NOT NULL,
	hash TEXT    NOT NULL,
	UNIQUE(tag, hash)
);
CREATE TABLE IF NOT EXISTS documents (
	id   INTEGER PRIMARY KEY CHECK (id = 0),
	data BLOB NOT NULL
);
`

// Prepare opens the file, verifies the connection and applies the schema.
func (d *SQLiteDatabase) Prepare() error {
	db, err := sql.Open("sqlite3", d.path)
	if err != nil {
		return cerrors.Wrapf(err, "opening database %s", d.path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return cerrors.Wrapf(err, "connecting to database %s", d.path)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(databaseSchema); err != nil {
		db.Close()
		return cerrors.Wrapf(err, "applying schema to %s", d.path)
	}
	d.db = db
	return nil
}

func (d *SQLiteDatabase) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *SQLiteDatabase) HashListForResourceTag(tag ResourceTag) ([]state.Hash, error) {
	rows, err := d.db.Query(`SELECT hash FROM hashes WHERE tag = ? ORDER BY seq`, int(tag))
	if err != nil {
		return nil, cerrors.Wrapf(err, "querying hashes for tag %d", tag)
	}
	defer rows.Close()

	var hashes []state.Hash
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, cerrors.Wrap(err, "scanning hash row")
		}
		var value uint64
		if _, err := fmt.Sscanf(text, "%x", &value); err != nil {
			return nil, cerrors.Wrapf(err, "bad hash %q in database", text)
		}
		hashes = append(hashes, state.Hash(value))
	}
	return hashes, rows.Err()
}

func (d *SQLiteDatabase) StateDocument() ([]byte, error) {
	var data []byte
	err := d.db.QueryRow(`SELECT data FROM documents WHERE id = 0`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, cerrors.New("database holds no state document")
	}
	if err != nil {
		return nil, cerrors.Wrap(err, "loading state document")
	}
	return data, nil
}

// SaveStateDocument stores the serialized document, replacing any previous
// one.
func (d *SQLiteDatabase) SaveStateDocument(data []byte) error {
	_, err := d.db.Exec(`INSERT OR REPLACE INTO documents (id, data) VALUES (0, ?)`, data)
	return cerrors.Wrap(err, "storing state document")
}

// AddHashes appends hashes for one resource tag. Duplicates are ignored.
func (d *SQLiteDatabase) AddHashes(tag ResourceTag, hashes []state.Hash) error {
	tx, err := d.db.Begin()
	if err != nil {
		return cerrors.Wrap(err, "beginning hash insert")
	}
	for _, h := range hashes {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO hashes (tag, hash) VALUES (?, ?)`,
			int(tag), fmt.Sprintf("%016x", uint64(h))); err != nil {
			tx.Rollback()
			return cerrors.Wrap(err, "inserting hash")
		}
	}
	return tx.Commit()
}
