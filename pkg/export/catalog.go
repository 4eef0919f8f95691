package export

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one exported frame.
type Record struct {
	SessionID  string
	FrameIndex int
	RectPath   string
	RadialPath string
	CreatedAt  int64
}

// Catalog records exported frames in a sqlite database. Every Catalog value
// belongs to one session, identified by a fresh UUID.
type Catalog struct {
	db      *sql.DB
	session string
}

// OpenCatalog opens or creates the catalog database at path and starts a new
// session.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS exported_frames (
			session_id TEXT NOT NULL,
			frame_index INTEGER NOT NULL,
			rect_path TEXT NOT NULL,
			radial_path TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS exported_frames_session
			ON exported_frames (session_id, frame_index);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}

	return &Catalog{db: db, session: uuid.New().String()}, nil
}

// Session returns the session id of this catalog.
func (c *Catalog) Session() string {
	return c.session
}

// Add records one exported frame in the current session.
func (c *Catalog) Add(index int, rectPath, radialPath string) error {
	_, err := c.db.Exec(`
		INSERT INTO exported_frames (session_id, frame_index, rect_path, radial_path, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.session, index, rectPath, radialPath, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert exported frame %d: %w", index, err)
	}
	return nil
}

// Frames returns the records of a session ordered by frame index and time.
func (c *Catalog) Frames(session string) ([]Record, error) {
	rows, err := c.db.Query(`
		SELECT session_id, frame_index, rect_path, radial_path, created_at
		FROM exported_frames
		WHERE session_id = ?
		ORDER BY frame_index, created_at`, session)
	if err != nil {
		return nil, fmt.Errorf("query exported frames: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.SessionID, &r.FrameIndex, &r.RectPath, &r.RadialPath, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exported frame: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Sessions returns every session id in the catalog, oldest first.
func (c *Catalog) Sessions() ([]string, error) {
	rows, err := c.db.Query(`
		SELECT session_id FROM exported_frames
		GROUP BY session_id
		ORDER BY MIN(created_at)`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
