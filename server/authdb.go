package server

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var errBadCredentialEncoding = errors.New("invalid credential encoding")

// SQLiteStore keeps accounts and bans in a sqlite database. SRP salt
// and verifier are stored as one base64 pair per account.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "storage/auth.sqlite"
	}
	os.MkdirAll(filepath.Dir(path), 0775)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	init := `CREATE TABLE IF NOT EXISTS auth (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(32) NOT NULL UNIQUE,
		password VARCHAR(512) NOT NULL,
		admin INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS ban (
		addr VARCHAR(39) NOT NULL,
		name VARCHAR(32) NOT NULL,
		reason VARCHAR(256),
		expires INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := db.Exec(init); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// encodeVerifierAndSalt packs salt and verifier into one DB column.
func encodeVerifierAndSalt(salt, verifier []byte) string {
	return base64.StdEncoding.EncodeToString(salt) + "#" + base64.StdEncoding.EncodeToString(verifier)
}

func decodeVerifierAndSalt(src string) (salt, verifier []byte, err error) {
	parts := strings.Split(src, "#")
	if len(parts) != 2 {
		return nil, nil, errBadCredentialEncoding
	}

	salt, err = base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, err
	}

	verifier, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, err
	}

	return salt, verifier, nil
}

// HasUser reports whether an account exists.
func (s *SQLiteStore) HasUser(name string) (bool, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM auth WHERE name = ?;`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// Register creates an account and returns its id.
func (s *SQLiteStore) Register(name string, salt, verifier []byte) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO auth (name, password) VALUES (?, ?);`,
		name, encodeVerifierAndSalt(salt, verifier))
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// Credentials returns the stored salt, verifier and account id.
func (s *SQLiteStore) Credentials(name string) (salt, verifier []byte, id int64, err error) {
	var password string
	err = s.db.QueryRow(`SELECT id, password FROM auth WHERE name = ?;`, name).Scan(&id, &password)
	if err != nil {
		return nil, nil, 0, err
	}

	salt, verifier, err = decodeVerifierAndSalt(password)
	if err != nil {
		return nil, nil, 0, err
	}

	return salt, verifier, id, nil
}

// SetPassword replaces an account's salt and verifier.
func (s *SQLiteStore) SetPassword(name string, salt, verifier []byte) error {
	_, err := s.db.Exec(`UPDATE auth SET password = ? WHERE name = ?;`,
		encodeVerifierAndSalt(salt, verifier), name)
	return err
}

// IsAdmin reports whether the account holds the admin flag.
func (s *SQLiteStore) IsAdmin(name string) (bool, error) {
	var admin int
	err := s.db.QueryRow(`SELECT admin FROM auth WHERE name = ?;`, name).Scan(&admin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return admin != 0, nil
}

// SetAdmin grants or revokes the admin flag.
func (s *SQLiteStore) SetAdmin(name string, admin bool) error {
	v := 0
	if admin {
		v = 1
	}
	_, err := s.db.Exec(`UPDATE auth SET admin = ? WHERE name = ?;`, v, name)
	return err
}

// Ban records a ban for the address and account. A zero duration
// bans permanently, otherwise expires holds the unix expiry time.
func (s *SQLiteStore) Ban(addr, name, reason string, d time.Duration) error {
	var expires int64
	if d != 0 {
		expires = time.Now().Add(d).Unix()
	}

	_, err := s.db.Exec(`INSERT INTO ban (addr, name, reason, expires) VALUES (?, ?, ?, ?);`,
		addr, name, reason, expires)
	return err
}

// Unban deletes every ban matching the name or address.
func (s *SQLiteStore) Unban(nameOrAddr string) error {
	_, err := s.db.Exec(`DELETE FROM ban WHERE name = ? OR addr = ?;`, nameOrAddr, nameOrAddr)
	return err
}

// IsBanned reports whether the address or account is banned, with
// the recorded reason. Expired bans are pruned on the way.
func (s *SQLiteStore) IsBanned(addr, name string) (bool, string, error) {
	now := time.Now().Unix()
	if _, err := s.db.Exec(`DELETE FROM ban WHERE expires != 0 AND expires <= ?;`, now); err != nil {
		return false, "", err
	}

	var reason string
	err := s.db.QueryRow(`SELECT reason FROM ban WHERE addr = ? OR name = ?;`, addr, name).Scan(&reason)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}

	return true, reason, nil
}

// BanEntry is one row of the ban table.
type BanEntry struct {
	Addr    string
	Name    string
	Reason  string
	Expires time.Time
}

func (e BanEntry) String() string {
	until := "permanent"
	if !e.Expires.IsZero() {
		until = "until " + e.Expires.Format(time.RFC3339)
	}
	return fmt.Sprintf("%s (%s): %s [%s]", e.Name, e.Addr, e.Reason, until)
}

// BanList returns every active ban.
func (s *SQLiteStore) BanList() ([]BanEntry, error) {
	rows, err := s.db.Query(`SELECT addr, name, reason, expires FROM ban;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BanEntry
	for rows.Next() {
		var e BanEntry
		var expires int64
		if err := rows.Scan(&e.Addr, &e.Name, &e.Reason, &expires); err != nil {
			return nil, err
		}
		if expires != 0 {
			e.Expires = time.Unix(expires, 0)
		}
		out = append(out, e)
	}

	return out, rows.Err()
}
