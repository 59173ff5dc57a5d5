package server

import (
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/voxelcraft/vcnet"
)

var (
	backupBucket = []byte("world")
	backupState  = []byte("state")
	backupSeq    = []byte("seq")
)

// BackupStore persists the world encoding to a bolt database so a
// restarted server resumes from its last state.
type BackupStore struct {
	db *bolt.DB
}

func OpenBackupStore(path string) (*BackupStore, error) {
	if path == "" {
		path = "storage/world.db"
	}
	os.MkdirAll(filepath.Dir(path), 0775)

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(backupBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BackupStore{db: db}, nil
}

func (b *BackupStore) Close() error { return b.db.Close() }

// Save writes the world encoding and its snapshot sequence.
func (b *BackupStore) Save(encoded []byte, seq uint64) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(backupBucket)
		if err := bkt.Put(backupState, encoded); err != nil {
			return err
		}

		var w vcnet.Writer
		w.U64(seq)
		return bkt.Put(backupSeq, w.Bytes())
	})
}

// Load reads the last saved world encoding. A nil encoding with no
// error means no backup exists yet.
func (b *BackupStore) Load() (encoded []byte, seq uint64, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(backupBucket)

		if v := bkt.Get(backupState); v != nil {
			encoded = append([]byte(nil), v...)
		}
		if v := bkt.Get(backupSeq); v != nil {
			r := vcnet.NewReader(v)
			seq = r.U64()
		}

		return nil
	})

	return encoded, seq, err
}
