package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/exp/slices"
)

const (
	BucketBackups = "backups"
)

var ErrBackupNotFound = errors.New("backup not found")

// Open the db with the given options. If the database does not exist it
// will be created and the buckets will be initialized.
func open(path string, options *bolt.Options) (*bolt.DB, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, options)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists([]byte(BucketBackups))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

type Database struct {
	bdb *bolt.DB
}

func Open(path string) (*Database, error) {
	db, err := open(path, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	return &Database{bdb: db}, nil
}

func (d *Database) Close() error {
	return d.bdb.Close()
}

// Backup is a full card image taken before the card was written to.
type Backup struct {
	Id   uuid.UUID `json:"id"`
	UID  string    `json:"uid"`
	Time time.Time `json:"time"`
	Note string    `json:"note"`
	Data []byte    `json:"data"`
}

// NewBackup snapshots a card.
func NewBackup(card *mifare.Card, note string) Backup {
	return Backup{
		Id:   uuid.New(),
		UID:  card.UID().String(),
		Time: time.Now(),
		Note: note,
		Data: card.Raw(),
	}
}

// Card rebuilds the card image stored in the backup.
func (b Backup) Card() (*mifare.Card, error) {
	return mifare.FromDump(b.Data)
}

func backupKey(id uuid.UUID) []byte {
	return []byte(id.String())
}

func (d *Database) AddBackup(b Backup) error {
	if b.Id == uuid.Nil {
		return errors.New("backup id is missing")
	} else if len(b.Data) != mifare.CardSize {
		return fmt.Errorf("%w: got %d", mifare.ErrDumpSize, len(b.Data))
	}

	return d.bdb.Update(func(txn *bolt.Tx) error {
		bk := txn.Bucket([]byte(BucketBackups))

		data, err := json.Marshal(b)
		if err != nil {
			return err
		}

		return bk.Put(backupKey(b.Id), data)
	})
}

func (d *Database) GetBackup(id uuid.UUID) (Backup, error) {
	var b Backup

	err := d.bdb.View(func(txn *bolt.Tx) error {
		bk := txn.Bucket([]byte(BucketBackups))

		v := bk.Get(backupKey(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
		}

		return json.Unmarshal(v, &b)
	})

	return b, err
}

func (d *Database) RemoveBackup(id uuid.UUID) error {
	return d.bdb.Update(func(txn *bolt.Tx) error {
		bk := txn.Bucket([]byte(BucketBackups))
		return bk.Delete(backupKey(id))
	})
}

// filterBackups returns every backup accepted by keep, newest first.
func (d *Database) filterBackups(keep func(Backup) bool) ([]Backup, error) {
	var backups []Backup

	err := d.bdb.View(func(txn *bolt.Tx) error {
		bk := txn.Bucket([]byte(BucketBackups))
		return bk.ForEach(func(_, v []byte) error {
			var b Backup
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			if keep(b) {
				backups = append(backups, b)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// uuid keys are random, order by time instead
	slices.SortFunc(backups, func(a, b Backup) int {
		return b.Time.Compare(a.Time)
	})

	return backups, nil
}

// ListBackups returns the backups of a card, newest first. An empty uid
// lists every backup.
func (d *Database) ListBackups(uid string) ([]Backup, error) {
	return d.filterBackups(func(b Backup) bool {
		return uid == "" || b.UID == uid
	})
}

// LatestBackup returns the most recent backup of a card.
func (d *Database) LatestBackup(uid string) (Backup, error) {
	backups, err := d.ListBackups(uid)
	if err != nil {
		return Backup{}, err
	} else if len(backups) == 0 {
		return Backup{}, fmt.Errorf("%w: %s", ErrBackupNotFound, uid)
	}
	return backups[0], nil
}

// FindBackups matches backup notes against a glob pattern such as
// "before*".
func (d *Database) FindBackups(pattern string) ([]Backup, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}

	return d.filterBackups(func(b Backup) bool {
		return g.Match(b.Note)
	})
}
