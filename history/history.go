package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrNotFound = errors.New("history: run not found")

	runsBucket = []byte("runs")
)

// Record is one completed benchmark run.
type Record struct {
	ID        uuid.UUID
	Kind      string
	Target    string
	Table     string
	StartedAt time.Time
	Params    map[string]interface{}
	Results   map[string]float64
}

type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("history: %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: %s: %w", path, err)
	}
	return &Store{
		db: db,
	}, nil
}

func (st *Store) Close() error {
	return st.db.Close()
}

// Put saves rec, assigning it a time ordered ID if it does not have one.
func (st *Store) Put(rec *Record) error {
	if rec.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		rec.ID = id
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	val, err := encode(rec)
	if err != nil {
		return err
	}
	return st.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(runsBucket).Put(rec.ID[:], val)
	})
}

func (st *Store) Get(id string) (*Record, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("history: %s: %w", id, err)
	}

	var rec *Record
	err = st.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(runsBucket).Get(uid[:])
		if val == nil {
			return ErrNotFound
		}
		var err error
		rec, err = decode(uid, val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns up to limit runs, newest first; a limit of zero or less
// returns every run.
func (st *Store) List(limit int) ([]*Record, error) {
	var recs []*Record
	err := st.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(runsBucket).Cursor()
		for key, val := cur.Last(); key != nil; key, val = cur.Prev() {
			if limit > 0 && len(recs) == limit {
				break
			}
			id, err := uuid.FromBytes(key)
			if err != nil {
				return fmt.Errorf("history: bad key %x: %w", key, err)
			}
			rec, err := decode(id, val)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (st *Store) Clear() error {
	return st.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(runsBucket)
		if err != nil {
			return err
		}
		_, err = tx.CreateBucket(runsBucket)
		return err
	})
}

func encode(rec *Record) ([]byte, error) {
	results := map[string]interface{}{}
	for nam, val := range rec.Results {
		results[nam] = val
	}
	params := rec.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	s, err := structpb.NewStruct(map[string]interface{}{
		"kind":    rec.Kind,
		"target":  rec.Target,
		"table":   rec.Table,
		"started": rec.StartedAt.UTC().Format(time.RFC3339Nano),
		"params":  params,
		"results": results,
	})
	if err != nil {
		return nil, fmt.Errorf("history: encode: %w", err)
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("history: encode: %w", err)
	}
	return b, nil
}

func decode(id uuid.UUID, val []byte) (*Record, error) {
	var s structpb.Struct
	err := proto.Unmarshal(val, &s)
	if err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", id, err)
	}

	fields := s.GetFields()
	rec := &Record{
		ID:      id,
		Kind:    fields["kind"].GetStringValue(),
		Target:  fields["target"].GetStringValue(),
		Table:   fields["table"].GetStringValue(),
		Params:  fields["params"].GetStructValue().AsMap(),
		Results: map[string]float64{},
	}
	rec.StartedAt, err = time.Parse(time.RFC3339Nano, fields["started"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", id, err)
	}
	for nam, v := range fields["results"].GetStructValue().GetFields() {
		rec.Results[nam] = v.GetNumberValue()
	}
	return rec, nil
}
