/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package boltrec is a bbolt-backed sample recorder.  One bucket per
// (topic,instance); keys are big-endian generations, so a cursor
// walks samples in publish order.
package boltrec

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Comcast/orb/storage"
)

// Recorder is a storage.Recorder on one bbolt file.
type Recorder struct {
	Debug    bool
	filename string
	db       *bolt.DB
}

// NewRecorder remembers the filename; call Open before use.
func NewRecorder(filename string) (*Recorder, error) {
	return &Recorder{
		filename: filename,
	}, nil
}

// Open opens (or creates) the database file.
func (r *Recorder) Open() error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(r.filename, 0644, opts)
	if err != nil {
		return err
	}
	r.db = db
	return nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

func (r *Recorder) logf(format string, args ...interface{}) {
	if r.Debug {
		log.Printf("boltrec.Recorder."+format, args...)
	}
}

func bucketName(topic string, instance int) []byte {
	return []byte(fmt.Sprintf("%s/%d", topic, instance))
}

func genKey(g uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, g)
	return key
}

// Record stores one sample.
func (r *Recorder) Record(ctx context.Context, s *storage.Sample) error {
	r.logf("Record %s/%d gen %d", s.Topic, s.Instance, s.Generation)

	js, err := json.Marshal(s)
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(s.Topic, s.Instance))
		if err != nil {
			return err
		}
		return b.Put(genKey(s.Generation), js)
	})
}

// Replay visits every sample of a (topic,instance) in generation
// order.
func (r *Recorder) Replay(ctx context.Context, topic string, instance int, fn func(*storage.Sample) error) error {
	r.logf("Replay %s/%d", topic, instance)

	return r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(topic, instance))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var s storage.Sample
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			if err := fn(&s); err != nil {
				return err
			}
		}
		return nil
	})
}

// Topics lists the recorded (topic,instance) bucket names.
func (r *Recorder) Topics() ([]string, error) {
	var names []string
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}
