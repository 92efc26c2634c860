package filecache

import (
	"encoding/json"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sheafkit/sheaf/store"
)

// A TimeBased cache keeps entries for a fixed time after their last
// access, resetting the clock on every use. Entries whose clock runs out
// are removed by a background goroutine. Storage use varies over time
// and has no upper bound.
type TimeBased struct {
	s store.Store // where cached content lives

	ttl time.Duration // how long unused entries last

	done chan struct{} // closed to stop the background goroutine

	m sync.RWMutex // protects everything to the --- below

	// bytes used by the cache
	size int64

	// entries hashed by key
	items map[string]timeEntry

	// keys with an open Put that has not closed yet
	pending map[string]struct{}

	// --- end section protected by m
	// acquire order: expireM and then m
	expireM sync.Mutex

	// schedule of when to recheck entries for expiration
	expireList []timeEntry
}

// indexKey is where the expiration schedule is persisted between runs.
// It is a hint only; the cache works without it. Cache keys are checksum
// digests, so none can collide with this name.
const indexKey = "INDEX-LIST"

type timeEntry struct {
	Key     string
	Size    int64
	Expires time.Time
}

// NewTime returns a time-based cache backed by s whose entries live for
// d past their last access. It starts a background goroutine; release it
// with Stop.
func NewTime(s store.Store, d time.Duration) *TimeBased {
	tc := &TimeBased{
		s:       s,
		ttl:     d,
		items:   make(map[string]timeEntry),
		pending: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	go tc.background()
	return tc
}

// Stop ends the background goroutine started by NewTime.
func (tc *TimeBased) Stop() {
	close(tc.done)
}

// Contains reports whether the key is cached right now. It may be
// removed between a Contains and a Get.
func (tc *TimeBased) Contains(key string) bool {
	tc.m.RLock()
	_, ok := tc.items[key]
	tc.m.RUnlock()
	return ok
}

// Get returns a reader for the cached content and resets the entry's
// expiration clock. A nil reader means a miss.
func (tc *TimeBased) Get(key string) (store.ReadAtCloser, int64, error) {
	tc.m.Lock()
	defer tc.m.Unlock()
	item, ok := tc.items[key]
	if !ok {
		return nil, 0, nil
	}
	item.Expires = time.Now().Add(tc.ttl)
	tc.items[key] = item
	rac, size, err := tc.s.Open(key)
	if err != nil {
		// could not read it back, assume the content is bad
		tc.delete(key)
	}
	return rac, size, err
}

// Put returns a writer saving content under the key. The entry joins the
// cache when the writer closes. ErrPutPending is returned while another
// Put on the key is open. An entry already cached is replaced.
func (tc *TimeBased) Put(key string) (io.WriteCloser, error) {
	tc.m.Lock()
	_, exists := tc.pending[key]
	tc.pending[key] = struct{}{}
	tc.m.Unlock()
	if exists {
		return nil, ErrPutPending
	}
	w, err := tc.s.Create(key)
	if err == store.ErrKeyExists {
		// no open Puts on the key, so replace the stored content and
		// drop the stale entry with its size
		tc.m.Lock()
		tc.delete(key)
		tc.m.Unlock()
		w, err = tc.s.Create(key)
	}
	if err != nil {
		tc.unpending(key)
		return nil, err
	}
	return &writer{parent: tc, key: key, w: w}, nil
}

// Delete removes the key from the cache.
func (tc *TimeBased) Delete(key string) error {
	tc.m.Lock()
	err := tc.delete(key)
	tc.m.Unlock()
	tc.writeIndex()
	return err
}

// delete removes an entry. Call with m held.
func (tc *TimeBased) delete(key string) error {
	item, ok := tc.items[key]
	if !ok {
		return nil
	}
	tc.size -= item.Size
	delete(tc.items, key)
	return tc.s.Delete(key)
}

// Size returns the bytes currently used by the cache.
func (tc *TimeBased) Size() int64 {
	tc.m.RLock()
	defer tc.m.RUnlock()
	return tc.size
}

// MaxSize returns 0: a time-based cache has no size limit.
func (tc *TimeBased) MaxSize() int64 {
	return 0
}

func (tc *TimeBased) addEntry(entry timeEntry) {
	tc.expireM.Lock()
	defer tc.expireM.Unlock()
	tc.m.Lock()
	defer tc.m.Unlock()

	entry.Expires = time.Now().Add(tc.ttl)
	tc.items[entry.Key] = entry
	tc.expireList = append(tc.expireList, entry)
	tc.size += entry.Size
}

// save, reserve, and discard make TimeBased a saver for writer.

func (tc *TimeBased) save(w *writer) {
	tc.addEntry(timeEntry{Key: w.key, Size: w.size})
	tc.unpending(w.key)
}

// reserve always succeeds; the size is counted once in save.
func (tc *TimeBased) reserve(int64) error { return nil }

func (tc *TimeBased) discard(w *writer) {
	tc.unpending(w.key)
}

func (tc *TimeBased) unpending(key string) {
	tc.m.Lock()
	delete(tc.pending, key)
	tc.m.Unlock()
}

// background owns the expiration sweep and the periodic index save.
func (tc *TimeBased) background() {
	tc.readIndex()
	tc.scanstore()

	// sweep at a quarter of the ttl, at most once a day
	d := tc.ttl / 4
	if d > 24*time.Hour {
		d = 24 * time.Hour
	}
	for {
		select {
		case <-tc.done:
			return
		case <-time.After(d):
		}
		tc.expireKeys()
		tc.writeIndex()
	}
}

// expireKeys removes entries whose clock has run out. Some expired
// entries may be missed until the next sweep. Only one sweep runs at a
// time.
func (tc *TimeBased) expireKeys() {
	// Entries in expireList are not updated after being added, so an
	// entry's real expire time may be later than the list believes.
	// Expire times only move forward, so only entries the list thinks
	// are expired need rechecking against the live table.
	tc.expireM.Lock()
	defer tc.expireM.Unlock()

	now := time.Now()
	sort.Sort(byExpires(tc.expireList))
	cut := len(tc.expireList)
	for i, scheduled := range tc.expireList {
		if scheduled.Expires.After(now) {
			cut = i
			break
		}
		tc.m.Lock()
		item, ok := tc.items[scheduled.Key]
		if ok {
			if item.Expires.After(now) {
				// the clock was reset; reschedule for its new time
				tc.expireList = append(tc.expireList, item)
			} else {
				tc.delete(item.Key)
			}
		}
		tc.m.Unlock()
	}
	tc.expireList = tc.expireList[cut:]
}

type byExpires []timeEntry

func (e byExpires) Len() int           { return len(e) }
func (e byExpires) Less(i, j int) bool { return e[i].Expires.Before(e[j].Expires) }
func (e byExpires) Swap(i, j int)      { e[i], e[j] = e[j], e[i] }

func (tc *TimeBased) writeIndex() {
	tc.s.Delete(indexKey)
	w, err := tc.s.Create(indexKey)
	if err != nil {
		log.Println("filecache: creating", indexKey, ":", err)
		return
	}
	enc := json.NewEncoder(w)
	tc.m.RLock()
	err = enc.Encode(tc.items)
	tc.m.RUnlock()
	if err != nil {
		log.Println("filecache: writing", indexKey, ":", err)
	}
	w.Close()
}

func (tc *TimeBased) readIndex() {
	rac, _, err := tc.s.Open(indexKey)
	if err != nil {
		return // no index is fine, scanstore covers it
	}
	var items map[string]timeEntry
	err = json.NewDecoder(store.NewReader(rac)).Decode(&items)
	rac.Close()
	if err != nil {
		log.Println("filecache: reading", indexKey, ":", err)
		return
	}

	tc.expireM.Lock()
	defer tc.expireM.Unlock()
	tc.m.Lock()
	defer tc.m.Unlock()
	for _, v := range items {
		// addEntry would reset the saved timestamps, so insert directly
		if _, exists := tc.items[v.Key]; !exists {
			tc.items[v.Key] = v
			tc.expireList = append(tc.expireList, v)
			tc.size += v.Size
		}
	}
}

// scanstore indexes content already in the backing store. New entries
// get the default expiration.
func (tc *TimeBased) scanstore() {
	for key := range tc.s.List() {
		if key == indexKey || tc.Contains(key) {
			continue
		}
		rac, size, err := tc.s.Open(key)
		if err != nil {
			continue
		}
		rac.Close()
		tc.addEntry(timeEntry{Key: key, Size: size})
	}
}

// Scan loads the saved expiration schedule, indexes whatever else is in
// the backing store, and saves a fresh index.
func (tc *TimeBased) Scan() {
	tc.readIndex()
	tc.scanstore()
	tc.writeIndex()
}
