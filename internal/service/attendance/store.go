package attendance

import (
	"sort"
	"sync"

	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/service/timewindow"
)

// DefaultMaxSubjects bounds how many (activity, user) pairs the store keeps.
const DefaultMaxSubjects = 10000

type subject struct {
	activityID string
	userID     string
}

type subjectRecords struct {
	records map[attendance.RecordKey]attendance.AttendanceRecord
	seq     uint64
}

// RecordStore caches the backend's records per (activity, user). It only changes through Replace,
// with a full answer from the backend. Past maxSubjects the least recently replaced subject is dropped.
type RecordStore struct {
	mu          sync.RWMutex
	subjects    map[subject]*subjectRecords
	seq         uint64
	maxSubjects int
}

func NewRecordStore() *RecordStore {
	return NewRecordStoreWithLimit(DefaultMaxSubjects)
}

func NewRecordStoreWithLimit(maxSubjects int) *RecordStore {
	if maxSubjects <= 0 {
		maxSubjects = DefaultMaxSubjects
	}
	return &RecordStore{
		subjects:    make(map[subject]*subjectRecords),
		maxSubjects: maxSubjects,
	}
}

// Replace swaps every record of (activityID, userID) for records. Records of other subjects are
// ignored and duplicates per key collapse to the most recently updated one.
func (s *RecordStore) Replace(activityID, userID string, records []attendance.AttendanceRecord) {
	mine := make([]attendance.AttendanceRecord, 0, len(records))
	for _, r := range records {
		if r.ActivityID == activityID && r.UserID == userID {
			mine = append(mine, r)
		}
	}
	index := timewindow.IndexRecords(mine)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	key := subject{activityID, userID}
	if _, ok := s.subjects[key]; !ok && len(s.subjects) >= s.maxSubjects {
		s.evictOldest()
	}
	s.subjects[key] = &subjectRecords{records: index, seq: s.seq}
}

// evictOldest drops the least recently replaced subject. Callers hold mu.
func (s *RecordStore) evictOldest() {
	var (
		oldest    subject
		oldestSeq uint64
		found     bool
	)
	for key, entry := range s.subjects {
		if !found || entry.seq < oldestSeq {
			oldest, oldestSeq, found = key, entry.seq, true
		}
	}
	if found {
		delete(s.subjects, oldest)
	}
}

func (s *RecordStore) Get(key attendance.RecordKey) (attendance.AttendanceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.subjects[subject{key.ActivityID, key.UserID}]
	if !ok {
		return attendance.AttendanceRecord{}, false
	}
	r, ok := entry.records[key]
	return r, ok
}

// Loaded reports whether Replace has run for (activityID, userID) and the subject is still cached.
func (s *RecordStore) Loaded(activityID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subjects[subject{activityID, userID}]
	return ok
}

// Records returns the records of (activityID, userID) ordered by day, slot and direction.
func (s *RecordStore) Records(activityID, userID string) []attendance.AttendanceRecord {
	s.mu.RLock()
	out := make([]attendance.AttendanceRecord, 0)
	if entry, ok := s.subjects[subject{activityID, userID}]; ok {
		for _, r := range entry.records {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.DayNumber != b.DayNumber {
			return a.DayNumber < b.DayNumber
		}
		if a.SlotKey.Order() != b.SlotKey.Order() {
			return a.SlotKey.Order() < b.SlotKey.Order()
		}
		if a.SlotKey != b.SlotKey {
			return a.SlotKey < b.SlotKey
		}
		return a.Direction == attendance.DirectionStart && b.Direction != attendance.DirectionStart
	})
	return out
}

// Index returns a copy of the records of (activityID, userID) keyed by tuple.
func (s *RecordStore) Index(activityID, userID string) map[attendance.RecordKey]attendance.AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.subjects[subject{activityID, userID}]
	if !ok {
		return make(map[attendance.RecordKey]attendance.AttendanceRecord)
	}
	index := make(map[attendance.RecordKey]attendance.AttendanceRecord, len(entry.records))
	for key, r := range entry.records {
		index[key] = r
	}
	return index
}
