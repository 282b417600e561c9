package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dayplan/internal/schedule"
	"dayplan/internal/tasks"
	logx "dayplan/pkg/logx"
)

const compactEvery = 500

// fileStore keeps everything in plain files next to Path.
//
// Files:
//   - <prefix>.tasks.json                (whole task list, rewritten atomically)
//   - <prefix>.done.snapshot.json        (completion snapshot)
//   - <prefix>.done.journal.jsonl        (append-only completion journal)
//   - <prefix>.dedup.snapshot.json       (notifier dedup snapshot)
//   - <prefix>.dedup.journal.jsonl       (append-only dedup journal)
//
// Journals are compacted into their snapshots only by the process that wrote
// enough records, or by an explicit prune. Open and Close never rewrite them,
// since a daemon and the CLI may share the files.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	tasksPath string

	doneSnapshotPath string
	doneJournalPath  string
	doneJournal      *os.File
	done             map[tasks.Completion]struct{}
	doneWrites       int

	dedupSnapshotPath string
	dedupJournal      *os.File
	dedup             map[string]int64 // unix milli
	dedupWrites       int
}

type doneRecord struct {
	Op     string `json:"op"` // "put" | "del"
	TaskID string `json:"taskId"`
	Date   string `json:"date"`
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:               log,
		tasksPath:         prefix + ".tasks.json",
		doneSnapshotPath:  prefix + ".done.snapshot.json",
		doneJournalPath:   prefix + ".done.journal.jsonl",
		dedupSnapshotPath: prefix + ".dedup.snapshot.json",
		done:              map[tasks.Completion]struct{}{},
		dedup:             map[string]int64{},
	}

	if err := s.readDoneLocked(); err != nil {
		return nil, err
	}

	dedupJournalPath := prefix + ".dedup.journal.jsonl"
	_ = loadDedupSnapshot(s.dedupSnapshotPath, s.dedup)
	_ = replayDedupJournal(dedupJournalPath, s.dedup)
	pruneExpiredDedup(s.dedup, time.Now())

	var err error
	s.doneJournal, err = os.OpenFile(s.doneJournalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.dedupJournal, err = os.OpenFile(dedupJournalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = s.doneJournal.Close()
		return nil, err
	}
	for _, f := range []*os.File{s.doneJournal, s.dedupJournal} {
		if err := sealJournal(f); err != nil {
			_ = s.doneJournal.Close()
			_ = s.dedupJournal.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.doneJournal != nil {
		errs = append(errs, s.doneJournal.Close())
		s.doneJournal = nil
	}
	if s.dedupJournal != nil {
		errs = append(errs, s.dedupJournal.Close())
		s.dedupJournal = nil
	}
	return errors.Join(errs...)
}

// ---- tasks ----

func (s *fileStore) LoadTasks(ctx context.Context) ([]schedule.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.tasksPath)
	if errors.Is(err, os.ErrNotExist) {
		return []schedule.Task{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out []schedule.Task
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []schedule.Task{}
	}
	return out, nil
}

func (s *fileStore) SaveTasks(ctx context.Context, ts []schedule.Task) error {
	_ = ctx
	if ts == nil {
		ts = []schedule.Task{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.tasksPath, ts, true)
}

// WatchPaths are the files other processes write: the task list and the
// completion snapshot and journal.
func (s *fileStore) WatchPaths() []string {
	return []string{s.tasksPath, s.doneSnapshotPath, s.doneJournalPath}
}

// ---- completions ----

// LoadCompletions re-reads snapshot and journal, so marks written by another
// process (the CLI next to a running watch daemon) become visible.
func (s *fileStore) LoadCompletions(ctx context.Context) ([]tasks.Completion, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readDoneLocked(); err != nil {
		return nil, err
	}
	out := make([]tasks.Completion, 0, len(s.done))
	for c := range s.done {
		out = append(out, c)
	}
	return out, nil
}

func (s *fileStore) PutCompletion(ctx context.Context, c tasks.Completion) error {
	return s.appendDone(ctx, doneRecord{Op: "put", TaskID: c.TaskID, Date: c.Date})
}

func (s *fileStore) DeleteCompletion(ctx context.Context, c tasks.Completion) error {
	return s.appendDone(ctx, doneRecord{Op: "del", TaskID: c.TaskID, Date: c.Date})
}

func (s *fileStore) appendDone(ctx context.Context, r doneRecord) error {
	_ = ctx
	if r.TaskID == "" || r.Date == "" {
		return errors.New("completion needs task id and date")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doneJournal == nil {
		return errors.New("completion journal closed")
	}

	applyDone(s.done, r)
	if err := json.NewEncoder(s.doneJournal).Encode(r); err != nil {
		return err
	}
	s.doneWrites++
	if s.doneWrites%compactEvery == 0 {
		if err := s.refreshAndCompactDoneLocked(); err != nil {
			s.log.Debug("completion compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) PruneCompletions(ctx context.Context, before string) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readDoneLocked(); err != nil {
		return 0, err
	}

	n := 0
	for c := range s.done {
		if c.Date < before {
			delete(s.done, c)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.compactDoneLocked()
}

func (s *fileStore) readDoneLocked() error {
	fresh := map[tasks.Completion]struct{}{}
	if err := loadDoneSnapshot(s.doneSnapshotPath, fresh); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("completion snapshot unreadable; using journal only", logx.String("path", s.doneSnapshotPath), logx.Err(err))
	}
	if err := replayDoneJournal(s.doneJournalPath, fresh); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.done = fresh
	return nil
}

// refreshAndCompactDoneLocked folds in what other writers appended before
// rewriting the snapshot.
func (s *fileStore) refreshAndCompactDoneLocked() error {
	if err := s.readDoneLocked(); err != nil {
		return err
	}
	return s.compactDoneLocked()
}

func (s *fileStore) compactDoneLocked() error {
	list := make([]tasks.Completion, 0, len(s.done))
	for c := range s.done {
		list = append(list, c)
	}
	if err := writeJSONAtomic(s.doneSnapshotPath, list, false); err != nil {
		return err
	}
	return truncateJournal(s.doneJournal)
}

func applyDone(m map[tasks.Completion]struct{}, r doneRecord) {
	c := tasks.Completion{TaskID: r.TaskID, Date: r.Date}
	switch r.Op {
	case "put":
		m[c] = struct{}{}
	case "del":
		delete(m, c)
	}
}

func loadDoneSnapshot(path string, out map[tasks.Completion]struct{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var list []tasks.Completion
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	for _, c := range list {
		out[c] = struct{}{}
	}
	return nil
}

func replayDoneJournal(path string, out map[tasks.Completion]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r doneRecord
		// A torn last line from a crash is skipped.
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.TaskID == "" {
			continue
		}
		applyDone(out, r)
	}
	return sc.Err()
}

// ---- notifier dedup ----

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupJournal == nil {
		return errors.New("dedup journal closed")
	}
	s.dedup[key] = ms

	if err := json.NewEncoder(s.dedupJournal).Encode(dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.dedupWrites++
	if s.dedupWrites%compactEvery == 0 {
		if err := s.compactDedupLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) compactDedupLocked() error {
	pruneExpiredDedup(s.dedup, time.Now())
	if err := writeJSONAtomic(s.dedupSnapshotPath, s.dedup, false); err != nil {
		return err
	}
	return truncateJournal(s.dedupJournal)
}

func loadDedupSnapshot(path string, out map[string]int64) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m map[string]int64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayDedupJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r dedupRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}

func pruneExpiredDedup(m map[string]int64, now time.Time) {
	ms := now.UnixMilli()
	for k, v := range m {
		if v < ms {
			delete(m, k)
		}
	}
}

// ---- helpers ----

func writeJSONAtomic(path string, v any, indent bool) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// sealJournal terminates a torn last line so the next record starts on a line
// of its own. It only appends.
func sealJournal(f *os.File) error {
	st, err := f.Stat()
	if err != nil || st.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, st.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

func truncateJournal(f *os.File) error {
	if f == nil {
		return nil
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.Seek(0, io.SeekEnd)
	return err
}
