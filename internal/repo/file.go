package repo

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"regdesk/internal/model"
)

// MirrorFunc receives the full record set after every successful mutation.
type MirrorFunc func(regs []model.Registration) error

// FileRepository keeps registrations as a JSON array on disk. Every operation
// holds mu across its whole read-modify-write cycle.
type FileRepository struct {
	mu        sync.Mutex
	path      string
	auditPath string
	// seqPath holds the highest id ever issued; deletes never lower it.
	seqPath string
	mirror  MirrorFunc
	log     *zerolog.Logger
}

func NewFileRepository(dir string, log *zerolog.Logger, mirror MirrorFunc) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileRepository{
		path:      filepath.Join(dir, "registrations.json"),
		auditPath: filepath.Join(dir, "audit_registrations.jsonl"),
		seqPath:   filepath.Join(dir, "registrations.seq"),
		mirror:    mirror,
		log:       log,
	}, nil
}

func (r *FileRepository) load() ([]model.Registration, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Registration{}, nil
	}
	if err != nil {
		return nil, err
	}
	regs := []model.Registration{}
	if len(data) == 0 {
		return regs, nil
	}
	if err := json.Unmarshal(data, &regs); err != nil {
		return nil, err
	}
	for i := range regs {
		regs[i].Events = model.NormalizeEvents(regs[i].Events)
	}
	return regs, nil
}

func (r *FileRepository) save(regs []model.Registration) error {
	data, err := json.MarshalIndent(regs, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(r.path, data); err != nil {
		return err
	}

	if r.mirror != nil {
		if err := r.mirror(sortedByTimestamp(regs)); err != nil {
			r.log.Warn().Err(err).Msg("failed to re-sync registration mirror")
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// nextID returns one past the highest id ever issued, counting deleted records.
func (r *FileRepository) nextID(regs []model.Registration) (int64, error) {
	high, err := r.highWater()
	if err != nil {
		return 0, err
	}
	for _, reg := range regs {
		if reg.ID > high {
			high = reg.ID
		}
	}
	return high + 1, nil
}

func (r *FileRepository) highWater() (int64, error) {
	data, err := os.ReadFile(r.seqPath)
	if errors.Is(err, fs.ErrNotExist) {
		return r.auditHighWater(), nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt id counter %s: %w", r.seqPath, err)
	}
	return n, nil
}

// auditHighWater recovers the counter from the audit log of a store written
// before the counter file existed. Unreadable lines are skipped.
func (r *FileRepository) auditHighWater() int64 {
	f, err := os.Open(r.auditPath)
	if err != nil {
		return 0
	}
	defer f.Close()

	var high int64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var entry model.AuditCopy
		if json.Unmarshal(sc.Bytes(), &entry) == nil && entry.RegistrationID > high {
			high = entry.RegistrationID
		}
	}
	return high
}

func (r *FileRepository) CountByReference(ctx context.Context, ref string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("count registrations", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, err := r.load()
	if err != nil {
		return 0, unavailable("count registrations", err)
	}
	count := 0
	for _, reg := range regs {
		if reg.PaymentReference == ref {
			count++
		}
	}
	return count, nil
}

func (r *FileRepository) Insert(ctx context.Context, reg *model.Registration) (*model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("insert registration", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, err := r.load()
	if err != nil {
		return nil, unavailable("insert registration", err)
	}

	for _, existing := range regs {
		if existing.PaymentReference == reg.PaymentReference {
			return nil, ErrDuplicateReference
		}
	}

	id, err := r.nextID(regs)
	if err != nil {
		return nil, unavailable("insert registration", err)
	}
	if err := writeFileAtomic(r.seqPath, []byte(strconv.FormatInt(id, 10))); err != nil {
		return nil, unavailable("insert registration", err)
	}

	stored := *reg
	stored.ID = id
	stored.Events = append([]string{}, model.NormalizeEvents(reg.Events)...)
	if stored.SubmittedAt.IsZero() {
		stored.SubmittedAt = time.Now().UTC()
	}

	if err := r.save(append(regs, stored)); err != nil {
		return nil, unavailable("insert registration", err)
	}
	r.appendAuditCopy(&stored)
	return &stored, nil
}

func (r *FileRepository) appendAuditCopy(reg *model.Registration) {
	payload, err := json.Marshal(reg)
	if err != nil {
		r.log.Warn().Err(err).Str("utr", reg.PaymentReference).Msg("failed to encode audit copy")
		return
	}
	line, err := json.Marshal(model.AuditCopy{RegistrationID: reg.ID, Payload: payload, CreatedAt: time.Now().UTC()})
	if err != nil {
		r.log.Warn().Err(err).Str("utr", reg.PaymentReference).Msg("failed to encode audit copy")
		return
	}

	f, err := os.OpenFile(r.auditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.log.Warn().Err(err).Int64("registration_id", reg.ID).Msg("failed to write audit copy")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		r.log.Warn().Err(err).Int64("registration_id", reg.ID).Msg("failed to write audit copy")
	}
}

func (r *FileRepository) GetByReference(ctx context.Context, ref string) (*model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get registration", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, err := r.load()
	if err != nil {
		return nil, unavailable("get registration", err)
	}
	for i := range regs {
		if regs[i].PaymentReference == ref {
			reg := regs[i]
			return &reg, nil
		}
	}
	return nil, ErrNotFound
}

func (r *FileRepository) GetAll(ctx context.Context) ([]model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list registrations", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, err := r.load()
	if err != nil {
		return nil, unavailable("list registrations", err)
	}
	return sortedByTimestamp(regs), nil
}

func (r *FileRepository) UpdateFields(ctx context.Context, ref string, patch model.RegistrationPatch) error {
	if err := ctx.Err(); err != nil {
		return unavailable("update registration", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, err := r.load()
	if err != nil {
		return unavailable("update registration", err)
	}
	for i := range regs {
		if regs[i].PaymentReference == ref {
			patch.Apply(&regs[i])
			if err := r.save(regs); err != nil {
				return unavailable("update registration", err)
			}
			return nil
		}
	}
	return ErrNotFound
}

func (r *FileRepository) DeleteByReference(ctx context.Context, ref string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("delete registration", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, err := r.load()
	if err != nil {
		return 0, unavailable("delete registration", err)
	}
	kept := regs[:0]
	var removed int64
	for _, reg := range regs {
		if reg.PaymentReference == ref {
			removed++
			continue
		}
		kept = append(kept, reg)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := r.save(kept); err != nil {
		return 0, unavailable("delete registration", err)
	}
	return removed, nil
}

func sortedByTimestamp(regs []model.Registration) []model.Registration {
	out := append([]model.Registration(nil), regs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if out == nil {
		out = []model.Registration{}
	}
	return out
}
