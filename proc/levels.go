package proc

import (
	"cmp"
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

const (
	MinXPGain        = 5
	MaxXPGain        = 15
	DefaultSaveDelay = 10 * time.Second
)

type LevelRecord struct {
	UserID snowflake.ID
	XP     int
	Level  int
}

// XPForNextLevel is the XP needed to leave the given level.
func XPForNextLevel(level int) int { return level * 100 }

type LevelStore interface {
	LoadLevels(ctx context.Context) ([]LevelRecord, error)
	SaveLevels(ctx context.Context, records []LevelRecord) error
}

type LevelsConfig struct {
	Store     LevelStore
	Clock     Clock
	SaveDelay time.Duration
	// Gain returns the XP for one message. Defaults to a uniform 5..15.
	Gain    func() int
	Metrics *Metrics
	OnError func(err error)
}

// Levels tracks chat XP in memory and persists it with a debounced save.
type Levels struct {
	cfg LevelsConfig

	mu        sync.Mutex
	records   map[snowflake.ID]LevelRecord
	dirty     map[snowflake.ID]struct{}
	saveTimer Timer
}

func NewLevels(cfg LevelsConfig) *Levels {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.SaveDelay <= 0 {
		cfg.SaveDelay = DefaultSaveDelay
	}
	if cfg.Gain == nil {
		cfg.Gain = func() int { return MinXPGain + rand.IntN(MaxXPGain-MinXPGain+1) }
	}
	return &Levels{
		cfg:     cfg,
		records: make(map[snowflake.ID]LevelRecord),
		dirty:   make(map[snowflake.ID]struct{}),
	}
}

func (l *Levels) Load(ctx context.Context) error {
	if l.cfg.Store == nil {
		return nil
	}
	recs, err := l.cfg.Store.LoadLevels(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range recs {
		if r.Level < 1 {
			r.Level = 1
		}
		l.records[r.UserID] = r
	}
	return nil
}

// Len is the number of users with a record.
func (l *Levels) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Award scores one message and reports whether the user levelled up.
func (l *Levels) Award(userID snowflake.ID) (LevelRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[userID]
	if !ok {
		rec = LevelRecord{UserID: userID, Level: 1}
	}

	rec.XP += l.cfg.Gain()
	levelUp := false
	if next := XPForNextLevel(rec.Level); rec.XP >= next {
		rec.Level++
		rec.XP -= next
		levelUp = true
	}

	l.records[userID] = rec
	l.dirty[userID] = struct{}{}
	l.cfg.Metrics.scored(levelUp)

	l.armSaveLocked()
	return rec, levelUp
}

func (l *Levels) armSaveLocked() {
	if l.saveTimer != nil {
		return
	}
	l.saveTimer = l.cfg.Clock.AfterFunc(l.cfg.SaveDelay, func() {
		if err := l.Flush(context.Background()); err != nil && l.cfg.OnError != nil {
			l.cfg.OnError(err)
		}
	})
}

// Get returns the record for a user, or a fresh level 1 record.
func (l *Levels) Get(userID snowflake.ID) LevelRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[userID]; ok {
		return rec
	}
	return LevelRecord{UserID: userID, Level: 1}
}

// Top returns up to n records ordered by level, then XP.
func (l *Levels) Top(n int) []LevelRecord {
	if n <= 0 {
		return nil
	}
	l.mu.Lock()
	all := make([]LevelRecord, 0, len(l.records))
	for _, r := range l.records {
		all = append(all, r)
	}
	l.mu.Unlock()

	slices.SortFunc(all, func(a, b LevelRecord) int {
		if c := cmp.Compare(b.Level, a.Level); c != 0 {
			return c
		}
		if c := cmp.Compare(b.XP, a.XP); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Flush writes every changed record.
func (l *Levels) Flush(ctx context.Context) error {
	l.mu.Lock()
	if l.saveTimer != nil {
		l.saveTimer.Stop()
		l.saveTimer = nil
	}
	batch := make([]LevelRecord, 0, len(l.dirty))
	for id := range l.dirty {
		batch = append(batch, l.records[id])
	}
	l.dirty = make(map[snowflake.ID]struct{})
	l.mu.Unlock()

	if len(batch) == 0 || l.cfg.Store == nil {
		return nil
	}
	if err := l.cfg.Store.SaveLevels(ctx, batch); err != nil {
		l.mu.Lock()
		for _, r := range batch {
			l.dirty[r.UserID] = struct{}{}
		}
		// Retry on the next tick even if nobody scores again.
		l.armSaveLocked()
		l.mu.Unlock()
		return err
	}
	return nil
}
