package proc

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/disgoorg/snowflake/v2"
	cmap "github.com/orcaman/concurrent-map/v2"
)

const (
	DefaultAnnounceColor       = "#00E5E5"
	DefaultAnnounceTitle       = "Announcement"
	DefaultAnnounceDescription = "No description provided."
	DefaultAnnounceTTL         = 10 * time.Minute
	defaultTombstoneTTL        = time.Hour

	MaxTitleLen       = 256
	MaxDescriptionLen = 4000
	MaxColorLen       = 7
	MaxImageURLLen    = 1000
)

type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldColor       Field = "color"
	FieldImage       Field = "image"
)

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeClosed  Outcome = "closed"
	OutcomeExpired Outcome = "expired"
	OutcomeFailed  Outcome = "failed"
)

// PanelRef identifies the rendered panel message. Sessions are keyed by its
// message ID.
type PanelRef struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
}

type Draft struct {
	Title       string
	Description string
	Color       string
	ImageURL    string
	ImageSetAt  time.Time
	ChannelID   snowflake.ID
}

// PanelView is a snapshot of one session, handed to the renderer.
type PanelView struct {
	Ref       PanelRef
	Owner     snowflake.ID
	GuildID   snowflake.ID
	Draft     Draft
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Announcement is the final message composed from a draft.
type Announcement struct {
	GuildID     snowflake.ID
	ChannelID   snowflake.ID
	Author      snowflake.ID
	Title       string
	Description string
	Color       int
	ImageURL    string
}

type PanelRenderer interface {
	RenderPanel(view PanelView) error
	FinishPanel(ref PanelRef, outcome Outcome) error
}

type Broadcaster interface {
	Reachable(guildID, channelID snowflake.ID) bool
	Deliver(ctx context.Context, a Announcement) error
}

// PublishFunc renders the first panel view and reports where it landed.
type PublishFunc func(view PanelView) (PanelRef, error)

type AnnounceConfig struct {
	Renderer    PanelRenderer
	Broadcaster Broadcaster
	IsAdmin     func(id snowflake.ID) bool
	Clock       Clock
	TTL         time.Duration
	Metrics     *Metrics
	OnError     func(err error)
}

type session struct {
	mu        sync.Mutex
	ref       PanelRef
	owner     snowflake.ID
	guildID   snowflake.ID
	draft     Draft
	createdAt time.Time
	expiresAt time.Time
	timer     Timer
	done      bool
}

type tombstone struct {
	owner   snowflake.ID
	outcome Outcome
	at      time.Time
}

// AnnounceManager owns every open announcement panel.
type AnnounceManager struct {
	cfg      AnnounceConfig
	sessions cmap.ConcurrentMap[string, *session]
	ended    cmap.ConcurrentMap[string, tombstone]
}

func NewAnnounceManager(cfg AnnounceConfig) *AnnounceManager {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultAnnounceTTL
	}
	if cfg.IsAdmin == nil {
		cfg.IsAdmin = func(snowflake.ID) bool { return false }
	}
	return &AnnounceManager{
		cfg:      cfg,
		sessions: cmap.New[*session](),
		ended:    cmap.New[tombstone](),
	}
}

func (m *AnnounceManager) TTL() time.Duration { return m.cfg.TTL }

// Active reports the number of open sessions.
func (m *AnnounceManager) Active() int { return m.sessions.Count() }

// Open creates a session with default fields and publishes its panel.
func (m *AnnounceManager) Open(actor, guildID snowflake.ID, publish PublishFunc) (PanelView, error) {
	if !m.cfg.IsAdmin(actor) {
		return PanelView{}, ErrUnauthorized
	}

	now := m.cfg.Clock.Now()
	s := &session{
		owner:     actor,
		guildID:   guildID,
		draft:     Draft{Color: DefaultAnnounceColor},
		createdAt: now,
		expiresAt: now.Add(m.cfg.TTL),
	}

	ref, err := publish(s.view())
	if err != nil {
		return PanelView{}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref = ref
	key := ref.MessageID.String()
	m.sessions.Set(key, s)
	s.timer = m.cfg.Clock.AfterFunc(m.cfg.TTL, func() { m.expire(key) })
	m.cfg.Metrics.announcement("opened")
	return s.view(), nil
}

// View returns the current state of a live panel.
func (m *AnnounceManager) View(ref PanelRef) (PanelView, bool) {
	s, ok := m.sessions.Get(ref.MessageID.String())
	if !ok {
		return PanelView{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return PanelView{}, false
	}
	return s.view(), true
}

// Owner reports who opened a panel, including recently ended ones.
func (m *AnnounceManager) Owner(ref PanelRef) (snowflake.ID, bool) {
	key := ref.MessageID.String()
	if s, ok := m.sessions.Get(key); ok {
		return s.owner, true
	}
	if t, ok := m.ended.Get(key); ok {
		return t.owner, true
	}
	return 0, false
}

// Edit sets one draft field. Blank input clears it.
func (m *AnnounceManager) Edit(ref PanelRef, actor snowflake.ID, field Field, value string) (PanelView, error) {
	s, err := m.acquire(ref, actor)
	if err != nil {
		return PanelView{}, err
	}
	defer s.mu.Unlock()

	value = strings.TrimSpace(value)
	switch field {
	case FieldTitle:
		if utf8.RuneCountInString(value) > MaxTitleLen {
			return PanelView{}, validationErrorf("title longer than %d characters", MaxTitleLen)
		}
		s.draft.Title = value
	case FieldDescription:
		if utf8.RuneCountInString(value) > MaxDescriptionLen {
			return PanelView{}, validationErrorf("description longer than %d characters", MaxDescriptionLen)
		}
		s.draft.Description = value
	case FieldColor:
		if value == "" {
			s.draft.Color = DefaultAnnounceColor
			break
		}
		hex, err := NormalizeColor(value)
		if err != nil {
			return PanelView{}, err
		}
		s.draft.Color = hex
	case FieldImage:
		if value == "" {
			s.draft.ImageURL = ""
			s.draft.ImageSetAt = time.Time{}
			break
		}
		if err := validateImageURL(value); err != nil {
			return PanelView{}, err
		}
		s.draft.ImageURL = value
		s.draft.ImageSetAt = m.cfg.Clock.Now()
	default:
		return PanelView{}, validationErrorf("unknown field %q", field)
	}

	view := s.view()
	m.render(view)
	return view, nil
}

// PickChannel sets the destination channel.
func (m *AnnounceManager) PickChannel(ref PanelRef, actor, channelID snowflake.ID) (PanelView, error) {
	s, err := m.acquire(ref, actor)
	if err != nil {
		return PanelView{}, err
	}
	defer s.mu.Unlock()

	s.draft.ChannelID = channelID
	view := s.view()
	m.render(view)
	return view, nil
}

// Send delivers the announcement once. Failed checks leave the session open.
func (m *AnnounceManager) Send(ctx context.Context, ref PanelRef, actor snowflake.ID) error {
	s, err := m.acquire(ref, actor)
	if err != nil {
		return err
	}

	d := s.draft
	if d.ChannelID == 0 {
		s.mu.Unlock()
		return ErrNoChannelSelected
	}
	if d.ImageURL != "" && m.cfg.Clock.Now().Sub(d.ImageSetAt) > m.cfg.TTL {
		s.mu.Unlock()
		return ErrStaleImage
	}
	if m.cfg.Broadcaster == nil || !m.cfg.Broadcaster.Reachable(s.guildID, d.ChannelID) {
		s.mu.Unlock()
		return ErrChannelUnavailable
	}

	ann := Compose(s.owner, s.guildID, d)
	full := s.ref
	m.endLocked(s, OutcomeSent)
	s.mu.Unlock()

	if err := m.cfg.Broadcaster.Deliver(ctx, ann); err != nil {
		m.cfg.Metrics.announcement(string(OutcomeFailed))
		m.finish(full, OutcomeFailed)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	m.cfg.Metrics.announcement(string(OutcomeSent))
	m.finish(full, OutcomeSent)
	return nil
}

// Close discards the session.
func (m *AnnounceManager) Close(ref PanelRef, actor snowflake.ID) error {
	s, err := m.acquire(ref, actor)
	if err != nil {
		return err
	}
	full := s.ref
	m.endLocked(s, OutcomeClosed)
	s.mu.Unlock()

	m.cfg.Metrics.announcement(string(OutcomeClosed))
	m.finish(full, OutcomeClosed)
	return nil
}

// Compose builds the final announcement, substituting defaults for missing fields.
func Compose(author, guildID snowflake.ID, d Draft) Announcement {
	a := Announcement{
		GuildID:     guildID,
		ChannelID:   d.ChannelID,
		Author:      author,
		Title:       d.Title,
		Description: d.Description,
		ImageURL:    d.ImageURL,
	}
	if a.Title == "" {
		a.Title = DefaultAnnounceTitle
	}
	if a.Description == "" {
		a.Description = DefaultAnnounceDescription
	}
	color := d.Color
	if color == "" {
		color = DefaultAnnounceColor
	}
	a.Color, _ = ParseColor(color)
	return a
}

var colorPattern = regexp.MustCompile(`^#?[0-9A-Fa-f]{6}$`)

// NormalizeColor accepts RRGGBB with or without a leading # and returns #RRGGBB.
func NormalizeColor(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !colorPattern.MatchString(value) {
		return "", validationErrorf("color %q is not a hex value like #00E5E5", value)
	}
	return "#" + strings.ToUpper(strings.TrimPrefix(value, "#")), nil
}

func ParseColor(value string) (int, error) {
	hex, err := NormalizeColor(value)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(hex[1:], 16, 32)
	if err != nil {
		return 0, validationErrorf("color %q: %v", value, err)
	}
	return int(n), nil
}

func validateImageURL(value string) error {
	if len(value) > MaxImageURLLen {
		return validationErrorf("image url longer than %d characters", MaxImageURLLen)
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validationErrorf("image url must be an http(s) link")
	}
	return nil
}

// --- Internals ---

// acquire returns the live session locked, or the reason it cannot be used.
// Ownership is checked before liveness.
func (m *AnnounceManager) acquire(ref PanelRef, actor snowflake.ID) (*session, error) {
	key := ref.MessageID.String()
	s, ok := m.sessions.Get(key)
	if !ok {
		return nil, m.endedError(key, actor)
	}
	if s.owner != actor {
		return nil, ErrForbidden
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, m.endedError(key, actor)
	}
	if !m.cfg.Clock.Now().Before(s.expiresAt) {
		// Callers may only know the message ID; finish with the stored ref.
		full := s.ref
		m.endLocked(s, OutcomeExpired)
		s.mu.Unlock()
		m.cfg.Metrics.announcement(string(OutcomeExpired))
		m.finish(full, OutcomeExpired)
		return nil, ErrExpired
	}
	return s, nil
}

func (m *AnnounceManager) endedError(key string, actor snowflake.ID) error {
	t, ok := m.ended.Get(key)
	if !ok {
		return ErrNotFound
	}
	if t.owner != actor {
		return ErrForbidden
	}
	if t.outcome == OutcomeExpired {
		return ErrExpired
	}
	return ErrNotFound
}

func (m *AnnounceManager) expire(key string) {
	s, ok := m.sessions.Get(key)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	m.endLocked(s, OutcomeExpired)
	ref := s.ref
	s.mu.Unlock()

	m.cfg.Metrics.announcement(string(OutcomeExpired))
	m.finish(ref, OutcomeExpired)
}

// endLocked destroys a session. s.mu must be held.
func (m *AnnounceManager) endLocked(s *session, outcome Outcome) {
	s.done = true
	if s.timer != nil {
		s.timer.Stop()
	}

	key := s.ref.MessageID.String()
	m.sessions.Remove(key)

	at := m.cfg.Clock.Now()
	m.ended.Set(key, tombstone{owner: s.owner, outcome: outcome, at: at})
	m.cfg.Clock.AfterFunc(defaultTombstoneTTL, func() {
		m.ended.RemoveCb(key, func(_ string, t tombstone, exists bool) bool {
			return exists && t.at.Equal(at)
		})
	})
}

func (m *AnnounceManager) render(view PanelView) {
	if m.cfg.Renderer == nil {
		return
	}
	if err := m.cfg.Renderer.RenderPanel(view); err != nil && m.cfg.OnError != nil {
		m.cfg.OnError(err)
	}
}

func (m *AnnounceManager) finish(ref PanelRef, outcome Outcome) {
	if m.cfg.Renderer == nil {
		return
	}
	if err := m.cfg.Renderer.FinishPanel(ref, outcome); err != nil && m.cfg.OnError != nil {
		m.cfg.OnError(err)
	}
}

func (s *session) view() PanelView {
	return PanelView{
		Ref:       s.ref,
		Owner:     s.owner,
		GuildID:   s.guildID,
		Draft:     s.draft,
		CreatedAt: s.createdAt,
		ExpiresAt: s.expiresAt,
	}
}
