// Package memstore keeps every persistence port in process memory. It backs
// STORAGE=memory and serves as the persistence double in tests.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/models"
)

type leadKey struct{ listingID, searcher string }

type meetingKey struct {
	leadID string
	start  int64
}

// Store is a mutex-guarded in-memory core.Store.
type Store struct {
	mu sync.RWMutex

	now   func() time.Time
	newID func() string

	sessions      map[string]*models.Session
	accounts      map[string]*models.Account
	listings      map[string]*models.Listing
	leads         map[string]*models.Lead
	leadIndex     map[leadKey]string
	meetings      map[meetingKey]*models.Meeting
	notifications map[string]*models.Notification
}

var _ core.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides the id generator used for leads.
func WithIDs(next func() string) Option {
	return func(s *Store) { s.newID = next }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		newID:         uuid.NewString,
		sessions:      map[string]*models.Session{},
		accounts:      map[string]*models.Account{},
		listings:      map[string]*models.Listing{},
		leads:         map[string]*models.Lead{},
		leadIndex:     map[leadKey]string{},
		meetings:      map[meetingKey]*models.Meeting{},
		notifications: map[string]*models.Notification{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return nil }

// sessions

func (s *Store) GetSession(_ context.Context, chatIdentity string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[chatIdentity].Clone(), nil
}

func (s *Store) SaveSession(_ context.Context, sess *models.Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := sess.Clone()
	now := s.now()
	if prev, ok := s.sessions[c.ChatIdentity]; ok {
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.sessions[c.ChatIdentity] = c
	return nil
}

// accounts

func cloneAccount(a *models.Account) *models.Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.PlanExpiresAt != nil {
		t := *a.PlanExpiresAt
		c.PlanExpiresAt = &t
	}
	return &c
}

func (s *Store) GetAccount(_ context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAccount(s.accounts[id]), nil
}

func (s *Store) findAccount(match func(*models.Account) bool) *models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if match(a) {
			return cloneAccount(a)
		}
	}
	return nil
}

func (s *Store) FindAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	return s.findAccount(func(a *models.Account) bool { return strings.ToLower(a.Email) == email }), nil
}

func (s *Store) FindAccountByPhone(_ context.Context, phone string) (*models.Account, error) {
	if phone == "" {
		return nil, nil
	}
	return s.findAccount(func(a *models.Account) bool { return a.Phone == phone && a.ChatIdentity != "" }), nil
}

func (s *Store) FindAccountByChat(_ context.Context, chatIdentity string) (*models.Account, error) {
	if chatIdentity == "" {
		return nil, nil
	}
	return s.findAccount(func(a *models.Account) bool { return a.ChatIdentity == chatIdentity }), nil
}

func (s *Store) CreateAccount(_ context.Context, a *models.Account) error {
	if a == nil {
		return errors.New("nil account")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return errors.New("account already exists")
	}
	for _, other := range s.accounts {
		if a.ChatIdentity != "" && other.ChatIdentity == a.ChatIdentity {
			return errors.New("chat identity already linked")
		}
	}
	c := cloneAccount(a)
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.accounts[c.ID] = c
	return nil
}

func (s *Store) UpdateAccount(_ context.Context, a *models.Account) error {
	if a == nil {
		return errors.New("nil account")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.accounts[a.ID]
	if !ok {
		return core.ErrNotFound
	}
	for id, other := range s.accounts {
		if id != a.ID && a.ChatIdentity != "" && other.ChatIdentity == a.ChatIdentity {
			return errors.New("chat identity already linked")
		}
	}
	c := cloneAccount(a)
	c.CreatedAt, c.UpdatedAt = prev.CreatedAt, s.now()
	s.accounts[c.ID] = c
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

// listings

func cloneListing(l *models.Listing) *models.Listing {
	if l == nil {
		return nil
	}
	c := *l
	c.Images = append([]string{}, l.Images...)
	c.Videos = append([]string{}, l.Videos...)
	c.Availability = append([]models.Slot{}, l.Availability...)
	c.Embedding = append([]float32(nil), l.Embedding...)
	return &c
}

// FindByShortID returns the newest listing whose id starts with shortID.
func (s *Store) FindByShortID(_ context.Context, shortID string) (*models.Listing, error) {
	shortID = strings.ToLower(strings.TrimSpace(shortID))
	if shortID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Listing
	for id, l := range s.listings {
		if !strings.HasPrefix(id, shortID) {
			continue
		}
		if best == nil || l.CreatedAt.After(best.CreatedAt) {
			best = l
		}
	}
	return cloneListing(best), nil
}

func (s *Store) GetByID(_ context.Context, id string) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneListing(s.listings[id]), nil
}

func (s *Store) Create(_ context.Context, l *models.Listing) error {
	if l == nil {
		return errors.New("nil listing")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.ID]; ok {
		return errors.New("listing already exists")
	}
	c := cloneListing(l)
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.listings[c.ID] = c
	return nil
}

func (s *Store) Update(_ context.Context, l *models.Listing) error {
	if l == nil {
		return errors.New("nil listing")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.listings[l.ID]
	if !ok {
		return core.ErrNotFound
	}
	c := cloneListing(l)
	c.OwnerID, c.Embedding, c.CreatedAt = prev.OwnerID, prev.Embedding, prev.CreatedAt
	c.UpdatedAt = s.now()
	s.listings[c.ID] = c
	return nil
}

func (s *Store) AppendMedia(_ context.Context, listingID string, media []models.MediaRef) error {
	images, videos := models.SplitMedia(media)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[listingID]
	if !ok {
		return core.ErrNotFound
	}
	if len(images) == 0 && len(videos) == 0 {
		return nil
	}
	l.Images = append(l.Images, images...)
	l.Videos = append(l.Videos, videos...)
	l.UpdatedAt = s.now()
	return nil
}

// Listings returns every stored listing, oldest first.
func (s *Store) Listings() []models.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, *cloneListing(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SearchSimilar ranks listings with an embedding by squared L2 distance.
func (s *Store) SearchSimilar(_ context.Context, queryVec []float32, limit int) ([]models.Listing, error) {
	if len(queryVec) == 0 || limit <= 0 {
		return nil, nil
	}
	type scored struct {
		l    *models.Listing
		dist float64
	}
	s.mu.RLock()
	var all []scored
	for _, l := range s.listings {
		if len(l.Embedding) != len(queryVec) {
			continue
		}
		var d float64
		for i, v := range l.Embedding {
			diff := float64(v - queryVec[i])
			d += diff * diff
		}
		all = append(all, scored{cloneListing(l), d})
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].dist == all[j].dist {
			return all[i].l.ID < all[j].l.ID
		}
		return all[i].dist < all[j].dist
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]models.Listing, 0, len(all))
	for _, sc := range all {
		out = append(out, *sc.l)
	}
	return out, nil
}

// leads

func cloneLead(l *models.Lead) *models.Lead {
	if l == nil {
		return nil
	}
	c := *l
	c.Messages = append([]models.LeadMessage(nil), l.Messages...)
	if l.LastMessageAt != nil {
		t := *l.LastMessageAt
		c.LastMessageAt = &t
	}
	return &c
}

func (s *Store) GetOrCreateLead(_ context.Context, listingID, searcherIdentity, searcherName string) (*models.Lead, bool, error) {
	if listingID == "" || searcherIdentity == "" {
		return nil, false, errors.New("lead requires listing and searcher")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := leadKey{listingID, searcherIdentity}
	if id, ok := s.leadIndex[key]; ok {
		return cloneLead(s.leads[id]), false, nil
	}
	if _, ok := s.listings[listingID]; !ok {
		return nil, false, core.ErrNotFound
	}
	l := &models.Lead{
		ID:               s.newID(),
		ListingID:        listingID,
		SearcherIdentity: searcherIdentity,
		SearcherName:     searcherName,
		Status:           models.LeadNew,
		CreatedAt:        s.now(),
	}
	s.leads[l.ID] = l
	s.leadIndex[key] = l.ID
	return cloneLead(l), true, nil
}

// Leads returns every lead, oldest first.
func (s *Store) Leads() []models.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, *cloneLead(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) GetLead(_ context.Context, id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLead(s.leads[id]), nil
}

func (s *Store) AppendLeadMessage(_ context.Context, leadID string, msg models.LeadMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return core.ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	msg.LeadID = leadID
	l.Messages = append(l.Messages, msg)
	sort.SliceStable(l.Messages, func(i, j int) bool { return l.Messages[i].Timestamp.Before(l.Messages[j].Timestamp) })
	if l.LastMessageAt == nil || msg.Timestamp.After(*l.LastMessageAt) {
		t := msg.Timestamp
		l.LastMessageAt = &t
	}
	return nil
}

func (s *Store) UpdateLeadStatus(_ context.Context, leadID string, status models.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return core.ErrNotFound
	}
	l.Status = status
	return nil
}

// meetings

func (s *Store) CreateMeeting(_ context.Context, m *models.Meeting) (bool, error) {
	if m == nil {
		return false, errors.New("nil meeting")
	}
	if !m.StartTime.Before(m.EndTime) {
		return false, errors.New("meeting must end after it starts")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := meetingKey{m.LeadID, m.StartTime.Unix()}
	if _, ok := s.meetings[key]; ok {
		return false, nil
	}
	c := *m
	c.StartTime, c.EndTime = m.StartTime.UTC(), m.EndTime.UTC()
	c.CreatedAt = s.now()
	s.meetings[key] = &c
	return true, nil
}

func (s *Store) FindMeeting(_ context.Context, leadID string, start time.Time) (*models.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[meetingKey{leadID, start.Unix()}]
	if !ok {
		return nil, nil
	}
	c := *m
	return &c, nil
}

// Meetings returns every stored meeting ordered by start time.
func (s *Store) Meetings() []models.Meeting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// notifications

func cloneNotification(n *models.Notification) *models.Notification {
	if n == nil {
		return nil
	}
	c := *n
	if n.Payload != nil {
		c.Payload = make(map[string]string, len(n.Payload))
		for k, v := range n.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

func (s *Store) InsertNotification(_ context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("nil notification")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[n.ID]; ok {
		return errors.New("notification already exists")
	}
	c := cloneNotification(n)
	if c.Status == "" {
		c.Status = models.NotificationPending
	}
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.notifications[c.ID] = c
	return nil
}

func (s *Store) GetNotification(_ context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNotification(s.notifications[id]), nil
}

func (s *Store) listNotifications(match func(*models.Notification) bool, newestFirst bool, limit int) []models.Notification {
	s.mu.RLock()
	var out []models.Notification
	for _, n := range s.notifications {
		if match(n) {
			out = append(out, *cloneNotification(n))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt) != newestFirst
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) ListDeliverable(_ context.Context, maxAttempts, limit int) ([]models.Notification, error) {
	return s.listNotifications(func(n *models.Notification) bool {
		return n.Status == models.NotificationPending && n.Attempts < maxAttempts
	}, false, limit), nil
}

func (s *Store) ListNotificationsByStatus(_ context.Context, status models.NotificationStatus, limit int) ([]models.Notification, error) {
	return s.listNotifications(func(n *models.Notification) bool { return n.Status == status }, true, limit), nil
}

func (s *Store) MarkNotificationSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return core.ErrNotFound
	}
	n.Status, n.LastError, n.UpdatedAt = models.NotificationSent, "", s.now()
	return nil
}

func (s *Store) RecordNotificationFailure(_ context.Context, id, lastError string, maxAttempts int) (models.NotificationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return "", core.ErrNotFound
	}
	n.Attempts++
	n.LastError = lastError
	n.Status = models.NotificationPending
	if n.Attempts >= maxAttempts {
		n.Status = models.NotificationFailed
	}
	n.UpdatedAt = s.now()
	return n.Status, nil
}

func (s *Store) RequeueNotification(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return core.ErrNotFound
	}
	n.Status, n.Attempts, n.LastError, n.UpdatedAt = models.NotificationPending, 0, "", s.now()
	return nil
}
