// Package store provides the in-memory storage backend for SlotPipe.
//
// The in-memory store is the default for tests and single-node development.
// Campaign state mutation is scoped per campaign record; the store-level lock
// only guards map membership and the contact index.
package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/models"
	"github.com/BTreeMap/SlotPipe/internal/util"
)

// campaignRecord pairs a campaign with its own mutex so the filled
// check-and-set never contends across campaigns.
type campaignRecord struct {
	mu sync.Mutex
	c  models.Campaign
}

// snapshot returns a copy of the campaign safe to hand to callers.
func (r *campaignRecord) snapshot() *models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.c
	c.Recipients = make([]models.Recipient, len(r.c.Recipients))
	copy(c.Recipients, r.c.Recipients)
	return &c
}

// InMemoryStore implements CampaignRepo, AccountRepo, and JobRepo in memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	campaigns map[string]*campaignRecord
	emailIdx  map[string]string // lower-cased address -> campaign id
	phoneIdx  map[string]string // E.164 number -> campaign id
	tokenIdx  map[string]string // reply token -> campaign id

	accountMu sync.RWMutex
	accounts  map[string]*models.Account

	jobMu sync.Mutex
	jobs  map[string]*Job
}

// Compile-time check that InMemoryStore implements the full store surface.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		campaigns: make(map[string]*campaignRecord),
		emailIdx:  make(map[string]string),
		phoneIdx:  make(map[string]string),
		tokenIdx:  make(map[string]string),
		accounts:  make(map[string]*models.Account),
		jobs:      make(map[string]*Job),
	}
}

// CreateCampaign inserts the campaign and its contact index entries in one
// locked step, so no reply can observe a campaign without its index.
func (s *InMemoryStore) CreateCampaign(c *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &campaignRecord{c: *c}
	rec.c.Recipients = make([]models.Recipient, len(c.Recipients))
	copy(rec.c.Recipients, c.Recipients)
	s.campaigns[c.ID] = rec

	if c.ReplyToken != "" {
		s.tokenIdx[c.ReplyToken] = c.ID
	}
	for i := range c.Recipients {
		r := &c.Recipients[i]
		if r.Email != "" {
			key := strings.ToLower(r.Email)
			if existing, ok := s.emailIdx[key]; ok && existing != c.ID {
				slog.Warn("InMemoryStore.CreateCampaign: email already indexed for an active campaign, keeping oldest",
					"email", key, "existing", existing, "new", c.ID)
			} else {
				s.emailIdx[key] = c.ID
			}
		}
		if r.Phone != "" {
			if existing, ok := s.phoneIdx[r.Phone]; ok && existing != c.ID {
				slog.Warn("InMemoryStore.CreateCampaign: phone already indexed for an active campaign, keeping oldest",
					"phone", r.Phone, "existing", existing, "new", c.ID)
			} else {
				s.phoneIdx[r.Phone] = c.ID
			}
		}
	}

	slog.Debug("InMemoryStore.CreateCampaign", "id", c.ID, "recipients", len(c.Recipients))
	return nil
}

// GetCampaign returns a copy of the campaign, or nil if not found.
func (s *InMemoryStore) GetCampaign(id string) (*models.Campaign, error) {
	s.mu.RLock()
	rec, ok := s.campaigns[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return rec.snapshot(), nil
}

// FindCampaignByEmail resolves through the email index.
func (s *InMemoryStore) FindCampaignByEmail(email string) (*models.Campaign, error) {
	s.mu.RLock()
	id, ok := s.emailIdx[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetCampaign(id)
}

// FindCampaignByPhone resolves through the phone index.
func (s *InMemoryStore) FindCampaignByPhone(phone string) (*models.Campaign, error) {
	s.mu.RLock()
	id, ok := s.phoneIdx[phone]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetCampaign(id)
}

// FindCampaignByToken resolves through the reply token index.
func (s *InMemoryStore) FindCampaignByToken(token string) (*models.Campaign, error) {
	s.mu.RLock()
	id, ok := s.tokenIdx[token]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetCampaign(id)
}

// MarkFilled performs the check-and-set on the campaign's filled flag. The
// critical section is the flag alone; no I/O ever happens under this lock.
func (s *InMemoryStore) MarkFilled(id string) (bool, error) {
	s.mu.RLock()
	rec, ok := s.campaigns[id]
	s.mu.RUnlock()
	if !ok {
		return false, models.ErrCampaignNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.c.Filled {
		return false, nil
	}
	rec.c.Filled = true
	return true, nil
}

// SetWinner records the winning recipient.
func (s *InMemoryStore) SetWinner(id, recipientID string) error {
	s.mu.RLock()
	rec, ok := s.campaigns[id]
	s.mu.RUnlock()
	if !ok {
		return models.ErrCampaignNotFound
	}
	rec.mu.Lock()
	rec.c.WinnerID = recipientID
	rec.mu.Unlock()
	return nil
}

// AddSendCount adds n to the campaign's per-channel send counter.
func (s *InMemoryStore) AddSendCount(id string, ch models.Channel, n int) error {
	s.mu.RLock()
	rec, ok := s.campaigns[id]
	s.mu.RUnlock()
	if !ok {
		return models.ErrCampaignNotFound
	}
	rec.mu.Lock()
	switch ch {
	case models.ChannelEmail:
		rec.c.EmailsSent += n
	case models.ChannelText:
		rec.c.TextsSent += n
	}
	rec.mu.Unlock()
	return nil
}

// SetLastWaveAt stamps the time the most recent wave fired.
func (s *InMemoryStore) SetLastWaveAt(id string, t time.Time) error {
	s.mu.RLock()
	rec, ok := s.campaigns[id]
	s.mu.RUnlock()
	if !ok {
		return models.ErrCampaignNotFound
	}
	rec.mu.Lock()
	rec.c.LastWaveAt = &t
	rec.mu.Unlock()
	return nil
}

// ListCampaigns returns copies of all campaigns, newest first.
func (s *InMemoryStore) ListCampaigns() ([]models.Campaign, error) {
	s.mu.RLock()
	recs := make([]*campaignRecord, 0, len(s.campaigns))
	for _, rec := range s.campaigns {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	campaigns := make([]models.Campaign, 0, len(recs))
	for _, rec := range recs {
		campaigns = append(campaigns, *rec.snapshot())
	}
	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].CreatedAt.After(campaigns[j].CreatedAt)
	})
	return campaigns, nil
}

// DeleteCampaignsBefore removes campaigns created before the cutoff and
// releases their contact index entries.
func (s *InMemoryStore) DeleteCampaignsBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.campaigns {
		if !rec.c.CreatedAt.Before(cutoff) {
			continue
		}
		for key, cid := range s.emailIdx {
			if cid == id {
				delete(s.emailIdx, key)
			}
		}
		for key, cid := range s.phoneIdx {
			if cid == id {
				delete(s.phoneIdx, key)
			}
		}
		delete(s.tokenIdx, rec.c.ReplyToken)
		delete(s.campaigns, id)
		removed++
	}
	if removed > 0 {
		slog.Info("InMemoryStore.DeleteCampaignsBefore", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// GetAccount returns a copy of the account, or nil if not found.
func (s *InMemoryStore) GetAccount(id string) (*models.Account, error) {
	s.accountMu.RLock()
	defer s.accountMu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

// SaveAccount inserts or replaces the account record.
func (s *InMemoryStore) SaveAccount(a *models.Account) error {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	copied := *a
	s.accounts[a.ID] = &copied
	return nil
}

// IncrementCounter adds amount to a named usage counter.
func (s *InMemoryStore) IncrementCounter(accountID, counter string, amount int) error {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}
	switch counter {
	case models.CounterReplacementsBooked:
		a.ReplacementsBooked += amount
	case models.CounterEmailsSent:
		a.EmailsSent += amount
	case models.CounterTextsSent:
		a.TextsSent += amount
	default:
		slog.Warn("InMemoryStore.IncrementCounter: unknown counter", "counter", counter)
	}
	return nil
}

// SetLastReplacementAt stamps the account's last successful replacement.
func (s *InMemoryStore) SetLastReplacementAt(accountID string, t time.Time) error {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}
	a.LastReplacementAt = &t
	return nil
}

// EnqueueJob inserts a new job, honoring the dedupe key.
func (s *InMemoryStore) EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if dedupeKey != "" {
		for _, j := range s.jobs {
			if j.DedupeKey == dedupeKey && j.Status != JobStatusDone && j.Status != JobStatusCanceled {
				slog.Debug("InMemoryStore.EnqueueJob: dedupe hit", "dedupeKey", dedupeKey, "existingID", j.ID)
				return j.ID, nil
			}
		}
	}

	now := time.Now()
	job := &Job{
		ID:          util.GenerateRandomID("job_", 32),
		Kind:        kind,
		RunAt:       runAt,
		PayloadJSON: payloadJSON,
		Status:      JobStatusQueued,
		MaxAttempts: 3,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[job.ID] = job
	return job.ID, nil
}

// ClaimDueJobs marks up to limit due jobs as running and returns them.
func (s *InMemoryStore) ClaimDueJobs(now time.Time, limit int) ([]Job, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	var due []*Job
	for _, j := range s.jobs {
		if j.Status == JobStatusQueued && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]Job, 0, len(due))
	for _, j := range due {
		j.Status = JobStatusRunning
		locked := now
		j.LockedAt = &locked
		j.UpdatedAt = now
		claimed = append(claimed, *j)
	}
	return claimed, nil
}

// CompleteJob marks a job as done.
func (s *InMemoryStore) CompleteJob(id string) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Status = JobStatusDone
		j.UpdatedAt = time.Now()
	}
	return nil
}

// FailJob records the failure and requeues for retry if attempts remain.
func (s *InMemoryStore) FailJob(id string, errMsg string, nextRunAt time.Time) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	j.Attempt++
	j.LastError = errMsg
	j.LockedAt = nil
	j.UpdatedAt = time.Now()
	if j.Attempt >= j.MaxAttempts {
		j.Status = JobStatusFailed
	} else {
		j.Status = JobStatusQueued
		j.RunAt = nextRunAt
	}
	return nil
}

// CancelJob marks a job as canceled.
func (s *InMemoryStore) CancelJob(id string) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Status = JobStatusCanceled
		j.LockedAt = nil
		j.UpdatedAt = time.Now()
	}
	return nil
}

// RequeueStaleRunningJobs resets crashed jobs back to queued.
func (s *InMemoryStore) RequeueStaleRunningJobs(staleBefore time.Time) (int, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == JobStatusRunning && j.LockedAt != nil && j.LockedAt.Before(staleBefore) {
			j.Status = JobStatusQueued
			j.LockedAt = nil
			j.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

// GetJob retrieves a single job by ID, or nil if not found.
func (s *InMemoryStore) GetJob(id string) (*Job, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *j
	return &copied, nil
}
