// Package memory is an in-process Store. Transactions run under one mutex
// against a copy of the data that replaces the live copy on commit, so the
// uniqueness and compare-and-swap rules hold exactly as they do in Postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"admission-portal/internal/models"
	"admission-portal/internal/store"
)

type Store struct {
	mu          sync.Mutex
	st          *state
	unavailable atomic.Bool
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

var _ store.Store = (*Store)(nil)

// SetUnavailable makes every call fail with store.ErrUnavailable.
func (s *Store) SetUnavailable(down bool) { s.unavailable.Store(down) }

func (s *Store) Ping(context.Context) error {
	if s.unavailable.Load() {
		return store.ErrUnavailable
	}
	return nil
}

// RunInTx runs fn against a private copy of the data and publishes the copy
// only if fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(&txStore{parent: s, st: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = working
	return nil
}

// do runs a single autocommitted operation. Every state method checks its
// preconditions before mutating, so no copy is needed outside RunInTx.
func (s *Store) do(fn func(st *state) error) error {
	if s.unavailable.Load() {
		return store.ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) GetActiveDraft(_ context.Context, userID int64, appType models.ApplicationType) (d *models.Draft, err error) {
	err = s.do(func(st *state) error { d, err = st.getActiveDraft(userID, appType); return err })
	return d, err
}

func (s *Store) InsertDraft(_ context.Context, d *models.Draft) error {
	return s.do(func(st *state) error { return st.insertDraft(d) })
}

func (s *Store) UpdateDraft(_ context.Context, d *models.Draft) error {
	return s.do(func(st *state) error { return st.updateDraft(d) })
}

func (s *Store) SupersedeDraft(_ context.Context, draftID string, at time.Time) error {
	return s.do(func(st *state) error { return st.supersedeDraft(draftID, at) })
}

func (s *Store) GetSubmission(_ context.Context, id int64) (sub *models.Submission, err error) {
	err = s.do(func(st *state) error { sub, err = st.getSubmission(id); return err })
	return sub, err
}

func (s *Store) GetSubmissionByUser(_ context.Context, userID int64) (sub *models.Submission, err error) {
	err = s.do(func(st *state) error { sub, err = st.getSubmissionByUser(userID); return err })
	return sub, err
}

func (s *Store) ApplicationIDExists(_ context.Context, applicationID string) (ok bool, err error) {
	err = s.do(func(st *state) error { ok = st.applicationIDExists(applicationID); return nil })
	return ok, err
}

func (s *Store) InsertSubmission(_ context.Context, sub *models.Submission) error {
	return s.do(func(st *state) error { return st.insertSubmission(sub) })
}

func (s *Store) UpdateSubmissionStatus(_ context.Context, id int64, from, to models.SubmissionStatus, decisionDate *time.Time, at time.Time) error {
	return s.do(func(st *state) error { return st.updateSubmissionStatus(id, from, to, decisionDate, at) })
}

func (s *Store) GetReference(_ context.Context, code string) (r *models.PaymentReference, err error) {
	err = s.do(func(st *state) error { r, err = st.getReference(code); return err })
	return r, err
}

func (s *Store) GetReferenceForUpdate(ctx context.Context, code string) (*models.PaymentReference, error) {
	return s.GetReference(ctx, code)
}

func (s *Store) InsertReference(_ context.Context, r *models.PaymentReference) error {
	return s.do(func(st *state) error { return st.insertReference(r) })
}

func (s *Store) UpdateReference(_ context.Context, r *models.PaymentReference, expected models.ReferenceStatus) error {
	return s.do(func(st *state) error { return st.updateReference(r, expected) })
}

func (s *Store) ListReconciliationCandidates(_ context.Context, limit int) (c []store.Candidate, err error) {
	err = s.do(func(st *state) error { c = st.candidates(limit); return nil })
	return c, err
}

// SetPaymentVerification records the payment collaborator's verdict for a
// submission. The admission services never call this.
func (s *Store) SetPaymentVerification(_ context.Context, submissionID int64, reference string, verified bool) error {
	return s.do(func(st *state) error {
		sub, ok := st.submissions[submissionID]
		if !ok {
			return store.ErrNotFound
		}
		if reference == "" {
			sub.PaymentReference = nil
		} else {
			sub.PaymentReference = &reference
		}
		sub.PaymentVerified = verified
		return nil
	})
}

// txStore is the Store handed to RunInTx callbacks. The parent mutex is
// already held.
type txStore struct {
	parent *Store
	st     *state
}

func (t *txStore) RunInTx(_ context.Context, fn func(tx store.Store) error) error { return fn(t) }
func (t *txStore) Ping(ctx context.Context) error                                   { return t.parent.Ping(ctx) }

func (t *txStore) GetActiveDraft(_ context.Context, userID int64, appType models.ApplicationType) (*models.Draft, error) {
	return t.st.getActiveDraft(userID, appType)
}
func (t *txStore) InsertDraft(_ context.Context, d *models.Draft) error { return t.st.insertDraft(d) }
func (t *txStore) UpdateDraft(_ context.Context, d *models.Draft) error { return t.st.updateDraft(d) }
func (t *txStore) SupersedeDraft(_ context.Context, id string, at time.Time) error {
	return t.st.supersedeDraft(id, at)
}
func (t *txStore) GetSubmission(_ context.Context, id int64) (*models.Submission, error) {
	return t.st.getSubmission(id)
}
func (t *txStore) GetSubmissionByUser(_ context.Context, userID int64) (*models.Submission, error) {
	return t.st.getSubmissionByUser(userID)
}
func (t *txStore) ApplicationIDExists(_ context.Context, id string) (bool, error) {
	return t.st.applicationIDExists(id), nil
}
func (t *txStore) InsertSubmission(_ context.Context, s *models.Submission) error {
	return t.st.insertSubmission(s)
}
func (t *txStore) UpdateSubmissionStatus(_ context.Context, id int64, from, to models.SubmissionStatus, decisionDate *time.Time, at time.Time) error {
	return t.st.updateSubmissionStatus(id, from, to, decisionDate, at)
}
func (t *txStore) GetReference(_ context.Context, code string) (*models.PaymentReference, error) {
	return t.st.getReference(code)
}
func (t *txStore) GetReferenceForUpdate(_ context.Context, code string) (*models.PaymentReference, error) {
	return t.st.getReference(code)
}
func (t *txStore) InsertReference(_ context.Context, r *models.PaymentReference) error {
	return t.st.insertReference(r)
}
func (t *txStore) UpdateReference(_ context.Context, r *models.PaymentReference, expected models.ReferenceStatus) error {
	return t.st.updateReference(r, expected)
}
func (t *txStore) ListReconciliationCandidates(_ context.Context, limit int) ([]store.Candidate, error) {
	return t.st.candidates(limit), nil
}

type state struct {
	drafts          map[string]*models.Draft
	submissions     map[int64]*models.Submission
	references      map[string]*models.PaymentReference
	nextSubmission  int64
	nextReferenceID int64
}

func newState() *state {
	return &state{
		drafts:      make(map[string]*models.Draft),
		submissions: make(map[int64]*models.Submission),
		references:  make(map[string]*models.PaymentReference),
	}
}

func (st *state) clone() *state {
	out := &state{
		drafts:          make(map[string]*models.Draft, len(st.drafts)),
		submissions:     make(map[int64]*models.Submission, len(st.submissions)),
		references:      make(map[string]*models.PaymentReference, len(st.references)),
		nextSubmission:  st.nextSubmission,
		nextReferenceID: st.nextReferenceID,
	}
	for k, v := range st.drafts {
		out.drafts[k] = copyDraft(v)
	}
	for k, v := range st.submissions {
		out.submissions[k] = copySubmission(v)
	}
	for k, v := range st.references {
		out.references[k] = copyReference(v)
	}
	return out
}

func (st *state) getActiveDraft(userID int64, appType models.ApplicationType) (*models.Draft, error) {
	for _, d := range st.drafts {
		if d.UserID == userID && d.ApplicationType == appType && d.SupersededAt == nil {
			return copyDraft(d), nil
		}
	}
	return nil, store.ErrNotFound
}

func (st *state) insertDraft(d *models.Draft) error {
	if _, err := st.getActiveDraft(d.UserID, d.ApplicationType); err == nil {
		return store.ErrDraftExists
	}
	st.drafts[d.ID] = copyDraft(d)
	return nil
}

func (st *state) updateDraft(d *models.Draft) error {
	cur, ok := st.drafts[d.ID]
	if !ok || cur.SupersededAt != nil {
		return store.ErrNotFound
	}
	st.drafts[d.ID] = copyDraft(d)
	return nil
}

func (st *state) supersedeDraft(id string, at time.Time) error {
	d, ok := st.drafts[id]
	if !ok {
		return store.ErrNotFound
	}
	if d.SupersededAt != nil {
		return store.ErrStateChanged
	}
	d.SupersededAt = &at
	d.UpdatedAt = at
	return nil
}

func (st *state) getSubmission(id int64) (*models.Submission, error) {
	s, ok := st.submissions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copySubmission(s), nil
}

func (st *state) getSubmissionByUser(userID int64) (*models.Submission, error) {
	for _, s := range st.submissions {
		if s.UserID == userID {
			return copySubmission(s), nil
		}
	}
	return nil, store.ErrNotFound
}

func (st *state) applicationIDExists(id string) bool {
	for _, s := range st.submissions {
		if s.ApplicationID == id {
			return true
		}
	}
	return false
}

func (st *state) insertSubmission(s *models.Submission) error {
	if _, err := st.getSubmissionByUser(s.UserID); err == nil {
		return store.ErrUserHasSubmission
	}
	if st.applicationIDExists(s.ApplicationID) {
		return store.ErrApplicationIDTaken
	}
	st.nextSubmission++
	s.ID = st.nextSubmission
	st.submissions[s.ID] = copySubmission(s)
	return nil
}

func (st *state) updateSubmissionStatus(id int64, from, to models.SubmissionStatus, decisionDate *time.Time, at time.Time) error {
	s, ok := st.submissions[id]
	if !ok {
		return store.ErrNotFound
	}
	if s.Status != from {
		return store.ErrStateChanged
	}
	s.Status = to
	if decisionDate != nil {
		dd := *decisionDate
		s.DecisionDate = &dd
	}
	s.UpdatedAt = at
	return nil
}

func (st *state) getReference(code string) (*models.PaymentReference, error) {
	r, ok := st.references[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyReference(r), nil
}

func (st *state) insertReference(r *models.PaymentReference) error {
	if _, ok := st.references[r.Reference]; ok {
		return store.ErrReferenceExists
	}
	st.nextReferenceID++
	r.ID = st.nextReferenceID
	st.references[r.Reference] = copyReference(r)
	return nil
}

func (st *state) updateReference(r *models.PaymentReference, expected models.ReferenceStatus) error {
	cur, ok := st.references[r.Reference]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Status != expected {
		return store.ErrStateChanged
	}
	next := copyReference(r)
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	st.references[r.Reference] = next
	return nil
}

func (st *state) candidates(limit int) []store.Candidate {
	out := make([]store.Candidate, 0)
	for _, s := range st.submissions {
		if !s.PaymentVerified || s.PaymentReference == nil || strings.TrimSpace(*s.PaymentReference) == "" {
			continue
		}
		if r, ok := st.references[*s.PaymentReference]; ok && r.Status == models.ReferenceUsed {
			continue
		}
		out = append(out, store.Candidate{
			SubmissionID:  s.ID,
			UserID:        s.UserID,
			ApplicationID: s.ApplicationID,
			Reference:     *s.PaymentReference,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmissionID < out[j].SubmissionID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func copyDraft(d *models.Draft) *models.Draft {
	c := *d
	c.WorkExperiences = append([]models.WorkExperience(nil), d.WorkExperiences...)
	c.Referees = append([]models.Referee(nil), d.Referees...)
	if d.SupersededAt != nil {
		t := *d.SupersededAt
		c.SupersededAt = &t
	}
	return &c
}

func copySubmission(s *models.Submission) *models.Submission {
	c := *s
	if s.PaymentReference != nil {
		ref := *s.PaymentReference
		c.PaymentReference = &ref
	}
	if s.DecisionDate != nil {
		t := *s.DecisionDate
		c.DecisionDate = &t
	}
	return &c
}

func copyReference(r *models.PaymentReference) *models.PaymentReference {
	c := *r
	if r.UsedByUserID != nil {
		id := *r.UsedByUserID
		c.UsedByUserID = &id
	}
	if r.UsedAt != nil {
		t := *r.UsedAt
		c.UsedAt = &t
	}
	return &c
}
