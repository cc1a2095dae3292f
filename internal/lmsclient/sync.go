package lmsclient

import (
	"context"
	"log"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/coursekit/rudaux/internal/domain"
)

// Synchronizer builds a consistent View from the LMS client and caches it,
// falling back to the cache when the LMS is unreachable (spec.md §4.1).
type Synchronizer struct {
	client        Client
	cache         *Cache
	cacheFallback bool
}

// NewSynchronizer builds a Synchronizer. cacheFallback controls whether a
// fetch failure degrades to the cached view (true) or aborts the run
// (false), per spec.md §7.
func NewSynchronizer(client Client, cache *Cache, cacheFallback bool) *Synchronizer {
	return &Synchronizer{client: client, cache: cache, cacheFallback: cacheFallback}
}

// Sync implements the §4.1 contract: the returned View is either freshly
// fetched, loaded from cache, or an error is returned and the run aborts.
// No partial view is ever returned.
func (s *Synchronizer) Sync(ctx context.Context) (View, error) {
	view, err := s.fetch(ctx)
	if err == nil {
		if saveErr := s.cache.Save(ctx, view); saveErr != nil {
			log.Printf("[sync] warning: failed to write lms cache: %v", saveErr)
		}
		return view, nil
	}

	if !s.cacheFallback {
		return View{}, errors.Wrap(err, "lms synchronization failed and cache fallback is disabled")
	}

	cached, ok, cacheErr := s.cache.Load(ctx)
	if cacheErr != nil || !ok {
		return View{}, errors.Wrap(err, "lms synchronization failed and no cache is available")
	}

	log.Printf("[sync] WARNING: lms synchronization failed (%v); degrading to cached view", err)
	return cached, nil
}

// Invalidate forces the next Sync call in this run to skip the cache
// fallback path by clearing the persisted cache. Per spec.md §4.1, any
// write to the LMS (e.g. creating an override) must call this before the
// next read that depends on the new state.
func (s *Synchronizer) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

func (s *Synchronizer) fetch(ctx context.Context) (View, error) {
	course, err := s.client.GetCourseInfo(ctx)
	if err != nil {
		return View{}, errors.Wrap(err, "get course info")
	}

	students, err := s.client.GetStudents(ctx)
	if err != nil {
		return View{}, errors.Wrap(err, "get students")
	}
	tas, err := s.client.GetTAs(ctx)
	if err != nil {
		return View{}, errors.Wrap(err, "get tas")
	}
	instructors, err := s.client.GetInstructors(ctx)
	if err != nil {
		return View{}, errors.Wrap(err, "get instructors")
	}
	fakeStudents, err := s.client.GetFakeStudents(ctx)
	if err != nil {
		return View{}, errors.Wrap(err, "get fake students")
	}
	assignmentRecords, err := s.client.GetAssignments(ctx)
	if err != nil {
		return View{}, errors.Wrap(err, "get assignments")
	}

	assignments := make([]domain.Assignment, 0, len(assignmentRecords))
	for _, ar := range assignmentRecords {
		a, err := toAssignment(ar)
		if err != nil {
			return View{}, errors.Wrapf(err, "assignment %s", ar.Name)
		}
		if err := a.Validate(); err != nil {
			return View{}, err
		}
		assignments = append(assignments, a)
	}

	return View{
		Course:       course,
		Students:     toPeople(students),
		TAs:          toPeople(tas),
		Instructors:  toPeople(instructors),
		FakeStudents: toPeople(fakeStudents),
		Assignments:  assignments,
	}, nil
}

func toPeople(records []PersonRecord) []domain.Person {
	out := make([]domain.Person, 0, len(records))
	for _, r := range records {
		out = append(out, toPerson(r))
	}
	return out
}

func toPerson(r PersonRecord) domain.Person {
	created, _ := time.Parse(time.RFC3339, r.RegCreated)
	var updated *time.Time
	if r.RegUpdated != nil {
		if t, err := time.Parse(time.RFC3339, *r.RegUpdated); err == nil {
			updated = &t
		}
	}
	return domain.Person{
		ID:           r.ID,
		SISID:        r.SISID,
		Name:         r.Name,
		SortableName: r.SortableName,
		RegCreated:   created,
		RegUpdated:   updated,
		Active:       r.Active,
	}
}

func toAssignment(r AssignmentRecord) (domain.Assignment, error) {
	unlock, err := parseOptionalTime(r.UnlockAt)
	if err != nil {
		return domain.Assignment{}, errors.Wrap(err, "unlock_at")
	}
	due, err := parseOptionalTime(r.DueAt)
	if err != nil {
		return domain.Assignment{}, errors.Wrap(err, "due_at")
	}
	lock, err := parseOptionalTime(r.LockAt)
	if err != nil {
		return domain.Assignment{}, errors.Wrap(err, "lock_at")
	}

	overrides := make([]domain.Override, 0, len(r.Overrides))
	for _, or := range r.Overrides {
		ov, err := toOverride(or)
		if err != nil {
			return domain.Assignment{}, err
		}
		overrides = append(overrides, ov)
	}

	return domain.Assignment{
		ID:        r.ID,
		Name:      r.Name,
		UnlockAt:  unlock,
		DueAt:     due,
		LockAt:    lock,
		MaxScore:  r.MaxScore,
		Overrides: overrides,
	}, nil
}

func toOverride(r OverrideRecord) (domain.Override, error) {
	unlock, err := parseOptionalTime(r.UnlockAt)
	if err != nil {
		return domain.Override{}, errors.Wrap(err, "override unlock_at")
	}
	due, err := parseOptionalTime(r.DueAt)
	if err != nil {
		return domain.Override{}, errors.Wrap(err, "override due_at")
	}
	lock, err := parseOptionalTime(r.LockAt)
	if err != nil {
		return domain.Override{}, errors.Wrap(err, "override lock_at")
	}
	return domain.Override{
		ID:       r.ID,
		Title:    r.Title,
		Students: r.Students,
		UnlockAt: unlock,
		DueAt:    due,
		LockAt:   lock,
	}, nil
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
