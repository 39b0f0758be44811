package lottery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/models"
)

var errFake = errors.New("fake failure")

type fakeEvents struct {
	rows   []*models.Event
	nextID int64
}

func (f *fakeEvents) Create(_ context.Context, e *models.Event) error {
	f.nextID++
	e.ID = f.nextID
	cp := *e
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeEvents) find(id int64) *models.Event {
	for _, e := range f.rows {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (f *fakeEvents) GetByID(_ context.Context, id int64) (*models.Event, error) {
	if e := f.find(id); e != nil {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeEvents) Latest(_ context.Context) (*models.Event, error) {
	if len(f.rows) == 0 {
		return nil, nil
	}
	cp := *f.rows[len(f.rows)-1]
	return &cp, nil
}

func (f *fakeEvents) GetActive(_ context.Context) (*models.Event, error) {
	for _, e := range f.rows {
		if e.Status.Active() {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeEvents) ListByStatus(_ context.Context, status models.EventStatus) ([]models.Event, error) {
	var out []models.Event
	for _, e := range f.rows {
		if e.Status == status {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEvents) UpdateStatus(_ context.Context, id int64, status models.EventStatus, endTime *time.Time) error {
	e := f.find(id)
	if e == nil {
		return fmt.Errorf("event %d not found", id)
	}
	e.Status = status
	e.EndTime = endTime
	return nil
}

func (f *fakeEvents) MarkDrawn(_ context.Context, id int64, at time.Time) error {
	e := f.find(id)
	if e == nil {
		return fmt.Errorf("event %d not found", id)
	}
	e.LotteryDrawnAt = &at
	return nil
}

type fakeRegistrations struct {
	rows   []*models.Registration
	nextID int64
}

func (f *fakeRegistrations) Create(_ context.Context, r *models.Registration) error {
	f.nextID++
	r.ID = f.nextID
	cp := *r
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeRegistrations) Delete(_ context.Context, id int64) error {
	f.rows = slices.DeleteFunc(f.rows, func(r *models.Registration) bool { return r.ID == id })
	return nil
}

func (f *fakeRegistrations) find(id int64) *models.Registration {
	for _, r := range f.rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (f *fakeRegistrations) first(match func(*models.Registration) bool, newest bool) *models.Registration {
	var found *models.Registration
	for _, r := range f.rows {
		if match(r) {
			found = r
			if !newest {
				break
			}
		}
	}
	if found == nil {
		return nil
	}
	cp := *found
	return &cp
}

func (f *fakeRegistrations) GetByID(_ context.Context, id int64) (*models.Registration, error) {
	return f.first(func(r *models.Registration) bool { return r.ID == id }, false), nil
}

func (f *fakeRegistrations) GetActiveByUser(_ context.Context, eventID, userID int64) (*models.Registration, error) {
	return f.first(func(r *models.Registration) bool {
		return r.EventID == eventID && r.BelongsTo(userID) && r.Status != models.RegistrationStatusUnregistered
	}, true), nil
}

func (f *fakeRegistrations) GetLatestByUser(_ context.Context, eventID, userID int64) (*models.Registration, error) {
	return f.first(func(r *models.Registration) bool {
		return r.EventID == eventID && r.BelongsTo(userID)
	}, true), nil
}

func (f *fakeRegistrations) FindActiveByUsername(_ context.Context, eventID int64, username string) (*models.Registration, error) {
	return f.first(func(r *models.Registration) bool {
		return r.EventID == eventID && strings.EqualFold(r.Username, username) && r.Status != models.RegistrationStatusUnregistered
	}, true), nil
}

func (f *fakeRegistrations) FindActiveGuestOf(_ context.Context, eventID, speakerUserID int64) (*models.Registration, error) {
	return f.first(func(r *models.Registration) bool {
		return r.EventID == eventID && r.GuestOfUserID != nil && *r.GuestOfUserID == speakerUserID &&
			r.Status != models.RegistrationStatusUnregistered
	}, true), nil
}

func sortByPriority(out []models.Registration) {
	slices.SortStableFunc(out, func(a, b models.Registration) int {
		switch {
		case a.Priority == nil && b.Priority == nil:
		case a.Priority == nil:
			return 1
		case b.Priority == nil:
			return -1
		case *a.Priority != *b.Priority:
			return *a.Priority - *b.Priority
		}
		return int(a.ID - b.ID)
	})
}

func (f *fakeRegistrations) ListByStatus(_ context.Context, eventID int64, status models.RegistrationStatus) ([]models.Registration, error) {
	var out []models.Registration
	for _, r := range f.rows {
		if r.EventID == eventID && r.Status == status {
			out = append(out, *r)
		}
	}
	sortByPriority(out)
	return out, nil
}

func (f *fakeRegistrations) ListAllByStatus(_ context.Context, status models.RegistrationStatus) ([]models.Registration, error) {
	var out []models.Registration
	for _, r := range f.rows {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	sortByPriority(out)
	return out, nil
}

func (f *fakeRegistrations) count(match func(*models.Registration) bool) int {
	n := 0
	for _, r := range f.rows {
		if match(r) {
			n++
		}
	}
	return n
}

func (f *fakeRegistrations) CountByStatus(_ context.Context, eventID int64, status models.RegistrationStatus) (int, error) {
	return f.count(func(r *models.Registration) bool { return r.EventID == eventID && r.Status == status }), nil
}

func (f *fakeRegistrations) CountAcceptedGuests(_ context.Context, eventID int64) (int, error) {
	return f.count(func(r *models.Registration) bool {
		return r.EventID == eventID && r.Status == models.RegistrationStatusAccepted && r.IsGuest()
	}), nil
}

func (f *fakeRegistrations) CountWaitlistAhead(_ context.Context, eventID int64, priority int) (int, error) {
	return f.count(func(r *models.Registration) bool {
		return r.EventID == eventID && r.Status == models.RegistrationStatusWaitlist && r.Priority != nil && *r.Priority < priority
	}), nil
}

func (f *fakeRegistrations) MaxWaitlistPriority(_ context.Context, eventID int64) (int, bool, error) {
	top, ok := 0, false
	for _, r := range f.rows {
		if r.EventID == eventID && r.Status == models.RegistrationStatusWaitlist && r.Priority != nil {
			if !ok || *r.Priority > top {
				top, ok = *r.Priority, true
			}
		}
	}
	return top, ok, nil
}

func (f *fakeRegistrations) ShiftWaitlist(_ context.Context, eventID int64, by int) error {
	for _, r := range f.rows {
		if r.EventID == eventID && r.Status == models.RegistrationStatusWaitlist && r.Priority != nil {
			r.Priority = intPtr(*r.Priority + by)
		}
	}
	return nil
}

func (f *fakeRegistrations) CloseWaitlistGap(_ context.Context, eventID int64, vacated int) error {
	for _, r := range f.rows {
		if r.EventID == eventID && r.Status == models.RegistrationStatusWaitlist && r.Priority != nil && *r.Priority > vacated {
			r.Priority = intPtr(*r.Priority - 1)
		}
	}
	return nil
}

func (f *fakeRegistrations) UpdateStatus(_ context.Context, id int64, status models.RegistrationStatus, change models.StatusChange) error {
	r := f.find(id)
	if r == nil {
		return fmt.Errorf("registration %d not found", id)
	}
	r.Status = status
	if change.Priority != nil {
		r.Priority = intPtr(*change.Priority)
	}
	if change.NotifiedAt != nil {
		r.NotifiedAt = timePtr(*change.NotifiedAt)
	}
	if change.ExpiresAt != nil {
		r.ExpiresAt = timePtr(*change.ExpiresAt)
	}
	return nil
}

func (f *fakeRegistrations) ClaimGuest(_ context.Context, id, userID, chatID int64, firstName string) error {
	r := f.find(id)
	if r == nil || r.UserID != nil {
		return nil
	}
	r.UserID = &userID
	r.ChatID = &chatID
	r.FirstName = firstName
	return nil
}

func (f *fakeRegistrations) MakeGuest(_ context.Context, id, speakerUserID int64) error {
	r := f.find(id)
	if r == nil {
		return fmt.Errorf("registration %d not found", id)
	}
	r.Status = models.RegistrationStatusAccepted
	r.GuestOfUserID = &speakerUserID
	r.Priority = nil
	return nil
}

// byUser returns the newest row of userID.
func (f *fakeRegistrations) byUser(userID int64) *models.Registration {
	var found *models.Registration
	for _, r := range f.rows {
		if r.BelongsTo(userID) {
			found = r
		}
	}
	return found
}

func (f *fakeRegistrations) withStatus(status models.RegistrationStatus) []*models.Registration {
	var out []*models.Registration
	for _, r := range f.rows {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// flakyRegistrations fails the next failures updates to failOn.
type flakyRegistrations struct {
	*fakeRegistrations
	failOn   models.RegistrationStatus
	failures int
}

func (f *flakyRegistrations) UpdateStatus(ctx context.Context, id int64, status models.RegistrationStatus, change models.StatusChange) error {
	if status == f.failOn && f.failures > 0 {
		f.failures--
		return errFake
	}
	return f.fakeRegistrations.UpdateStatus(ctx, id, status, change)
}

type fakeSpeakers struct {
	names map[int64][]string
}

func (f *fakeSpeakers) Exists(_ context.Context, eventID int64, username string) (bool, error) {
	return slices.Contains(f.names[eventID], models.NormalizeUsername(username)), nil
}

func (f *fakeSpeakers) Count(_ context.Context, eventID int64) (int, error) {
	return len(f.names[eventID]), nil
}

func (f *fakeSpeakers) Add(_ context.Context, eventID int64, username string) (bool, error) {
	if f.names == nil {
		f.names = make(map[int64][]string)
	}
	name := models.NormalizeUsername(username)
	if slices.Contains(f.names[eventID], name) {
		return false, nil
	}
	f.names[eventID] = append(f.names[eventID], name)
	return true, nil
}

type fakeActions struct {
	entries []*models.ActionLog
}

func (f *fakeActions) Append(_ context.Context, entry *models.ActionLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeActions) count(action string) int {
	n := 0
	for _, e := range f.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

type fakeOracle struct {
	groups    map[string]int64
	members   map[int64][]int64
	sizeErr   error
	memberErr error
	botID     int64
}

func (f *fakeOracle) ResolveGroup(_ context.Context, ref string) (int64, error) {
	if id, ok := f.groups[ref]; ok {
		return id, nil
	}
	return 0, errFake
}

func (f *fakeOracle) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	if f.memberErr != nil {
		return false, f.memberErr
	}
	return slices.Contains(f.members[groupID], userID), nil
}

func (f *fakeOracle) GroupSize(_ context.Context, groupID int64) (int, error) {
	if f.sizeErr != nil {
		return 0, f.sizeErr
	}
	return len(f.members[groupID]), nil
}

func (f *fakeOracle) BotUserID() int64 { return f.botID }

type sentMessage struct {
	ChatID  int64
	Text    string
	Buttons []Button
}

type fakeNotifier struct {
	sent        []sentMessage
	unreachable map[int64]bool
}

func (f *fakeNotifier) Notify(_ context.Context, chatID int64, text string) error {
	if f.unreachable[chatID] {
		return errFake
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeNotifier) Prompt(_ context.Context, chatID int64, text string, buttons []Button) error {
	if f.unreachable[chatID] {
		return errFake
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Buttons: buttons})
	return nil
}

func (f *fakeNotifier) to(chatID int64) []sentMessage {
	var out []sentMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeNotifier) last(chatID int64) string {
	msgs := f.to(chatID)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

type fakeScheduler struct {
	closes   map[int64]time.Time
	timeouts map[int64]time.Time
	fail     bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{closes: make(map[int64]time.Time), timeouts: make(map[int64]time.Time)}
}

func (f *fakeScheduler) ScheduleClose(_ context.Context, eventID int64, runAt time.Time) error {
	if f.fail {
		return errFake
	}
	f.closes[eventID] = runAt
	return nil
}

func (f *fakeScheduler) ScheduleInviteTimeout(_ context.Context, registrationID int64, runAt time.Time) error {
	if f.fail {
		return errFake
	}
	f.timeouts[registrationID] = runAt
	return nil
}

func (f *fakeScheduler) CancelClose(_ context.Context, eventID int64) error {
	delete(f.closes, eventID)
	return nil
}

func (f *fakeScheduler) CancelInviteTimeout(_ context.Context, registrationID int64) error {
	delete(f.timeouts, registrationID)
	return nil
}

type fakeArchiver struct {
	results []*models.LotteryResult
	err     error
}

func (f *fakeArchiver) ArchiveLottery(_ context.Context, res *models.LotteryResult) error {
	f.results = append(f.results, res)
	return f.err
}

type harness struct {
	svc      *Service
	events   *fakeEvents
	regs     *fakeRegistrations
	speakers *fakeSpeakers
	actions  *fakeActions
	oracle   *fakeOracle
	notifier *fakeNotifier
	sched    *fakeScheduler
	archiver *fakeArchiver
	now      time.Time
}

var (
	admin   = Identity{UserID: 1, ChatID: 1, Username: "admin", FirstName: "Admin"}
	speaker = Identity{UserID: 2, ChatID: 2, Username: "Speaker", FirstName: "Sam"}
)

func user(n int) Identity {
	id := int64(100 + n)
	return Identity{UserID: id, ChatID: id, Username: fmt.Sprintf("user%d", n), FirstName: fmt.Sprintf("User %d", n)}
}

type harnessOption func(*Deps)

// withRandomShuffle restores the production shuffle.
func withRandomShuffle() harnessOption {
	return func(d *Deps) { d.Shuffle = nil }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		events:   &fakeEvents{},
		regs:     &fakeRegistrations{},
		speakers: &fakeSpeakers{},
		actions:  &fakeActions{},
		oracle:   &fakeOracle{groups: map[string]int64{"@speakers": -100}, members: map[int64][]int64{}},
		notifier: &fakeNotifier{unreachable: map[int64]bool{}},
		sched:    newFakeScheduler(),
		archiver: &fakeArchiver{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	deps := Deps{
		Events:                      h.events,
		Registrations:               h.regs,
		Speakers:                    h.speakers,
		Actions:                     h.actions,
		Oracle:                      h.oracle,
		Notifier:                    h.notifier,
		Scheduler:                   h.sched,
		Archiver:                    h.archiver,
		AdminIDs:                    []int64{admin.UserID},
		DefaultWaitlistTimeoutHours: 24,
		Now:                         func() time.Time { return h.now },
		// Identity permutation keeps draws deterministic.
		Shuffle: func(int, func(i, j int)) {},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = NewService(deps, zap.NewNop())
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// createEvent creates a PRE_OPEN event with a static speaker list.
func (h *harness) createEvent(t *testing.T, places int, speakers ...string) *models.Event {
	t.Helper()
	e, err := h.svc.CreateEvent(context.Background(), admin, CreateEventRequest{
		ChatID:                    -1,
		TotalPlaces:               places,
		WaitlistTimeoutHours:      12,
		RegistrationDurationHours: 48,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	for _, name := range speakers {
		if _, err := h.speakers.Add(context.Background(), e.ID, name); err != nil {
			t.Fatal(err)
		}
	}
	return e
}

func (h *harness) open(t *testing.T) {
	t.Helper()
	if _, err := h.svc.OpenEvent(context.Background(), admin); err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}
}

func (h *harness) register(t *testing.T, who ...Identity) {
	t.Helper()
	for _, w := range who {
		if _, err := h.svc.Register(context.Background(), w); err != nil {
			t.Fatalf("Register(%s): %v", w.Username, err)
		}
	}
}

func (h *harness) close(t *testing.T) *models.LotteryResult {
	t.Helper()
	res, err := h.svc.CloseEvent(context.Background(), admin)
	if err != nil {
		t.Fatalf("CloseEvent: %v", err)
	}
	return res
}

// seedWaitlist inserts WAITLIST rows directly, as left behind by earlier joins.
func (h *harness) seedWaitlist(t *testing.T, eventID int64, who ...Identity) []int64 {
	t.Helper()
	top, ok, _ := h.regs.MaxWaitlistPriority(context.Background(), eventID)
	next := 0
	if ok {
		next = top + 1
	}
	var ids []int64
	for i, w := range who {
		uid, cid := w.UserID, w.ChatID
		r := &models.Registration{
			EventID:    eventID,
			UserID:     &uid,
			ChatID:     &cid,
			Username:   w.Username,
			Status:     models.RegistrationStatusWaitlist,
			Priority:   intPtr(next + i),
			SignupTime: h.now,
		}
		if err := h.regs.Create(context.Background(), r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}
	return ids
}

func (h *harness) status(t *testing.T, userID int64) models.RegistrationStatus {
	t.Helper()
	r := h.regs.byUser(userID)
	if r == nil {
		t.Fatalf("no registration for user %d", userID)
	}
	return r.Status
}

// waitlistPriorities returns WAITLIST priorities in order.
func (h *harness) waitlistPriorities(eventID int64) []int {
	rows, _ := h.regs.ListByStatus(context.Background(), eventID, models.RegistrationStatusWaitlist)
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.Priority)
	}
	return out
}

func contiguous(p []int) bool {
	for i := 1; i < len(p); i++ {
		if p[i] != p[i-1]+1 {
			return false
		}
	}
	return true
}
