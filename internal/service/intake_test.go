package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/identity"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/repository"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) FindByOwner(ctx context.Context, ownerID string) ([]models.Submission, error) {
	args := m.Called(ctx, ownerID)
	subs, _ := args.Get(0).([]models.Submission)
	return subs, args.Error(1)
}

func (m *mockStore) Insert(ctx context.Context, sub *models.Submission) (string, time.Time, error) {
	args := m.Called(ctx, sub)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

// fakeStorage reports the configured byte counts then ends with err.
type fakeStorage struct {
	steps   []int64
	total   int64
	err     error
	uploads []string
	deletes []string
}

func (f *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) *storage.Transfer {
	f.uploads = append(f.uploads, key)
	return storage.Start(ctx, f.total, func(ctx context.Context, report storage.ReportFunc) (storage.Result, error) {
		for _, n := range f.steps {
			report(n)
		}
		if f.err != nil {
			return storage.Result{}, f.err
		}
		return storage.Result{Key: key, Locator: "https://cdn.test/" + key}, nil
	})
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.deletes = append(f.deletes, key)
	return nil
}

type recordingNotifier struct {
	subs []*models.Submission
	err  error
}

func (r *recordingNotifier) SubmissionCreated(_ context.Context, sub *models.Submission) error {
	r.subs = append(r.subs, sub)
	return r.err
}

var (
	testSession = models.Session{ID: "s1", UserID: "u1", Email: "dj@mix.test", DisplayName: "DJ", ExpiresAt: time.Now().Add(time.Hour)}
	fixedNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type harness struct {
	store    *mockStore
	storage  *fakeStorage
	notifier *recordingNotifier
	hub      *identity.Hub
	states   []State
	progress []float64
	orphans  []string
}

func newHarness(t *testing.T) (*harness, *Intake) {
	t.Helper()
	h := &harness{
		store:    &mockStore{},
		storage:  &fakeStorage{steps: []int64{3, 7, 10}, total: 10},
		notifier: &recordingNotifier{},
		hub:      identity.NewHub(),
	}
	in := NewIntake(testSession, Deps{
		Store:    h.store,
		Storage:  h.storage,
		Notifier: h.notifier,
		Sessions: h.hub,
	},
		WithClock(func() time.Time { return fixedNow }),
		WithProgress(func(f float64) { h.progress = append(h.progress, f) }),
		WithStateListener(func(_, to State) { h.states = append(h.states, to) }),
		WithOrphanHandler(func(_ context.Context, key string) { h.orphans = append(h.orphans, key) }),
	)
	t.Cleanup(in.Close)
	return h, in
}

func awaiting(t *testing.T, h *harness, in *Intake) {
	t.Helper()
	h.store.On("FindByOwner", mock.Anything, "u1").Return([]models.Submission(nil), nil).Once()
	st, err := in.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateAwaitingInput, st)
}

func audioFile(size int64) *File {
	return &File{Name: "mix.wav", ContentType: "audio/wav", Size: size, Body: strings.NewReader("0123456789")}
}

func TestCheckExistingSubmission(t *testing.T) {
	h, in := newHarness(t)
	existing := models.Submission{ID: "9", OwnerID: "u1", TrackName: "Old"}
	h.store.On("FindByOwner", mock.Anything, "u1").Return([]models.Submission{existing}, nil)

	st, err := in.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAlreadySubmitted, st)
	assert.Equal(t, "Old", in.Existing().TrackName)

	_, err = in.Submit(context.Background(), SubmitInput{SourceKind: models.SourceExternalURL, URL: "https://x", TrackName: "New"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	h.store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	assert.Empty(t, h.storage.uploads)
}

func TestCheckFailureFailsOpen(t *testing.T) {
	h, in := newHarness(t)
	h.store.On("FindByOwner", mock.Anything, "u1").Return(nil, errors.New("connection refused"))

	st, err := in.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingInput, st)
}

func TestSubmitBeforeCheck(t *testing.T) {
	_, in := newHarness(t)
	_, err := in.Submit(context.Background(), SubmitInput{SourceKind: models.SourceExternalURL, URL: "https://x", TrackName: "T"})
	assert.ErrorIs(t, err, ErrNotAwaitingInput)
}

func TestValidationFailuresTouchNoBackend(t *testing.T) {
	cases := []struct {
		name  string
		input SubmitInput
		kind  ValidationKind
	}{
		{"non audio", SubmitInput{SourceKind: models.SourceFileUpload, TrackName: "T", File: &File{Name: "a.pdf", ContentType: "application/pdf", Size: 10}}, WrongMediaType},
		{"too large", SubmitInput{SourceKind: models.SourceFileUpload, TrackName: "T", File: audioFile(MaxFileBytes + 1)}, FileTooLarge},
		{"no file", SubmitInput{SourceKind: models.SourceFileUpload, TrackName: "T"}, MissingFile},
		{"blank track", SubmitInput{SourceKind: models.SourceExternalURL, TrackName: "   ", URL: "https://x"}, MissingTrackName},
		{"blank url", SubmitInput{SourceKind: models.SourceExternalURL, TrackName: "T", URL: " "}, MissingURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, in := newHarness(t)
			awaiting(t, h, in)

			_, err := in.Submit(context.Background(), tc.input)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.kind, verr.Kind)
			assert.Equal(t, StateAwaitingInput, in.State())
			assert.Equal(t, verr.Error(), in.Err())
			assert.Empty(t, h.storage.uploads)
			h.store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitFileUpload(t *testing.T) {
	h, in := newHarness(t)
	awaiting(t, h, in)
	stored := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)
	h.store.On("Insert", mock.Anything, mock.AnythingOfType("*models.Submission")).Return("42", stored, nil).Once()

	sub, err := in.Submit(context.Background(), SubmitInput{
		SourceKind: models.SourceFileUpload,
		File:       audioFile(MaxFileBytes),
		TrackName:  "  Night Drive ",
		Message:    "more bass",
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{0.3, 0.7, 1.0}, h.progress)
	assert.Equal(t, []State{StateAwaitingInput, StateUploadingAsset, StatePersistingRecord, StateSubmitted}, h.states)
	assert.Equal(t, StateSubmitted, in.State())
	assert.Empty(t, in.Err())

	key := "submissions/u1/" + "1772366400000" + "_mix.wav"
	assert.Equal(t, []string{key}, h.storage.uploads)
	assert.Equal(t, "42", sub.ID)
	assert.Equal(t, "Night Drive", sub.TrackName)
	assert.Equal(t, "https://cdn.test/"+key, sub.AssetLocator)
	assert.Equal(t, "mix.wav", sub.AssetName)
	assert.Equal(t, MaxFileBytes, sub.AssetByteSize)
	assert.Equal(t, models.StatusPending, sub.Status)
	assert.Equal(t, stored, sub.CreatedAt)
	assert.Same(t, sub, in.Existing())
	require.Len(t, h.notifier.subs, 1)
	h.store.AssertNumberOfCalls(t, "Insert", 1)
}

func TestSubmitExternalURL(t *testing.T) {
	h, in := newHarness(t)
	awaiting(t, h, in)
	h.store.On("Insert", mock.Anything, mock.MatchedBy(func(s *models.Submission) bool {
		return s.AssetLocator == "https://soundcloud.test/track" &&
			s.AssetName == models.ExternalAssetName &&
			s.AssetByteSize == 0 &&
			s.SourceKind == models.SourceExternalURL
	})).Return("7", time.Time{}, nil).Once()

	sub, err := in.Submit(context.Background(), SubmitInput{
		SourceKind: models.SourceExternalURL,
		URL:        " https://soundcloud.test/track ",
		TrackName:  "Loop",
	})
	require.NoError(t, err)
	assert.Empty(t, h.storage.uploads)
	assert.Empty(t, h.progress)
	assert.Equal(t, []State{StateAwaitingInput, StatePersistingRecord, StateSubmitted}, h.states)
	assert.Equal(t, fixedNow, sub.CreatedAt)
	h.store.AssertExpectations(t)
}

func TestUploadFailureReturnsToAwaitingInput(t *testing.T) {
	h, in := newHarness(t)
	awaiting(t, h, in)
	h.storage.steps = []int64{3}
	h.storage.err = errors.New("bucket gone")

	_, err := in.Submit(context.Background(), SubmitInput{SourceKind: models.SourceFileUpload, File: audioFile(10), TrackName: "T"})
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StateAwaitingInput, in.State())
	assert.Equal(t, TransportMessage, in.Err())
	assert.Empty(t, h.orphans)
	h.store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestInsertFailureAfterUpload(t *testing.T) {
	h, in := newHarness(t)
	awaiting(t, h, in)
	h.store.On("Insert", mock.Anything, mock.Anything).Return("", time.Time{}, errors.New("write timeout")).Once()

	_, err := in.Submit(context.Background(), SubmitInput{SourceKind: models.SourceFileUpload, File: audioFile(10), TrackName: "T"})
	require.Error(t, err)
	assert.Equal(t, StateAwaitingInput, in.State())
	assert.NotEmpty(t, in.Err())
	assert.Len(t, h.storage.uploads, 1)
	assert.Equal(t, h.storage.uploads, h.orphans)
	assert.Empty(t, h.notifier.subs)
	h.store.AssertNumberOfCalls(t, "Insert", 1)

	// A second attempt is a fresh submission.
	h.store.On("Insert", mock.Anything, mock.Anything).Return("8", time.Time{}, nil).Once()
	_, err = in.Submit(context.Background(), SubmitInput{SourceKind: models.SourceFileUpload, File: audioFile(10), TrackName: "T"})
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, in.State())
}

func TestDuplicateInsertIsAlreadySubmitted(t *testing.T) {
	h, in := newHarness(t)
	awaiting(t, h, in)
	h.store.On("Insert", mock.Anything, mock.Anything).Return("", time.Time{}, repository.ErrDuplicate).Once()

	_, err := in.Submit(context.Background(), SubmitInput{SourceKind: models.SourceExternalURL, URL: "https://x", TrackName: "T"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, StateAlreadySubmitted, in.State())
}

func TestNotifierFailureKeepsSubmission(t *testing.T) {
	h, in := newHarness(t)
	awaiting(t, h, in)
	h.notifier.err = errors.New("broker down")
	h.store.On("Insert", mock.Anything, mock.Anything).Return("1", time.Time{}, nil).Once()

	_, err := in.Submit(context.Background(), SubmitInput{SourceKind: models.SourceExternalURL, URL: "https://x", TrackName: "T"})
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, in.State())
}

func TestRevokedSessionBlocksSubmit(t *testing.T) {
	h, in := newHarness(t)
	awaiting(t, h, in)
	revoked := testSession
	revoked.Revoked = true
	h.hub.Publish(revoked)

	_, err := in.Submit(context.Background(), SubmitInput{SourceKind: models.SourceExternalURL, URL: "https://x", TrackName: "T"})
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Equal(t, StateAwaitingInput, in.State())
	h.store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestAssetKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "submissions/u1/1700000000123_a_b.wav", AssetKey("u1", at, "a/b.wav"))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, TransportMessage, UserMessage(&TransportError{Op: "x", Err: io.EOF}))
	assert.Equal(t, "Please enter a URL", UserMessage(&ValidationError{Kind: MissingURL}))
}

func TestFactoryAppliesOptionsInOrder(t *testing.T) {
	store := &mockStore{}
	store.On("FindByOwner", mock.Anything, "u1").Return([]models.Submission(nil), nil)
	var seen []string
	f := NewFactory(Deps{Store: store},
		WithStateListener(func(_, to State) { seen = append(seen, "factory:"+string(to)) }))

	in := f.New(testSession, WithStateListener(func(_, to State) { seen = append(seen, "call:"+string(to)) }))
	defer in.Close()
	_, err := in.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"call:awaiting_input"}, seen)
	assert.Same(t, store, f.Store())
}

// gatedStorage holds every upload open until release is closed.
type gatedStorage struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) *storage.Transfer {
	return storage.Start(ctx, size, func(ctx context.Context, report storage.ReportFunc) (storage.Result, error) {
		close(g.started)
		<-g.release
		report(size)
		return storage.Result{Key: key, Locator: "https://cdn.test/" + key}, nil
	})
}

func (g *gatedStorage) Delete(context.Context, string) error { return nil }

func TestSubmitWhileUploadInFlight(t *testing.T) {
	store := &mockStore{}
	store.On("FindByOwner", mock.Anything, "u1").Return([]models.Submission(nil), nil).Once()
	store.On("Insert", mock.Anything, mock.Anything).Return("1", time.Time{}, nil).Once()
	gate := &gatedStorage{started: make(chan struct{}), release: make(chan struct{})}
	in := NewIntake(testSession, Deps{Store: store, Storage: gate})
	defer in.Close()

	_, err := in.Check(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := in.Submit(context.Background(), SubmitInput{SourceKind: models.SourceFileUpload, File: audioFile(10), TrackName: "First"})
		done <- err
	}()
	<-gate.started
	assert.Equal(t, StateUploadingAsset, in.State())

	_, err = in.Submit(context.Background(), SubmitInput{SourceKind: models.SourceExternalURL, URL: "https://x", TrackName: "Second"})
	assert.ErrorIs(t, err, ErrNotAwaitingInput)

	close(gate.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateSubmitted, in.State())
	store.AssertNumberOfCalls(t, "Insert", 1)
}
