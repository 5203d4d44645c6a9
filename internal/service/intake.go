// Package service holds the submission intake workflow.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/events"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/identity"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/repository"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/storage"
	"go.uber.org/zap"
)

// State is a step of the intake state machine.
type State string

const (
	StateChecking         State = "checking"
	StateAlreadySubmitted State = "already_submitted"
	StateAwaitingInput    State = "awaiting_input"
	StateUploadingAsset   State = "uploading_asset"
	StatePersistingRecord State = "persisting_record"
	StateSubmitted        State = "submitted"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateAlreadySubmitted || s == StateSubmitted
}

// SubmissionStore is the document store the workflow reads and appends to.
type SubmissionStore interface {
	FindByOwner(ctx context.Context, ownerID string) ([]models.Submission, error)
	Insert(ctx context.Context, sub *models.Submission) (string, time.Time, error)
}

type Deps struct {
	Store    SubmissionStore
	Storage  storage.Storage
	Notifier events.Notifier
	Sessions identity.Subscriber
	Log      *zap.Logger
}

type Option func(*Intake)

// WithProgress receives the upload's completed fraction after every
// storage progress event.
func WithProgress(fn func(fraction float64)) Option {
	return func(in *Intake) { in.onProgress = fn }
}

// WithStateListener is called after every transition.
func WithStateListener(fn func(from, to State)) Option {
	return func(in *Intake) { in.onState = fn }
}

// WithOrphanHandler is called with the storage key of a blob whose record
// write failed. The workflow itself never deletes blobs.
func WithOrphanHandler(fn func(ctx context.Context, key string)) Option {
	return func(in *Intake) { in.onOrphan = fn }
}

func WithClock(now func() time.Time) Option {
	return func(in *Intake) { in.now = now }
}

// Intake drives one session through check, validation, upload and record
// creation. Transitions are serialized; Submit may run once at a time.
type Intake struct {
	deps    Deps
	session models.Session

	onProgress func(float64)
	onState    func(from, to State)
	onOrphan   func(ctx context.Context, key string)
	now        func() time.Time

	sessionEvents <-chan models.Session
	unsubscribe   func()

	mu       sync.Mutex
	state    State
	errMsg   string
	existing *models.Submission
}

func NewIntake(session models.Session, deps Deps, opts ...Option) *Intake {
	if deps.Notifier == nil {
		deps.Notifier = events.Nop{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	in := &Intake{
		deps:        deps,
		session:     session,
		onProgress:  func(float64) {},
		onState:     func(State, State) {},
		onOrphan:    func(context.Context, string) {},
		now:         time.Now,
		unsubscribe: func() {},
		state:       StateChecking,
	}
	for _, opt := range opts {
		opt(in)
	}
	if deps.Sessions != nil {
		in.sessionEvents, in.unsubscribe = deps.Sessions.Subscribe(session.UserID)
	}
	return in
}

// Close releases the session subscription.
func (in *Intake) Close() { in.unsubscribe() }

func (in *Intake) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// Err is the user-visible message of the last failure, or "".
func (in *Intake) Err() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.errMsg
}

// Existing is the owner's stored submission once the state is
// AlreadySubmitted or Submitted.
func (in *Intake) Existing() *models.Submission {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.existing
}

// Check looks for an existing submission by the session owner. A store
// failure fails open to AwaitingInput; the unique ownerId index still
// blocks a duplicate write later.
func (in *Intake) Check(ctx context.Context) (State, error) {
	if st := in.State(); st != StateChecking {
		return st, nil
	}
	subs, err := in.deps.Store.FindByOwner(ctx, in.session.UserID)
	if err != nil {
		in.deps.Log.Warn("existing submission check failed", zap.String("ownerId", in.session.UserID), zap.Error(err))
		in.transition(StateChecking, StateAwaitingInput)
		return StateAwaitingInput, nil
	}
	if len(subs) > 0 {
		in.mu.Lock()
		in.existing = &subs[0]
		in.mu.Unlock()
		in.transition(StateChecking, StateAlreadySubmitted)
		return StateAlreadySubmitted, nil
	}
	in.transition(StateChecking, StateAwaitingInput)
	return StateAwaitingInput, nil
}

// Submit validates input, uploads the file when there is one and writes the
// submission record. Failures after validation return the workflow to
// AwaitingInput; nothing is retried.
func (in *Intake) Submit(ctx context.Context, input SubmitInput) (*models.Submission, error) {
	in.mu.Lock()
	switch in.state {
	case StateAwaitingInput:
	case StateAlreadySubmitted:
		in.mu.Unlock()
		return nil, ErrAlreadySubmitted
	default:
		in.mu.Unlock()
		return nil, ErrNotAwaitingInput
	}
	if err := ValidateInput(input); err != nil {
		in.errMsg = err.Error()
		in.mu.Unlock()
		in.deps.Log.Debug("submission rejected", zap.String("ownerId", in.session.UserID), zap.Error(err))
		return nil, err
	}
	if in.sessionEnded() {
		in.errMsg = UserMessage(ErrSessionEnded)
		in.mu.Unlock()
		return nil, ErrSessionEnded
	}
	in.errMsg = ""
	next := StatePersistingRecord
	if input.SourceKind == models.SourceFileUpload {
		next = StateUploadingAsset
	}
	// Leave AwaitingInput before unlocking so a concurrent Submit is refused.
	in.state = next
	in.mu.Unlock()
	in.onState(StateAwaitingInput, next)

	submittedAt := in.now()
	sub := &models.Submission{
		OwnerID:          in.session.UserID,
		OwnerEmail:       in.session.Email,
		OwnerDisplayName: in.session.DisplayName,
		TrackName:        strings.TrimSpace(input.TrackName),
		Message:          strings.TrimSpace(input.Message),
		SourceKind:       input.SourceKind,
		Status:           models.StatusPending,
	}

	var blobKey string
	if input.SourceKind == models.SourceFileUpload {
		blobKey = AssetKey(in.session.UserID, submittedAt, input.File.Name)
		res, err := in.upload(ctx, blobKey, input.File)
		if err != nil {
			return nil, in.fail(StateUploadingAsset, &TransportError{Op: "upload asset", Err: err})
		}
		sub.AssetLocator = res.Locator
		sub.AssetName = input.File.Name
		sub.AssetByteSize = input.File.Size
		in.transition(StateUploadingAsset, StatePersistingRecord)
	} else {
		sub.AssetLocator = strings.TrimSpace(input.URL)
		sub.AssetName = models.ExternalAssetName
		sub.AssetByteSize = 0
	}

	if in.sessionEnded() {
		in.orphan(ctx, blobKey)
		return nil, in.fail(StatePersistingRecord, ErrSessionEnded)
	}

	id, createdAt, err := in.deps.Store.Insert(ctx, sub)
	if errors.Is(err, repository.ErrDuplicate) {
		in.orphan(ctx, blobKey)
		in.mu.Lock()
		in.errMsg = UserMessage(ErrAlreadySubmitted)
		in.mu.Unlock()
		in.transition(StatePersistingRecord, StateAlreadySubmitted)
		return nil, ErrAlreadySubmitted
	}
	if err != nil {
		in.orphan(ctx, blobKey)
		return nil, in.fail(StatePersistingRecord, &TransportError{Op: "write submission", Err: err})
	}

	sub.ID = id
	// Placeholder until the store's timestamp is known.
	sub.CreatedAt = submittedAt.UTC()
	if !createdAt.IsZero() {
		sub.CreatedAt = createdAt
	}

	in.mu.Lock()
	in.existing = sub
	in.mu.Unlock()
	in.transition(StatePersistingRecord, StateSubmitted)
	in.deps.Log.Info("submission created",
		zap.String("ownerId", sub.OwnerID),
		zap.String("submissionId", sub.ID),
		zap.String("sourceKind", string(sub.SourceKind)))

	if err := in.deps.Notifier.SubmissionCreated(ctx, sub); err != nil {
		in.deps.Log.Warn("submission notification failed", zap.String("submissionId", sub.ID), zap.Error(err))
	}
	return sub, nil
}

func (in *Intake) upload(ctx context.Context, key string, f *File) (storage.Result, error) {
	tr := in.deps.Storage.Upload(ctx, key, f.Body, f.Size, f.ContentType)
	for p := range tr.Events() {
		in.onProgress(p.Fraction())
	}
	return tr.Wait()
}

func (in *Intake) fail(from State, err error) error {
	in.mu.Lock()
	in.errMsg = UserMessage(err)
	in.mu.Unlock()
	in.deps.Log.Warn("submission failed", zap.String("ownerId", in.session.UserID), zap.String("state", string(from)), zap.Error(err))
	in.transition(from, StateAwaitingInput)
	return err
}

func (in *Intake) orphan(ctx context.Context, key string) {
	if key == "" {
		return
	}
	in.deps.Log.Warn("asset stored without a submission record", zap.String("ownerId", in.session.UserID), zap.String("key", key))
	in.onOrphan(ctx, key)
}

// sessionEnded drains pending session events and reports whether the
// session has been revoked. Callers need not hold mu.
func (in *Intake) sessionEnded() bool {
	for {
		select {
		case s, ok := <-in.sessionEvents:
			if !ok {
				return false
			}
			if s.ID == in.session.ID && s.Revoked {
				in.session.Revoked = true
			}
		default:
			return in.session.Revoked
		}
	}
}

func (in *Intake) transition(from, to State) {
	in.mu.Lock()
	in.state = to
	in.mu.Unlock()
	in.onState(from, to)
}

// AssetKey is the storage key of an upload: the owner's prefix, the submit
// time in unix milliseconds and the original file name.
func AssetKey(ownerID string, at time.Time, fileName string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(fileName)
	return fmt.Sprintf("submissions/%s/%d_%s", ownerID, at.UnixMilli(), name)
}

// Factory builds one Intake per request from shared dependencies.
type Factory struct {
	deps Deps
	opts []Option
}

func NewFactory(deps Deps, opts ...Option) *Factory {
	return &Factory{deps: deps, opts: opts}
}

// New returns an Intake for session. Per-call options are applied after the
// factory's own.
func (f *Factory) New(session models.Session, opts ...Option) *Intake {
	all := make([]Option, 0, len(f.opts)+len(opts))
	all = append(all, f.opts...)
	all = append(all, opts...)
	return NewIntake(session, f.deps, all...)
}

// Store is the submission store the factory's workflows write to.
func (f *Factory) Store() SubmissionStore { return f.deps.Store }
