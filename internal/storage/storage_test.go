package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/oxidb/oxidbtest"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProgressFraction(t *testing.T) {
	assert.Equal(t, 0.5, Progress{BytesTransferred: 5, TotalBytes: 10}.Fraction())
	assert.Equal(t, 1.0, Progress{BytesTransferred: 12, TotalBytes: 10}.Fraction())
	assert.Equal(t, 0.0, Progress{BytesTransferred: 5}.Fraction())
}

func TestTransferEventsThenResult(t *testing.T) {
	tr := Start(context.Background(), 10, func(ctx context.Context, report ReportFunc) (Result, error) {
		report(3)
		report(7)
		report(10)
		return Result{Key: "k", Locator: "https://cdn/k"}, nil
	})

	var got []float64
	for p := range tr.Events() {
		got = append(got, p.Fraction())
	}
	assert.Equal(t, []float64{0.3, 0.7, 1.0}, got)

	res, err := tr.Wait()
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/k", res.Locator)
}

func TestTransferWaitDrainsUnreadEvents(t *testing.T) {
	tr := Start(context.Background(), 2, func(ctx context.Context, report ReportFunc) (Result, error) {
		report(1)
		report(2)
		return Result{Key: "k"}, nil
	})
	res, err := tr.Wait()
	require.NoError(t, err)
	assert.Equal(t, "k", res.Key)
}

func TestTransferCancel(t *testing.T) {
	started := make(chan struct{})
	tr := Start(context.Background(), 1, func(ctx context.Context, report ReportFunc) (Result, error) {
		close(started)
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
	<-started
	tr.Cancel()
	_, err := tr.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFailedTransfer(t *testing.T) {
	boom := errors.New("boom")
	tr := Failed(boom)
	_, open := <-tr.Events()
	assert.False(t, open)
	_, err := tr.Wait()
	assert.ErrorIs(t, err, boom)
}

func TestOxiDBStorageUploadAndOpen(t *testing.T) {
	ctx := context.Background()
	srv := oxidbtest.New(t)
	st := NewOxiDBStorage(srv, "https://mix.test/")
	require.NoError(t, st.EnsureBucket(ctx))

	payload := bytes.Repeat([]byte("a"), chunkSize*2+10)
	tr := st.Upload(ctx, "submissions/u1/1700_my song.mp3", bytes.NewReader(payload), int64(len(payload)), "audio/mpeg")

	var last Progress
	events := 0
	for p := range tr.Events() {
		events++
		last = p
	}
	res, err := tr.Wait()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, events, 3)
	assert.Equal(t, int64(len(payload)), last.BytesTransferred)
	assert.True(t, strings.HasPrefix(res.Locator, "https://mix.test/files/submissions/u1/1700_my%20song.mp3?token="))

	stored, ok := srv.Object(Bucket, "submissions/u1/1700_my song.mp3")
	require.True(t, ok)
	assert.Equal(t, payload, stored)

	token := res.Locator[strings.Index(res.Locator, "token=")+len("token="):]
	data, ct, err := st.Open(ctx, "submissions/u1/1700_my song.mp3", token)
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", ct)
	assert.Len(t, data, len(payload))

	_, _, err = st.Open(ctx, "submissions/u1/1700_my song.mp3", "wrong")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Delete(ctx, "submissions/u1/1700_my song.mp3"))
	_, _, err = st.Open(ctx, "submissions/u1/1700_my song.mp3", token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOxiDBStoragePutFailure(t *testing.T) {
	srv := oxidbtest.New(t)
	st := NewOxiDBStorage(srv, "https://mix.test")
	srv.FailNext("put_object", "disk full")

	_, err := st.Upload(context.Background(), "k", strings.NewReader("x"), 1, "audio/wav").Wait()
	assert.ErrorContains(t, err, "disk full")
}

type mockUploader struct{ mock.Mock }

func (m *mockUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	// Drain the body like the real manager does so progress is reported.
	io.Copy(io.Discard, input.Body)
	args := m.Called(aws.ToString(input.Bucket), aws.ToString(input.Key), aws.ToString(input.ContentType))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*manager.UploadOutput), args.Error(1)
}

type mockDeleter struct{ mock.Mock }

func (m *mockDeleter) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(aws.ToString(params.Bucket), aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func TestS3StorageUpload(t *testing.T) {
	up := &mockUploader{}
	up.On("Upload", "tracks", "submissions/u1/1_a.wav", "audio/wav").
		Return(&manager.UploadOutput{Location: "https://tracks.s3.amazonaws.com/submissions/u1/1_a.wav"}, nil)
	st := newS3Storage("tracks", "", up, &mockDeleter{})

	tr := st.Upload(context.Background(), "submissions/u1/1_a.wav", strings.NewReader("riff"), 4, "audio/wav")
	var last Progress
	for p := range tr.Events() {
		last = p
	}
	res, err := tr.Wait()
	require.NoError(t, err)
	assert.Equal(t, "https://tracks.s3.amazonaws.com/submissions/u1/1_a.wav", res.Locator)
	assert.Equal(t, 1.0, last.Fraction())
	up.AssertExpectations(t)
}

func TestS3StoragePublicBaseURL(t *testing.T) {
	up := &mockUploader{}
	up.On("Upload", "tracks", "k", "audio/wav").Return(&manager.UploadOutput{Location: "ignored"}, nil)
	st := newS3Storage("tracks", "https://cdn.mix.test/", up, &mockDeleter{})

	res, err := st.Upload(context.Background(), "k", strings.NewReader("x"), 1, "audio/wav").Wait()
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.mix.test/k", res.Locator)
}

func TestS3StorageUploadError(t *testing.T) {
	up := &mockUploader{}
	up.On("Upload", "tracks", "k", "audio/wav").Return(nil, errors.New("access denied"))
	st := newS3Storage("tracks", "", up, &mockDeleter{})

	_, err := st.Upload(context.Background(), "k", strings.NewReader("x"), 1, "audio/wav").Wait()
	assert.ErrorContains(t, err, "access denied")
}

func TestS3StorageDelete(t *testing.T) {
	del := &mockDeleter{}
	del.On("DeleteObject", "tracks", "k").Return(nil)
	st := newS3Storage("tracks", "", &mockUploader{}, del)

	require.NoError(t, st.Delete(context.Background(), "k"))
	del.AssertExpectations(t)
}
