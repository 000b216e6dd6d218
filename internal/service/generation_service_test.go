package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/example/genimage/internal/config"
	"github.com/example/genimage/internal/models"
	"github.com/example/genimage/internal/quota"
	"github.com/example/genimage/internal/service"
)

type fakeRequestStore struct {
	nextID    int64
	created   []*models.GenerationRequest
	completed map[int64]string
	failed    map[int64]string
	createErr error
	markErr   error
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{
		completed: map[int64]string{},
		failed:    map[int64]string{},
	}
}

func (f *fakeRequestStore) Create(ctx context.Context, req *models.GenerationRequest) (*models.GenerationRequest, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	req.ID = f.nextID
	f.created = append(f.created, req)
	return req, nil
}

func (f *fakeRequestStore) MarkCompleted(ctx context.Context, id int64, outputRef string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.completed[id] = outputRef
	return nil
}

func (f *fakeRequestStore) MarkFailed(ctx context.Context, id int64, detail string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.failed[id] = detail
	return nil
}

type fakeBlobStore struct {
	uploads   []string
	deletes   []string
	uploadErr error
}

func (f *fakeBlobStore) Upload(ctx context.Context, data []byte, contentType, prefix string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	ref := fmt.Sprintf("https://cdn.test/%s/blob-%d", prefix, len(f.uploads))
	f.uploads = append(f.uploads, ref)
	return ref, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, ref string) (bool, error) {
	f.deletes = append(f.deletes, ref)
	return true, nil
}

type fakeGenerator struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeGenerator) GenerateFromText(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error) {
	return f.resp, f.err
}

func (f *fakeGenerator) GenerateFromImage(ctx context.Context, image []byte, mimeType, prompt string) (*genai.GenerateContentResponse, error) {
	return f.resp, f.err
}

func (f *fakeGenerator) GenerateFromTextAndImage(ctx context.Context, image []byte, mimeType, prompt string) (*genai.GenerateContentResponse, error) {
	return f.resp, f.err
}

type guardFunc func() error

func (g guardFunc) Check(ctx context.Context, userID int64) error { return g() }
func (g guardFunc) CheckAndConsume(ctx context.Context) error     { return g() }

func allow() guardFunc { return func() error { return nil } }

func imageResponse(size int) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: bytes.Repeat([]byte{0x5A}, size)}},
			}},
		}},
	}
}

func testConfig() config.Config {
	return config.Config{
		MinImageBytes:  750,
		S3OutputPrefix: "generated",
		S3UploadPrefix: "uploads",
	}
}

func newService(requests *fakeRequestStore, user, global guardFunc, gen *fakeGenerator, blobs *fakeBlobStore) *service.GenerationService {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewGenerationService(testConfig(), log, requests, user, global, gen, blobs)
}

func TestSubmit_TextToImageCompletes(t *testing.T) {
	requests := newFakeRequestStore()
	blobs := &fakeBlobStore{}
	gen := &fakeGenerator{resp: imageResponse(50000)}
	svc := newService(requests, allow(), allow(), gen, blobs)

	result, err := svc.Submit(context.Background(), 7, service.SubmitInput{
		Mode:   models.ModeTextToImage,
		Prompt: "a red fox",
	})
	require.NoError(t, err)

	require.Len(t, requests.created, 1)
	created := requests.created[0]
	assert.Equal(t, int64(7), created.UserID)
	assert.Equal(t, models.ModeTextToImage, created.Mode)
	assert.Equal(t, "a red fox", created.InputText)
	assert.False(t, created.CreatedAt.IsZero())

	assert.Equal(t, created.ID, result.RequestID)
	assert.Equal(t, result.OutputImageRef, requests.completed[created.ID])
	assert.Contains(t, result.OutputImageRef, "generated/")
	assert.Empty(t, requests.failed)
	assert.Empty(t, blobs.deletes, "no transient input to clean up")
}

func TestSubmit_ImageToImageGeneratorFailure(t *testing.T) {
	requests := newFakeRequestStore()
	blobs := &fakeBlobStore{}
	gen := &fakeGenerator{err: errors.New("network error: connection reset")}
	svc := newService(requests, allow(), allow(), gen, blobs)

	_, err := svc.Submit(context.Background(), 7, service.SubmitInput{
		Mode:      models.ModeImageToImage,
		ImageData: bytes.Repeat([]byte{0x11}, 2048),
		ImageMIME: "image/jpeg",
	})

	var genErr *service.GenerationError
	require.ErrorAs(t, err, &genErr)
	require.Len(t, requests.created, 1)
	assert.Equal(t, requests.created[0].ID, genErr.RequestID)
	assert.Contains(t, requests.failed[genErr.RequestID], "network error")

	// The transient source image is deleted regardless of outcome.
	require.Len(t, blobs.uploads, 1)
	assert.Equal(t, blobs.uploads, blobs.deletes)
}

func TestSubmit_TransientInputDeletedOnSuccess(t *testing.T) {
	requests := newFakeRequestStore()
	blobs := &fakeBlobStore{}
	gen := &fakeGenerator{resp: imageResponse(4000)}
	svc := newService(requests, allow(), allow(), gen, blobs)

	result, err := svc.Submit(context.Background(), 3, service.SubmitInput{
		Mode:      models.ModeTextAndImageToImage,
		Prompt:    "make it night time",
		ImageData: bytes.Repeat([]byte{0x22}, 2048),
		ImageMIME: "image/png",
	})
	require.NoError(t, err)

	require.Len(t, blobs.uploads, 2, "one transient input, one output")
	require.Len(t, blobs.deletes, 1)
	assert.Contains(t, blobs.deletes[0], "uploads/")
	assert.Equal(t, requests.created[0].InputImageRef, blobs.deletes[0])
	assert.NotEqual(t, result.OutputImageRef, blobs.deletes[0])
}

func TestSubmit_QuotaRejectionPrecedesRecordCreation(t *testing.T) {
	requests := newFakeRequestStore()
	blobs := &fakeBlobStore{}
	deny := guardFunc(func() error {
		return &quota.LimitError{Scope: quota.ScopeBackend, Window: quota.WindowMinute, Limit: 25}
	})
	svc := newService(requests, allow(), deny, &fakeGenerator{resp: imageResponse(4000)}, blobs)

	_, err := svc.Submit(context.Background(), 7, service.SubmitInput{
		Mode:   models.ModeTextToImage,
		Prompt: "a red fox",
	})

	var limitErr *quota.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Empty(t, requests.created)
	assert.Empty(t, blobs.uploads)
}

func TestSubmit_ValidationRejectsBeforeGuards(t *testing.T) {
	requests := newFakeRequestStore()
	tripped := guardFunc(func() error {
		t.Fatal("guard must not run for invalid input")
		return nil
	})
	svc := newService(requests, tripped, tripped, &fakeGenerator{}, &fakeBlobStore{})

	_, err := svc.Submit(context.Background(), 1, service.SubmitInput{
		Mode:   models.ModeTextToImage,
		Prompt: "   ",
	})
	assert.ErrorIs(t, err, service.ErrEmptyPrompt)

	_, err = svc.Submit(context.Background(), 1, service.SubmitInput{
		Mode:      models.ModeImageToImage,
		ImageData: []byte{0x01},
		ImageMIME: "application/pdf",
	})
	assert.ErrorIs(t, err, service.ErrUnsupportedImageType)

	_, err = svc.Submit(context.Background(), 1, service.SubmitInput{
		Mode: models.ModeImageToImage,
	})
	assert.ErrorIs(t, err, service.ErrMissingImage)

	_, err = svc.Submit(context.Background(), 1, service.SubmitInput{Mode: "sculpture"})
	assert.ErrorIs(t, err, service.ErrUnsupportedMode)

	assert.Empty(t, requests.created)
}

func TestSubmit_NoImageInResponseFailsRecord(t *testing.T) {
	requests := newFakeRequestStore()
	refusal := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "I cannot do that"}}},
		}},
	}
	svc := newService(requests, allow(), allow(), &fakeGenerator{resp: refusal}, &fakeBlobStore{})

	_, err := svc.Submit(context.Background(), 7, service.SubmitInput{
		Mode:   models.ModeTextToImage,
		Prompt: "a red fox",
	})

	var genErr *service.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Contains(t, requests.failed[genErr.RequestID], "no image in response")
}

func TestSubmit_UndersizedPayloadFailsRecord(t *testing.T) {
	requests := newFakeRequestStore()
	svc := newService(requests, allow(), allow(), &fakeGenerator{resp: imageResponse(10)}, &fakeBlobStore{})

	_, err := svc.Submit(context.Background(), 7, service.SubmitInput{
		Mode:   models.ModeTextToImage,
		Prompt: "a red fox",
	})

	var genErr *service.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Contains(t, requests.failed[genErr.RequestID], "payload too small")
}

func TestSubmit_FinalizeStorageErrorIsSurfaced(t *testing.T) {
	requests := newFakeRequestStore()
	requests.markErr = errors.New("mysql is down")
	svc := newService(requests, allow(), allow(), &fakeGenerator{err: errors.New("boom")}, &fakeBlobStore{})

	_, err := svc.Submit(context.Background(), 7, service.SubmitInput{
		Mode:   models.ModeTextToImage,
		Prompt: "a red fox",
	})

	require.Error(t, err)
	var genErr *service.GenerationError
	assert.False(t, errors.As(err, &genErr), "an unfinalized request must not report a tracked failure")
	assert.Contains(t, err.Error(), "finalize request")
}

func TestSubmit_OutputUploadFailureFailsRecord(t *testing.T) {
	requests := newFakeRequestStore()
	blobs := &fakeBlobStore{uploadErr: errors.New("bucket unavailable")}
	svc := newService(requests, allow(), allow(), &fakeGenerator{resp: imageResponse(4000)}, blobs)

	_, err := svc.Submit(context.Background(), 7, service.SubmitInput{
		Mode:   models.ModeTextToImage,
		Prompt: "a red fox",
	})

	var genErr *service.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Contains(t, requests.failed[genErr.RequestID], "store generated image")
}
