package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/example/genimage/internal/config"
	"github.com/example/genimage/internal/gemini"
	"github.com/example/genimage/internal/models"
)

var (
	ErrEmptyPrompt          = errors.New("prompt cannot be empty")
	ErrMissingImage         = errors.New("input image is required")
	ErrUnsupportedImageType = errors.New("unsupported image type, only JPEG, PNG, GIF and WebP are accepted")
	ErrUnsupportedMode      = errors.New("unsupported generation mode")
)

// GenerationError reports a failure that occurred after a request record was
// created. The failure is already written into the record; RequestID lets
// the caller reconcile the outcome with it.
type GenerationError struct {
	RequestID int64
	Reason    string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation request %d failed: %s", e.RequestID, e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator invokes the external image model and returns its raw response
// envelope.
type Generator interface {
	GenerateFromText(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error)
	GenerateFromImage(ctx context.Context, image []byte, mimeType, prompt string) (*genai.GenerateContentResponse, error)
	GenerateFromTextAndImage(ctx context.Context, image []byte, mimeType, prompt string) (*genai.GenerateContentResponse, error)
}

// BlobStore persists image bytes and returns an opaque reference.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, contentType, prefix string) (string, error)
	Delete(ctx context.Context, ref string) (bool, error)
}

// RequestStore records the request lifecycle: one pending insert at
// admission, one terminal update at completion or failure.
type RequestStore interface {
	Create(ctx context.Context, req *models.GenerationRequest) (*models.GenerationRequest, error)
	MarkCompleted(ctx context.Context, id int64, outputRef string) error
	MarkFailed(ctx context.Context, id int64, detail string) error
}

// UserAdmission gates one user's request against their quota windows.
type UserAdmission interface {
	Check(ctx context.Context, userID int64) error
}

// GlobalAdmission gates a request against the backend-wide counter,
// consuming a slot on admission.
type GlobalAdmission interface {
	CheckAndConsume(ctx context.Context) error
}

type GenerationService struct {
	cfg         config.Config
	log         *slog.Logger
	requests    RequestStore
	userGuard   UserAdmission
	globalGuard GlobalAdmission
	generator   Generator
	blobs       BlobStore
	normalizer  *gemini.Normalizer
	now         func() time.Time
}

func NewGenerationService(cfg config.Config, log *slog.Logger, requests RequestStore, userGuard UserAdmission, globalGuard GlobalAdmission, generator Generator, blobs BlobStore) *GenerationService {
	return &GenerationService{
		cfg:         cfg,
		log:         log,
		requests:    requests,
		userGuard:   userGuard,
		globalGuard: globalGuard,
		generator:   generator,
		blobs:       blobs,
		normalizer:  gemini.NewNormalizer(cfg.MinImageBytes),
		now:         time.Now,
	}
}

type SubmitInput struct {
	Mode      models.RequestMode
	Prompt    string
	ImageData []byte
	ImageMIME string
}

type SubmitResult struct {
	RequestID      int64
	OutputImageRef string
}

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// Submit runs one generation call end to end: validation and both quota
// guards reject before any record exists; past admission the request is
// tracked pending and always reaches a terminal state before Submit
// returns, even when the generator fails. A transient input image is
// deleted after the terminal transition regardless of outcome.
func (s *GenerationService) Submit(ctx context.Context, userID int64, in SubmitInput) (*SubmitResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := s.userGuard.Check(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.globalGuard.CheckAndConsume(ctx); err != nil {
		return nil, err
	}

	var inputRef string
	if len(in.ImageData) > 0 {
		ref, err := s.blobs.Upload(ctx, in.ImageData, in.ImageMIME, s.cfg.S3UploadPrefix)
		if err != nil {
			return nil, fmt.Errorf("store input image: %w", err)
		}
		inputRef = ref
		defer func() {
			cleanupCtx := context.WithoutCancel(ctx)
			if _, err := s.blobs.Delete(cleanupCtx, inputRef); err != nil {
				s.log.Error("delete transient input image", "ref", inputRef, "err", err)
			}
		}()
	}

	record, err := s.requests.Create(ctx, &models.GenerationRequest{
		UserID:        userID,
		Mode:          in.Mode,
		InputText:     in.Prompt,
		InputImageRef: inputRef,
		Status:        models.StatusPending,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create request record: %w", err)
	}

	payload, genErr := s.generate(ctx, in)
	if genErr != nil {
		return nil, s.fail(ctx, record.ID, genErr)
	}

	outputRef, err := s.blobs.Upload(ctx, payload.Data, payload.MIMEType, s.cfg.S3OutputPrefix)
	if err != nil {
		return nil, s.fail(ctx, record.ID, fmt.Errorf("store generated image: %w", err))
	}

	if err := s.requests.MarkCompleted(ctx, record.ID, outputRef); err != nil {
		return nil, fmt.Errorf("finalize request %d: %w", record.ID, err)
	}

	s.log.Info("generation completed", "request_id", record.ID, "user_id", userID, "mode", in.Mode, "source", payload.Source)
	return &SubmitResult{RequestID: record.ID, OutputImageRef: outputRef}, nil
}

func (s *GenerationService) generate(ctx context.Context, in SubmitInput) (*gemini.ImagePayload, error) {
	var (
		raw *genai.GenerateContentResponse
		err error
	)
	switch in.Mode {
	case models.ModeTextToImage:
		raw, err = s.generator.GenerateFromText(ctx, in.Prompt)
	case models.ModeImageToImage:
		raw, err = s.generator.GenerateFromImage(ctx, in.ImageData, in.ImageMIME, in.Prompt)
	case models.ModeTextAndImageToImage:
		raw, err = s.generator.GenerateFromTextAndImage(ctx, in.ImageData, in.ImageMIME, in.Prompt)
	default:
		return nil, ErrUnsupportedMode
	}
	if err != nil {
		return nil, err
	}
	return s.normalizer.Normalize(raw)
}

// fail writes the terminal failed state before surfacing the cause. A
// storage error on the terminal write itself is surfaced instead, since the
// record could not be finalized.
func (s *GenerationService) fail(ctx context.Context, requestID int64, cause error) error {
	if err := s.requests.MarkFailed(ctx, requestID, cause.Error()); err != nil {
		s.log.Error("mark request failed", "request_id", requestID, "cause", cause, "err", err)
		return fmt.Errorf("finalize request %d: %w", requestID, err)
	}
	s.log.Warn("generation failed", "request_id", requestID, "err", cause)
	return &GenerationError{RequestID: requestID, Reason: cause.Error(), Err: cause}
}

func validateInput(in SubmitInput) error {
	if !in.Mode.Valid() {
		return ErrUnsupportedMode
	}
	if in.Mode != models.ModeImageToImage && strings.TrimSpace(in.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if in.Mode != models.ModeTextToImage {
		return validateImage(in)
	}
	return nil
}

func validateImage(in SubmitInput) error {
	if len(in.ImageData) == 0 {
		return ErrMissingImage
	}
	if _, ok := allowedImageTypes[strings.ToLower(in.ImageMIME)]; !ok {
		return ErrUnsupportedImageType
	}
	return nil
}
