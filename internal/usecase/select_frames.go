package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
	"github.com/fiapx/fiapx-keyframe-service/internal/domain/port"
	"github.com/fiapx/fiapx-keyframe-service/internal/domain/selection"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// errPermanent marks failures that no retry can fix.
var errPermanent = errors.New("permanent failure")

// RetryableError is returned for a failed attempt that should be
// redelivered.
type RetryableError struct {
	Attempt     int
	MaxAttempts int
	Reason      string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable failure (attempt %d/%d): %s", e.Attempt, e.MaxAttempts, e.Reason)
}

// DeliveryAttempt lets the consumer scale its backoff to the job's attempt.
func (e *RetryableError) DeliveryAttempt() int {
	return e.Attempt
}

type SelectFramesUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	decoder   port.FrameDecoder
	prober    port.DurationProber
	builder   port.MapBuilder
	encoder   port.FrameEncoder
	zipper    port.Zipper
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	defaults  selection.Params
	tempDir   string
	maxRetry  int
}

type SelectFramesConfig struct {
	TempDir    string
	MaxRetries int
	Defaults   selection.Params
}

type SelectFramesDeps struct {
	Repo      port.JobRepository
	Storage   port.VideoStorage
	Decoder   port.FrameDecoder
	Prober    port.DurationProber // optional
	Builder   port.MapBuilder
	Encoder   port.FrameEncoder
	Zipper    port.Zipper
	Publisher port.StatusPublisher
	DLQ       port.DLQPublisher
	Notifier  port.FailureNotifier
}

func NewSelectFramesUseCase(deps SelectFramesDeps, logger *zap.Logger, cfg SelectFramesConfig) *SelectFramesUseCase {
	return &SelectFramesUseCase{
		repo:      deps.Repo,
		storage:   deps.Storage,
		decoder:   deps.Decoder,
		prober:    deps.Prober,
		builder:   deps.Builder,
		encoder:   deps.Encoder,
		zipper:    deps.Zipper,
		publisher: deps.Publisher,
		dlq:       deps.DLQ,
		notifier:  deps.Notifier,
		logger:    logger,
		defaults:  cfg.Defaults,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

func (uc *SelectFramesUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "SelectFramesUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.SelectionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}
	if msg.JobID == uuid.Nil || msg.VideoKey == "" {
		uc.logger.Error("message is missing job_id or video_key", zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: job_id and video_key are required")
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	params, err := uc.resolveParams(msg)
	if err != nil {
		log.Warn("invalid selection parameters", zap.Error(err))
		return uc.rejectParams(ctx, msg, rawMsg, err, log)
	}

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, toEntityParams(params), uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", log)
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.selectionPipeline(ctx, job, msg, rawMsg, params, log); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

// resolveParams applies message overrides on top of the configured
// defaults.
func (uc *SelectFramesUseCase) resolveParams(msg entity.SelectionRequestMessage) (selection.Params, error) {
	params := uc.defaults
	if msg.EdgeThreshold != nil {
		params.EdgeThreshold = *msg.EdgeThreshold
	}
	if msg.FrameThreshold != nil {
		params.FrameThreshold = *msg.FrameThreshold
	}
	if msg.BaselinePolicy != "" {
		policy, err := selection.ParseBaselinePolicy(msg.BaselinePolicy)
		if err != nil {
			return params, err
		}
		params.BaselinePolicy = policy
	}
	return params, params.Validate()
}

// rejectParams fails a job permanently without ever storing the rejected
// values. The row, if one has to be created, carries the defaults and the
// rejected values only appear in the error message.
func (uc *SelectFramesUseCase) rejectParams(
	ctx context.Context,
	msg entity.SelectionRequestMessage,
	rawMsg []byte,
	paramsErr error,
	log *zap.Logger,
) error {
	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, toEntityParams(uc.defaults), uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to record rejected job", zap.Error(err))
		}
	}

	job.ExhaustRetries()
	return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "invalid_params: "+paramsErr.Error(), log)
}

func (uc *SelectFramesUseCase) selectionPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.SelectionRequestMessage,
	rawMsg []byte,
	params selection.Params,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video from object storage
	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	err := uc.storage.DownloadVideo(ctxDl, msg.VideoKey, videoPath)
	endSpan(spanDl, err)
	if err != nil {
		log.Error("failed to download video", zap.Error(err))
		if errors.Is(err, port.ErrVideoNotFound) {
			err = fmt.Errorf("%w: %w", errPermanent, err)
		}
		return uc.handleFailure(ctx, job, msg, rawMsg, "download_video", err, log)
	}
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Decode every frame
	decStart := time.Now()
	ctxDec, spanDec := tracer.Start(ctx, "decode_frames")
	decoded, err := uc.decoder.Decode(ctxDec, videoPath)
	endSpan(spanDec, err)
	if err != nil {
		log.Error("frame decoding failed", zap.Error(err))
		if errors.Is(err, port.ErrNotVideo) {
			err = fmt.Errorf("%w: %w", errPermanent, err)
		}
		return uc.handleFailure(ctx, job, msg, rawMsg, "decode_frames", err, log)
	}
	metrics.JobProcessingDuration.WithLabelValues("decode").Observe(time.Since(decStart).Seconds())
	metrics.FramesDecodedTotal.Add(float64(len(decoded.Frames)))

	duration := uc.videoDuration(ctx, videoPath, decoded, log)

	// Select representative frames
	selStart := time.Now()
	_, spanSel := tracer.Start(ctx, "select_frames")
	selector := selection.NewSelector(uc.builder,
		selection.WithBaselinePolicy(params.BaselinePolicy),
		selection.WithLogger(log),
	)
	result, err := selector.Select(decoded.Frames, params.EdgeThreshold, params.FrameThreshold)
	endSpan(spanSel, err)
	if err != nil {
		log.Error("frame selection failed", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, "select_frames", fmt.Errorf("%w: %w", errPermanent, err), log)
	}
	metrics.JobProcessingDuration.WithLabelValues("select").Observe(time.Since(selStart).Seconds())
	metrics.FramesKeptTotal.WithLabelValues("edge").Add(float64(len(result.Edge.Frames)))
	metrics.FramesKeptTotal.WithLabelValues("similarity").Add(float64(len(result.Similarity.Frames)))
	metrics.ChangePoints.WithLabelValues("edge").Observe(float64(len(result.Edge.ChangePoints)))
	metrics.ChangePoints.WithLabelValues("similarity").Observe(float64(len(result.Similarity.ChangePoints)))

	summary := entity.SelectionSummary{
		DecodedFrames:   len(decoded.Frames),
		CandidateFrames: len(result.Edge.Frames),
		SelectedFrames:  len(result.Similarity.Frames),
		VideoDuration:   duration,
	}

	// Encode the representatives
	encStart := time.Now()
	_, spanEnc := tracer.Start(ctx, "encode_frames")
	entries, err := uc.encodeFrames(result.Representatives())
	endSpan(spanEnc, err)
	if err != nil {
		log.Error("frame encoding failed", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, "encode_frames", fmt.Errorf("%w: %w", errPermanent, err), log)
	}
	metrics.JobProcessingDuration.WithLabelValues("encode").Observe(time.Since(encStart).Seconds())

	// Create ZIP from encoded frames
	zipStart := time.Now()
	ctxZip, spanZip := tracer.Start(ctx, "create_zip")
	zipPath := filepath.Join(workDir, "keyframes.zip")
	err = uc.zipper.CreateZip(ctxZip, entries, zipPath)
	endSpan(spanZip, err)
	if err != nil {
		log.Error("zip creation failed", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, "create_zip", err, log)
	}
	metrics.JobProcessingDuration.WithLabelValues("zip").Observe(time.Since(zipStart).Seconds())

	// Upload ZIP to object storage
	upStart := time.Now()
	ctxUp, spanUp := tracer.Start(ctx, "upload_zip")
	archiveKey := fmt.Sprintf("%s/keyframes_%s.zip", msg.UserID, job.ID.String())
	err = uc.uploadArchive(ctxUp, archiveKey, zipPath)
	endSpan(spanUp, err)
	if err != nil {
		log.Error("zip upload failed", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, "upload_zip", err, log)
	}
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(archiveKey, summary)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("decoded_frames", summary.DecodedFrames),
		zap.Int("candidate_frames", summary.CandidateFrames),
		zap.Int("selected_frames", summary.SelectedFrames),
		zap.Float64("duration_secs", summary.VideoDuration),
		zap.String("archive_key", archiveKey),
	)

	return nil
}

func (uc *SelectFramesUseCase) videoDuration(ctx context.Context, videoPath string, decoded *port.DecodeResult, log *zap.Logger) float64 {
	if uc.prober != nil {
		d, err := uc.prober.Duration(ctx, videoPath)
		if err == nil {
			return d
		}
		log.Warn("could not probe video duration, estimating from frame rate", zap.Error(err))
	}
	if decoded.FPS > 0 {
		return float64(len(decoded.Frames)) / decoded.FPS
	}
	return 0
}

func (uc *SelectFramesUseCase) encodeFrames(frames []entity.Frame) ([]port.ArchiveEntry, error) {
	entries := make([]port.ArchiveEntry, 0, len(frames))
	for i, f := range frames {
		data, err := uc.encoder.Encode(f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, port.ArchiveEntry{
			Name: port.FrameEntryName(i, uc.encoder.Extension()),
			Data: data,
		})
	}
	return entries, nil
}

func (uc *SelectFramesUseCase) uploadArchive(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat zip: %w", err)
	}
	return uc.storage.UploadArchive(ctx, key, f, stat.Size())
}

func (uc *SelectFramesUseCase) handleFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.SelectionRequestMessage,
	rawMsg []byte,
	stage string,
	err error,
	log *zap.Logger,
) error {
	errMsg := stage + ": " + err.Error()
	if errors.Is(err, errPermanent) {
		job.ExhaustRetries()
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
	}
	return uc.handleRetryableFailure(ctx, job, msg, rawMsg, errMsg, log)
}

func (uc *SelectFramesUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.SelectionRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return &RetryableError{Attempt: job.Attempt, MaxAttempts: job.MaxAttempts, Reason: errMsg}
}

func (uc *SelectFramesUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.SelectionRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, log)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *SelectFramesUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	status := entity.SelectionStatusMessage{
		JobID:           job.ID,
		UserID:          job.UserID,
		Status:          job.Status,
		VideoKey:        job.VideoKey,
		ArchiveKey:      job.ArchiveKey,
		DecodedFrames:   job.DecodedFrames,
		CandidateFrames: job.CandidateFrames,
		SelectedFrames:  job.SelectedFrames,
		Duration:        job.VideoDuration,
		EdgeThreshold:   job.Params.EdgeThreshold,
		FrameThreshold:  job.Params.FrameThreshold,
		ErrorMessage:    job.ErrorMessage,
		Attempt:         job.Attempt,
		MaxAttempts:     job.MaxAttempts,
	}
	if err := uc.publisher.PublishStatus(ctx, status); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

func toEntityParams(p selection.Params) entity.SelectionParams {
	return entity.SelectionParams{
		EdgeThreshold:  p.EdgeThreshold,
		FrameThreshold: p.FrameThreshold,
		BaselinePolicy: string(p.BaselinePolicy),
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
