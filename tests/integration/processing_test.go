package integration

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
	"github.com/fiapx/fiapx-keyframe-service/internal/domain/selection"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/archive"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/email"
	miniostorage "github.com/fiapx/fiapx-keyframe-service/internal/infra/minio"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/opencv"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-keyframe-service/internal/usecase"
	"github.com/fiapx/fiapx-keyframe-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

const (
	exchange       = "fiapx.keyframe"
	selectionQueue = "keyframe.selection"
	statusQueue    = "keyframe.status"
	dlqQueue       = "keyframe.selection.dlq"
	videoBucket    = "uploads"
	archiveBucket  = "keyframes"
)

// stack is a running worker wired against throwaway containers.
type stack struct {
	pool        *pgxpool.Pool
	rmqConn     *amqp.Connection
	minioClient *miniogo.Client
}

func startStack(ctx context.Context, t *testing.T) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		VideoBucket:   videoBucket,
		ArchiveBucket: archiveBucket,
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { rmqConn.Close() })

	pub, err := rabbitmq.NewPublisher(rmqConn, exchange)
	require.NoError(t, err)

	log, err := logger.New("debug")
	require.NoError(t, err)

	encoder, err := opencv.NewEncoder("jpg")
	require.NoError(t, err)

	uc := usecase.NewSelectFramesUseCase(usecase.SelectFramesDeps{
		Repo:      postgres.NewJobRepository(pool),
		Storage:   storage,
		Decoder:   opencv.NewDecoder(log),
		Builder:   opencv.NewMapBuilder(),
		Encoder:   encoder,
		Zipper:    archive.NewZipCreator(),
		Publisher: rabbitmq.NewStatusPublisher(pub),
		DLQ:       rabbitmq.NewDLQPublisher(pub, dlqQueue),
		Notifier:  email.NewSMTPNotifier("localhost", 1025, "test@test.local", log),
	}, log, usecase.SelectFramesConfig{
		TempDir:    t.TempDir(),
		MaxRetries: 3,
		Defaults:   selection.DefaultParams(),
	})

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       selectionQueue,
		Exchange:    exchange,
		DLQ:         dlqQueue,
		StatusQueue: statusQueue,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Start(consumerCtx)
	}()
	t.Cleanup(func() {
		consumerCancel()
		<-done
		consumer.Close()
	})

	// Give consumer time to start
	time.Sleep(500 * time.Millisecond)

	return &stack{pool: pool, rmqConn: rmqConn, minioClient: minioClient}
}

func (s *stack) publish(ctx context.Context, t *testing.T, body []byte) {
	t.Helper()
	ch, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	err = ch.PublishWithContext(ctx, exchange, rabbitmq.SelectionRoutingKey, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	require.NoError(t, err)
}

func TestSelectKeyframesEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testVideoPath := filepath.Join("..", "testdata", "test.mp4")
	videoInfo, err := os.Stat(testVideoPath)
	if os.IsNotExist(err) {
		t.Skip("test video not found at tests/testdata/test.mp4 - generate it with: ffmpeg -f lavfi -i testsrc=duration=4:size=320x240:rate=5 -c:v libx264 -pix_fmt yuv420p tests/testdata/test.mp4")
	}
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := startStack(ctx, t)

	videoKey := "testuser/test.mp4"
	_, err = s.minioClient.FPutObject(ctx, videoBucket, videoKey, testVideoPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	statusCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume(statusQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	jobID := uuid.New()
	body, err := json.Marshal(entity.SelectionRequestMessage{
		JobID:     jobID,
		UserID:    "testuser",
		VideoKey:  videoKey,
		FileSize:  videoInfo.Size(),
		UserEmail: "test@test.local",
	})
	require.NoError(t, err)
	s.publish(ctx, t, body)

	var status entity.SelectionStatusMessage
	select {
	case delivery := <-statusMsgs:
		require.NoError(t, json.Unmarshal(delivery.Body, &status))
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, jobID, status.JobID)
	require.Equal(t, entity.JobStatusCompleted, status.Status, status.ErrorMessage)
	assert.Greater(t, status.DecodedFrames, 0)
	assert.LessOrEqual(t, status.CandidateFrames, status.DecodedFrames)
	assert.LessOrEqual(t, status.SelectedFrames, status.CandidateFrames)
	assert.Greater(t, status.SelectedFrames, 0)
	assert.Equal(t, selection.DefaultFrameThreshold, status.FrameThreshold)
	require.NotEmpty(t, status.ArchiveKey)

	obj, err := s.minioClient.GetObject(ctx, archiveBucket, status.ArchiveKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	jpgCount := 0
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "frame_") && strings.HasSuffix(f.Name, ".jpg") {
			jpgCount++
		}
	}
	assert.Equal(t, status.SelectedFrames, jpgCount)

	var dbStatus string
	var dbDecoded, dbSelected int
	err = s.pool.QueryRow(ctx,
		"SELECT status, decoded_frames, selected_frames FROM selection_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbDecoded, &dbSelected)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, status.DecodedFrames, dbDecoded)
	assert.Equal(t, jpgCount, dbSelected)

	t.Logf("%d frames decoded, %d selected, archive at %s", dbDecoded, jpgCount, status.ArchiveKey)
}

func TestSelectKeyframesMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := startStack(ctx, t)
	s.publish(ctx, t, []byte(`{invalid json`))

	dlqCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	var (
		dlqMsg amqp.Delivery
		ok     bool
	)
	require.Eventually(t, func() bool {
		dlqMsg, ok, err = dlqCh.Get(dlqQueue, true)
		return err == nil && ok
	}, 10*time.Second, 200*time.Millisecond, "malformed message should be in DLQ")

	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))
	assert.Contains(t, dlqMsg.Headers["x-dlq-reason"], "unmarshal_error")
}

func TestSelectKeyframesNotAVideo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	s := startStack(ctx, t)

	videoKey := "testuser/notes.mp4"
	payload := []byte("these are meeting notes, not a video")
	_, err := s.minioClient.PutObject(ctx, videoBucket, videoKey, bytes.NewReader(payload), int64(len(payload)),
		miniogo.PutObjectOptions{ContentType: "video/mp4"})
	require.NoError(t, err)

	jobID := uuid.New()
	body, err := json.Marshal(entity.SelectionRequestMessage{
		JobID:    jobID,
		UserID:   "testuser",
		VideoKey: videoKey,
	})
	require.NoError(t, err)
	s.publish(ctx, t, body)

	dlqCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	require.Eventually(t, func() bool {
		_, ok, err := dlqCh.Get(dlqQueue, true)
		return err == nil && ok
	}, 30*time.Second, 200*time.Millisecond, "non-video upload should be dead-lettered without retries")

	var dbStatus string
	var attempt, maxAttempts int
	err = s.pool.QueryRow(ctx,
		"SELECT status, attempt, max_attempts FROM selection_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &attempt, &maxAttempts)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", dbStatus)
	assert.Equal(t, maxAttempts, attempt)
}
