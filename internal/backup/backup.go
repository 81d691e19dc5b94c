// Package backup snapshots the planner database, encrypts the
// snapshot with an Argon2id-derived AES-256-GCM key, and uploads it
// to S3-compatible storage on a fixed interval or on demand.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration.
type Config struct {
	S3         S3Config
	DBPath     string
	Passphrase string
	Interval   time.Duration
}

// State represents the backup manager state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateError   State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"lastBackup,omitempty"`
	LastKey    string     `json:"lastKey,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"inProgress"`
}

// StatusCallback is called whenever the backup status changes.
type StatusCallback func(Status)

// Manager runs encrypted database snapshots on an interval.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback

	db     *sql.DB
	client s3Client
	logger *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewManager creates a backup manager. The callback may be nil.
func NewManager(cfg Config, db *sql.DB, logger *slog.Logger, callback StatusCallback) *Manager {
	return &Manager{
		cfg:      cfg,
		status:   Status{State: StateIdle},
		callback: callback,
		db:       db,
		client:   newS3Client(cfg.S3),
		logger:   logger,
	}
}

func newS3Client(cfg S3Config) *s3.Client {
	return s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	})
}

// Start launches the periodic snapshot loop. It returns immediately.
func (m *Manager) Start(ctx context.Context) {
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go func() {
		defer close(m.doneCh)

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				if _, err := m.RunNow(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the snapshot loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.doneCh
	m.stopCh = nil
}

// Status returns a copy of the current status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(update func(*Status)) {
	m.mu.Lock()
	update(&m.status)
	statusCopy := m.status
	m.mu.Unlock()

	if m.callback != nil {
		m.callback(statusCopy)
	}
}

// RunNow performs one snapshot, encrypt, upload cycle and returns the
// object key of the uploaded backup. Concurrent runs are rejected.
func (m *Manager) RunNow(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.status.InProgress {
		m.mu.Unlock()
		return "", fmt.Errorf("backup already in progress")
	}
	m.status.InProgress = true
	m.status.State = StateRunning
	m.status.Error = ""
	statusCopy := m.status
	m.mu.Unlock()

	if m.callback != nil {
		m.callback(statusCopy)
	}

	key, err := m.runBackup(ctx)
	now := time.Now()

	if err != nil {
		m.setStatus(func(s *Status) {
			s.InProgress = false
			s.State = StateError
			s.Error = err.Error()
		})
		return "", err
	}

	m.setStatus(func(s *Status) {
		s.InProgress = false
		s.State = StateIdle
		s.LastBackup = &now
		s.LastKey = key
	})
	m.logger.Info("backup uploaded", "key", key)
	return key, nil
}

func (m *Manager) runBackup(ctx context.Context) (string, error) {
	tmpDir, err := os.MkdirTemp("", "planner-backup-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshotPath := filepath.Join(tmpDir, "planner.db")
	if err := m.snapshot(ctx, snapshotPath); err != nil {
		return "", err
	}

	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}

	encryptedPath := snapshotPath + ".enc"
	if err := EncryptFile(snapshotPath, encryptedPath, m.cfg.Passphrase, salt); err != nil {
		return "", fmt.Errorf("encrypt snapshot: %w", err)
	}

	key := fmt.Sprintf("planner-%s.db.enc", time.Now().UTC().Format("20060102-150405"))
	if err := m.upload(ctx, encryptedPath, key); err != nil {
		return "", err
	}
	return key, nil
}

// snapshot checkpoints the WAL and copies the database file so the
// copy is a consistent standalone snapshot.
func (m *Manager) snapshot(ctx context.Context, dstPath string) error {
	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint wal: %w", err)
	}
	if err := copyFile(m.cfg.DBPath, dstPath); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}
	return nil
}

func (m *Manager) upload(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open encrypted snapshot: %w", err)
	}
	defer f.Close()

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload backup: %w", err)
	}
	return nil
}

// Download fetches an encrypted backup object and decrypts it to
// dstPath. The caller supplies the passphrase used at upload time.
func (m *Manager) Download(ctx context.Context, key, passphrase, dstPath string) error {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download backup: %w", err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "planner-restore-*.enc")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write downloaded backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := DecryptFile(tmp.Name(), dstPath, passphrase); err != nil {
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
