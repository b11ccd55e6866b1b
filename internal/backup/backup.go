// Package backup takes encrypted snapshots of the local database and keeps
// them in S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"
)

// ErrDisabled is returned when no bucket, credentials or passphrase are set.
var ErrDisabled = errors.New("backup: not configured")

// objectStore is the subset of the S3 client the manager uses.
type objectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Prefix     string
	Passphrase string
	Interval   time.Duration
	Retain     int // snapshots kept; zero keeps all
}

func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != "" && c.Passphrase != ""
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastKey    string     `json:"last_key,omitempty"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Manager runs scheduled and on-demand snapshots.
type Manager struct {
	mu       sync.RWMutex
	runMu    sync.Mutex
	cfg      Config
	db       *sql.DB
	client   objectStore
	status   Status
	callback func(Status)
	now      func() time.Time
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager builds a manager for db. db may be nil for restore-only use.
func NewManager(cfg Config, db *sql.DB, callback func(Status), logger *slog.Logger) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	m := &Manager{
		cfg:      cfg,
		db:       db,
		callback: callback,
		now:      time.Now,
		logger:   logger,
		status:   Status{State: StateDisabled},
	}
	if cfg.Enabled() {
		m.client = newS3Client(cfg)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

// Start runs a snapshot every Interval until Stop. It does nothing when
// backups are disabled.
func (m *Manager) Start(ctx context.Context) {
	if m.client == nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.RunNow(ctx); err != nil && ctx.Err() == nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
			}
		}
	}()
}

func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

func (m *Manager) key(t time.Time) string {
	name := "snapshot-" + t.UTC().Format("20060102T150405.000Z") + ".db.enc"
	if m.cfg.Prefix == "" {
		return name
	}
	return strings.TrimRight(m.cfg.Prefix, "/") + "/" + name
}

func (m *Manager) fail(err error) error {
	prev := m.Status()
	m.setStatus(Status{State: StateError, LastKey: prev.LastKey, LastBackup: prev.LastBackup, Error: err.Error()})
	return err
}

// RunNow snapshots the database, uploads it, and prunes old snapshots. It
// returns the object key.
func (m *Manager) RunNow(ctx context.Context) (string, error) {
	if m.client == nil || m.db == nil {
		return "", ErrDisabled
	}
	m.runMu.Lock()
	defer m.runMu.Unlock()

	prev := m.Status()
	m.setStatus(Status{State: StateRunning, LastKey: prev.LastKey, LastBackup: prev.LastBackup})

	dir, err := os.MkdirTemp("", "basket-backup-")
	if err != nil {
		return "", m.fail(fmt.Errorf("create temp dir: %w", err))
	}
	defer os.RemoveAll(dir)

	// VACUUM INTO writes a consistent copy even while the WAL is active.
	snapshot := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return "", m.fail(fmt.Errorf("snapshot database: %w", err))
	}
	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return "", m.fail(fmt.Errorf("read snapshot: %w", err))
	}
	sealed, err := Seal(plaintext, m.cfg.Passphrase)
	if err != nil {
		return "", m.fail(fmt.Errorf("encrypt: %w", err))
	}

	now := m.now()
	key := m.key(now)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return "", m.fail(fmt.Errorf("upload to s3: %w", err))
	}

	if err := m.prune(ctx); err != nil {
		m.logger.Warn("prune old snapshots", "error", err)
	}

	at := now.UTC()
	m.setStatus(Status{State: StateIdle, LastKey: key, LastBackup: &at})
	m.logger.Info("backup uploaded", "key", key, "bytes", len(sealed))
	return key, nil
}

// Snapshots lists the stored snapshot keys, oldest first.
func (m *Manager) Snapshots(ctx context.Context) ([]string, error) {
	if m.client == nil {
		return nil, ErrDisabled
	}
	prefix := ""
	if m.cfg.Prefix != "" {
		prefix = strings.TrimRight(m.cfg.Prefix, "/") + "/"
	}

	var keys []string
	input := &s3.ListObjectsV2Input{Bucket: aws.String(m.cfg.Bucket), Prefix: aws.String(prefix)}
	for {
		out, err := m.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		for _, obj := range out.Contents {
			if k := aws.ToString(obj.Key); strings.HasSuffix(k, ".db.enc") {
				keys = append(keys, k)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	// Timestamped names sort chronologically.
	sort.Strings(keys)
	return keys, nil
}

func (m *Manager) prune(ctx context.Context) error {
	if m.cfg.Retain <= 0 {
		return nil
	}
	keys, err := m.Snapshots(ctx)
	if err != nil {
		return err
	}
	for len(keys) > m.cfg.Retain {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(keys[0]),
		}); err != nil {
			return fmt.Errorf("delete %s: %w", keys[0], err)
		}
		keys = keys[1:]
	}
	return nil
}

// Restore downloads and decrypts the snapshot at key, checks its integrity
// and writes it to dbPath. The daemon must not be running on dbPath.
func (m *Manager) Restore(ctx context.Context, key, dbPath string) error {
	if m.client == nil {
		return ErrDisabled
	}
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	sealed, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	plaintext, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return err
	}

	tmp := dbPath + ".restore"
	if err := os.WriteFile(tmp, plaintext, 0o600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	defer os.Remove(tmp)

	if err := checkIntegrity(ctx, tmp); err != nil {
		return err
	}

	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
	if err := os.Rename(tmp, dbPath); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	m.logger.Info("backup restored", "key", key, "path", dbPath)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
