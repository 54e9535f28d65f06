package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"todoist/internal/domain/errors"
	"todoist/internal/domain/models"
	"todoist/internal/server"
	"todoist/internal/testutil"
	inmemory "todoist/repository/inmemory"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		level logrus.Level
		json  bool
	}{
		{name: "local", env: envLocal, level: logrus.DebugLevel},
		{name: "dev", env: envDev, level: logrus.InfoLevel},
		{name: "prod", env: envProd, level: logrus.WarnLevel, json: true},
		{name: "unknown", env: "staging", level: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := setupLogger(tt.env, &buf)

			assert.Equal(t, tt.level, log.Logger.GetLevel())
			assert.Equal(t, tt.env, log.Data["env"])

			_, isJSON := log.Logger.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.json, isJSON)

			log.Warn("hello")
			assert.Contains(t, buf.String(), "hello")
		})
	}
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := server.DefaultConfig()
		cfg.Driver = server.DriverMemory

		store, err := openStorage(ctx, cfg, discardLogger())
		require.NoError(t, err)
		assert.IsType(t, &inmemory.Storage{}, store)
		assert.NoError(t, store.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := server.DefaultConfig()
		cfg.Driver = server.DriverSQLite
		cfg.SQLitePath = filepath.Join(t.TempDir(), "todo.sqlite")

		store, err := openStorage(ctx, cfg, discardLogger())
		require.NoError(t, err)
		defer store.Close()

		user := testutil.NewUser()
		require.NoError(t, store.CreateUser(ctx, user))
		tasks, err := store.ListTasks(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("postgres with bad migrations path", func(t *testing.T) {
		cfg := server.DefaultConfig()
		cfg.Driver = server.DriverPostgres
		cfg.MigratePath = ""

		store, err := openStorage(ctx, cfg, discardLogger())
		assert.ErrorIs(t, err, errors.ErrEmptyMigratePath)
		assert.Nil(t, store)
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := server.DefaultConfig()
		cfg.Driver = "oracle"

		store, err := openStorage(ctx, cfg, discardLogger())
		assert.ErrorIs(t, err, errors.ErrUnknownDriver)
		assert.Nil(t, store)
	})
}

func TestNewTaskServiceIsInstrumented(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewStorage()
	user := testutil.NewUser()
	require.NoError(t, repo.CreateUser(ctx, user))

	reg := prometheus.NewRegistry()
	svc := newTaskService(repo, discardLogger(), reg)

	task, err := svc.Create(ctx, user.ID, models.CreateTaskRequest{Text: "measured"})
	require.NoError(t, err)
	_, err = svc.Get(ctx, user.ID, task.ID)
	require.NoError(t, err)

	count, err := promtestutil.GatherAndCount(reg, "todoist_task_store_request_count")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRunServesAndShutsDown(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Driver = server.DriverMemory
	cfg.Addr = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.Env = envDev

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, discardLogger())
	}()

	url := "http://" + net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port))
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRunFailsOnUnknownDriver(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Driver = "oracle"

	err := run(context.Background(), cfg, discardLogger())
	assert.ErrorIs(t, err, errors.ErrUnknownDriver)
}
