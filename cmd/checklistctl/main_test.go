package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/users"
	"github.com/bebleo/checklist/jobs"
	_ "github.com/bebleo/checklist/testing"
)

type fakeMigrator struct {
	calls   []string
	version uint
	dirty   bool
	err     error
	closed  bool
}

func (m *fakeMigrator) record(call string) error {
	m.calls = append(m.calls, call)
	return m.err
}

func (m *fakeMigrator) Up() error { return m.record("up") }
func (m *fakeMigrator) Down() error { return m.record("down") }
func (m *fakeMigrator) Steps(n int) error { return m.record(fmt.Sprintf("steps:%d", n)) }
func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, m.dirty, m.err }
func (m *fakeMigrator) Force(v int) error { return m.record("force") }
func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]users.User
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

func (f *fakeUsers) Create(_ context.Context, input users.NewUser) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := users.User{ID: int64(len(f.byEmail) + 1), Email: input.Email, IsAdmin: input.IsAdmin, Status: users.StatusActive}
	f.byEmail[input.Email] = u
	return &u, nil
}

func (f *fakeUsers) SetPassword(_ context.Context, id int64, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, u := range f.byEmail {
		if u.ID == id {
			u.PasswordHash = "set:" + password
			f.byEmail[email] = u
			return nil
		}
	}
	return shared.ErrNotFound
}

func (f *fakeUsers) CountActiveAdmins(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, u := range f.byEmail {
		if u.IsActiveAdmin() {
			count++
		}
	}
	return count, nil
}

type fakePurger struct{ removed int64 }

func (f fakePurger) PurgeExpired(context.Context) (int64, error) { return f.removed, nil }

type fakeQueue struct {
	info     *asynq.QueueInfo
	infoErr  error
	enqueued []*asynq.Task
	closed   bool
}

func (q *fakeQueue) GetQueueInfo(string) (*asynq.QueueInfo, error) { return q.info, q.infoErr }

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.enqueued = append(q.enqueued, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func (q *fakeQueue) Close() error {
	q.closed = true
	return nil
}

type fixture struct {
	migrator *fakeMigrator
	users    *fakeUsers
	queue    *fakeQueue
	closed   bool
}

func newFixture() *fixture {
	return &fixture{
		migrator: &fakeMigrator{},
		users:    &fakeUsers{byEmail: map[string]users.User{}},
		queue:    &fakeQueue{},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		NewMigrator: func(string) (Migrator, error) { return f.migrator, nil },
		OpenStore: func(context.Context, string) (*Store, error) {
			return &Store{Users: f.users, Tokens: fakePurger{removed: 4}, Close: func() { f.closed = true }}, nil
		},
		OpenQueue: func(asynq.RedisClientOpt) Queue { return f.queue },
	}
}

func execute(t *testing.T, deps Deps, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %v", err)
	assert.Equal(t, code, oopsErr.Code())
}

func TestMigrateCommands(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		calls []string
		out   string
	}{
		{name: "up", args: []string{"migrate", "up"}, calls: []string{"up"}, out: "Migrations applied."},
		{name: "down all", args: []string{"migrate", "down"}, calls: []string{"down"}, out: "Migrations rolled back."},
		{name: "down two", args: []string{"migrate", "down", "2"}, calls: []string{"steps:-2"}, out: "Migrations rolled back."},
		{name: "force", args: []string{"migrate", "force", "1"}, calls: []string{"force"}, out: "Forced version 1."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			out, err := execute(t, f.deps(), append([]string{"--database-url", "postgres://db"}, tt.args...)...)

			require.NoError(t, err)
			assert.Equal(t, tt.calls, f.migrator.calls)
			assert.Contains(t, out, tt.out)
			assert.True(t, f.migrator.closed)
		})
	}
}

func TestMigrateVersion(t *testing.T) {
	f := newFixture()
	f.migrator.version = 1
	f.migrator.dirty = true

	out, err := execute(t, f.deps(), "--database-url", "postgres://db", "migrate", "version")

	require.NoError(t, err)
	assert.Contains(t, out, "version 1 (dirty)")
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("PG_DSN", "")
	f := newFixture()

	_, err := execute(t, f.deps(), "migrate", "up")

	assertCode(t, err, "CONFIG_INVALID")
	assert.Empty(t, f.migrator.calls)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "3", want: 3},
		{input: " 42 ", want: 42},
		{input: "-1", want: -1},
		{input: "abc", wantErr: true},
		{input: "", wantErr: true},
		{input: "1.5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseVersion(tt.input)
			if tt.wantErr {
				assertCode(t, err, "INVALID_VERSION")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitDBSeedsAdministrator(t *testing.T) {
	f := newFixture()
	args := []string{"--database-url", "postgres://db", "init-db", "--admin-email", "admin@test.local", "--admin-password", "admin"}

	out, err := execute(t, f.deps(), args...)

	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, f.migrator.calls)
	assert.Contains(t, out, "Created administrator admin@test.local.")
	assert.Contains(t, out, "Initialized database.")
	assert.True(t, f.users.byEmail["admin@test.local"].IsAdmin)
	assert.True(t, f.closed)

	out, err = execute(t, f.deps(), args...)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	assert.Len(t, f.users.byEmail, 1)
}

func TestInitDBReset(t *testing.T) {
	f := newFixture()

	_, err := execute(t, f.deps(), "--database-url", "postgres://db", "init-db", "--reset",
		"--admin-email", "admin@test.local", "--admin-password", "admin")

	require.NoError(t, err)
	assert.Equal(t, []string{"down", "up"}, f.migrator.calls)
}

func TestInitDBErrors(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		t.Setenv("ADMIN_EMAIL", "")
		t.Setenv("ADMIN_PASSWORD", "")
		f := newFixture()

		_, err := execute(t, f.deps(), "--database-url", "postgres://db", "init-db")

		assertCode(t, err, "CONFIG_INVALID")
	})
	t.Run("migration failure", func(t *testing.T) {
		f := newFixture()
		f.migrator.err = errors.New("dirty database")

		_, err := execute(t, f.deps(), "--database-url", "postgres://db", "init-db",
			"--admin-email", "admin@test.local", "--admin-password", "admin")

		assertCode(t, err, "MIGRATION_FAILED")
		assert.Empty(t, f.users.byEmail)
	})
}

func TestTokensPurge(t *testing.T) {
	f := newFixture()

	out, err := execute(t, f.deps(), "--database-url", "postgres://db", "tokens", "purge")

	require.NoError(t, err)
	assert.Contains(t, out, "Removed 4 expired tokens.")
	assert.True(t, f.closed)
}

func TestUsersSetPassword(t *testing.T) {
	f := newFixture()
	f.users.byEmail["ops@test.local"] = users.User{ID: 1, Email: "ops@test.local", Status: users.StatusActive}

	out, err := execute(t, f.deps(), "--database-url", "postgres://db", "users", "set-password", "ops@test.local", "--password", "s3cret")

	require.NoError(t, err)
	assert.Contains(t, out, "Password updated for ops@test.local.")
	assert.Equal(t, "set:s3cret", f.users.byEmail["ops@test.local"].PasswordHash)
	assert.True(t, f.closed)
}

func TestUsersSetPasswordErrors(t *testing.T) {
	t.Setenv("CHECKLIST_NEW_PASSWORD", "")
	tests := []struct {
		name string
		args []string
		code string
	}{
		{
			name: "missing password",
			args: []string{"--database-url", "postgres://db", "users", "set-password", "ops@test.local"},
			code: "CONFIG_INVALID",
		},
		{
			name: "unknown account",
			args: []string{"--database-url", "postgres://db", "users", "set-password", "nobody@test.local", "--password", "x"},
			code: "USER_NOT_FOUND",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, newFixture().deps(), tt.args...)

			require.Error(t, err)
			assertCode(t, err, tt.code)
		})
	}
}

func TestUsersAdmins(t *testing.T) {
	f := newFixture()

	_, err := execute(t, f.deps(), "--database-url", "postgres://db", "users", "admins")
	require.Error(t, err)
	assertCode(t, err, "NO_ACTIVE_ADMIN")

	f.users.byEmail["admin@test.local"] = users.User{ID: 1, Email: "admin@test.local", IsAdmin: true, Status: users.StatusActive}
	out, err := execute(t, f.deps(), "--database-url", "postgres://db", "users", "admins")
	require.NoError(t, err)
	assert.Contains(t, out, "1 active administrator(s).")
}

func TestJobsStats(t *testing.T) {
	f := newFixture()
	f.queue.info = &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}

	out, err := execute(t, f.deps(), "jobs", "stats")

	require.NoError(t, err)
	assert.Contains(t, out, "pending=2")
	assert.Contains(t, out, "retry=1")
	assert.True(t, f.queue.closed)

	f.queue.info, f.queue.infoErr = nil, asynq.ErrQueueNotFound
	out, err = execute(t, f.deps(), "jobs", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "empty")
}

func TestJobsPurgeTokensEnqueues(t *testing.T) {
	f := newFixture()

	out, err := execute(t, f.deps(), "jobs", "purge-tokens")

	require.NoError(t, err)
	require.Len(t, f.queue.enqueued, 1)
	assert.Equal(t, jobs.TaskTypePurgeTokens, f.queue.enqueued[0].Type())
	assert.Contains(t, out, "queued tokens:purge (task-1)")
}
