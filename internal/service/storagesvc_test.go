package service

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileshare/internal/domain"
)

func uploadBytes(t *testing.T, env *testEnv, owner string, sizes ...int) []domain.FileEntry {
	t.Helper()
	uploads := make([]Upload, len(sizes))
	for i, n := range sizes {
		uploads[i] = Upload{
			Filename: "file.bin",
			Size:     int64(n),
			Content:  bytes.NewReader(bytes.Repeat([]byte{'x'}, n)),
		}
	}
	entries, _, err := env.files.Upload(owner, uploads)
	require.NoError(t, err)
	return entries
}

func TestUsageSumsArtifacts(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50, EmailVerified: true})

	uploadBytes(t, env, "alice", 1000)
	uploadBytes(t, env, "alice", 2000, 3000)

	assert.Equal(t, int64(6000), env.storage.Usage("alice"))

	used, files, bundles := env.storage.UsageSummary("alice")
	assert.Equal(t, int64(6000), used)
	assert.Equal(t, 3, files)
	assert.Equal(t, 1, bundles)
}

func TestCheckQuota(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, domain.User{Username: "alice", StorageLimitMB: 1, EmailVerified: true})

	require.NoError(t, env.storage.CheckQuota("alice", 1024*1024))

	err := env.storage.CheckQuota("alice", 1024*1024+1)
	var quotaErr *domain.StorageExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(1024*1024), quotaErr.AvailableBytes)
	assert.Equal(t, int64(1024*1024), quotaErr.LimitBytes)
}

func TestCheckQuotaAccountsForExistingUsage(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, domain.User{Username: "alice", StorageLimitMB: 1, EmailVerified: true})

	uploadBytes(t, env, "alice", 512*1024)

	require.NoError(t, env.storage.CheckQuota("alice", 512*1024))
	err := env.storage.CheckQuota("alice", 512*1024+1)
	var quotaErr *domain.StorageExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(512*1024), quotaErr.AvailableBytes)
}

func TestCheckQuotaUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	assert.ErrorIs(t, env.storage.CheckQuota("ghost", 1), domain.ErrNotFound)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.25 GB", FormatBytes(1280*1024*1024))
}

func TestFormatBytesShort(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytesShort(512))
	assert.Equal(t, "1.5 KB", FormatBytesShort(1536))
	assert.Equal(t, "2.0 MB", FormatBytesShort(2*1024*1024))
	// No GB tier: large values stay in MB.
	assert.True(t, strings.HasSuffix(FormatBytesShort(3*1024*1024*1024), " MB"))
}
