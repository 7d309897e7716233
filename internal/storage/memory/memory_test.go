package memory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slok/autotask/internal/log"
	"github.com/slok/autotask/internal/storage"
	"github.com/slok/autotask/internal/storage/memory"
	"github.com/slok/autotask/internal/storage/storagetest"
)

func TestRepository(t *testing.T) {
	storagetest.RunRepositoryTests(t, func(t *testing.T) storage.Repository {
		repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: log.Noop})
		require.NoError(t, err)
		return repo
	})
}
