package main

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Concurrent attempts to register the same (username, event_id) pair must
// produce exactly one row. There is no application-level lock: the second
// writer loses at the composite primary key.
func TestConcurrentDuplicateRegistration(t *testing.T) {
	r := setupTestRouter(t)
	ev := createTestEvent(t, r)
	path := fmt.Sprintf("/events/%d/register", ev.ID)

	const attempts = 20
	var created, conflicted int32
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := performRequest(r, http.MethodPost, path, gin.H{
				"username": "ada", "name": "Ada", "email": "a@x.io",
			})
			switch w.Code {
			case http.StatusCreated:
				atomic.AddInt32(&created, 1)
			case http.StatusConflict:
				atomic.AddInt32(&conflicted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created)
	assert.Equal(t, int32(attempts-1), conflicted)

	var count int64
	require.NoError(t, DB.Model(&Registration{}).
		Where("username = ? AND event_id = ?", "ada", ev.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
