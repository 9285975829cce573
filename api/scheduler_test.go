package api

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/npl-provision/conventional"
	"github.com/warp/npl-provision/provision"
)

func TestScheduler_RunsPreviousMonth(t *testing.T) {
	env := newTestEnv(t)
	env.writeMarch(t)
	log, _ := test.NewNullLogger()

	s, err := NewScheduler(env.handler, "0 6 1 * *", []string{conventional.Name}, log)
	require.NoError(t, err)
	s.Now = func() time.Time { return time.Date(2025, time.April, 1, 6, 0, 0, 0, time.UTC) }

	// WHEN: the April firing runs
	assert.Equal(t, provision.Period{Year: 2025, Month: time.March}, s.Period())
	assert.Equal(t, 1, s.RunNow(context.Background()))

	// THEN: March is provisioned and published
	rec := env.do(t, http.MethodGet, "/api/runs?portfolio=conventional", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]RunDTO](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "schedule", runs[0].Trigger)
	assert.Equal(t, "2025-03", runs[0].Period)
	assert.FileExists(t, filepath.Join(env.out, "conventional-CAPCATE0325.csv"))
}

func TestScheduler_FailedPortfolioDoesNotStopOthers(t *testing.T) {
	env := newTestEnv(t)
	log, _ := test.NewNullLogger()

	// GIVEN: no feeds at all
	s, err := NewScheduler(env.handler, "@monthly", []string{conventional.Name}, log)
	require.NoError(t, err)
	s.Now = func() time.Time { return time.Date(2025, time.April, 1, 6, 0, 0, 0, time.UTC) }

	assert.Equal(t, 0, s.RunNow(context.Background()))
}

func TestScheduler_StartStop(t *testing.T) {
	env := newTestEnv(t)
	log, _ := test.NewNullLogger()

	s, err := NewScheduler(env.handler, "0 6 1 * *", []string{conventional.Name}, log)
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero())

	s.Start()
	next := s.Next()
	assert.Equal(t, 1, next.Day())
	assert.Equal(t, 6, next.Hour())
	s.Stop()
	s.Stop()
}

func TestNewScheduler_Invalid(t *testing.T) {
	env := newTestEnv(t)
	log, _ := test.NewNullLogger()

	_, err := NewScheduler(env.handler, "every month", []string{conventional.Name}, log)
	assert.Error(t, err)
	_, err = NewScheduler(env.handler, "0 6 1 * *", nil, log)
	assert.Error(t, err)
	_, err = NewScheduler(env.handler, "0 6 1 * *", []string{"leasing"}, log)
	assert.ErrorIs(t, err, provision.ErrPortfolioNotFound)
}
