package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgrepo "github.com/vncsmyrnk/livepoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/engine"
)

func createPoll(t *testing.T, app *testApp, title string, options ...string) domain.Poll {
	t.Helper()

	payload := map[string]any{
		"title":   title,
		"options": options,
	}
	body, _ := json.Marshal(payload)
	resp, err := http.Post(app.Server.URL+"/api/polls", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var poll domain.Poll
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&poll))
	return poll
}

func castVote(t *testing.T, app *testApp, poll domain.Poll, optionIdx int, fingerprint string) engine.Response {
	t.Helper()

	body, _ := json.Marshal(map[string]any{"option_id": poll.Options[optionIdx].ID})
	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/polls/%s/vote", app.Server.URL, poll.ID), bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fingerprint", fingerprint)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope engine.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func fetchPoll(t *testing.T, app *testApp, poll domain.Poll) domain.Poll {
	t.Helper()

	resp, err := http.Get(fmt.Sprintf("%s/api/polls/%s", app.Server.URL, poll.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.Poll
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	return got
}

// The favorite-color scenario: live reads see the counter's numbers
// immediately, the stored replica lags until the coalesced flush fires, and
// after the flush both match exactly.
func TestVotingAndFlushReconciliation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	poll := createPoll(t, app, "favorite color", "red", "blue")

	envelope := castVote(t, app, poll, 0, "fp-voter-1")
	require.True(t, envelope.Success, envelope.Error)
	assert.Equal(t, int64(1), envelope.Data.OptionVoteCount)
	assert.False(t, envelope.Data.AlreadyVoted)

	envelope = castVote(t, app, poll, 1, "fp-voter-2")
	require.True(t, envelope.Success, envelope.Error)
	assert.Equal(t, int64(2), envelope.Data.TotalVotes)

	// Read path serves the live counter.
	got := fetchPoll(t, app, poll)
	assert.Equal(t, int64(2), got.TotalVotes)
	assert.Equal(t, int64(1), got.Options[0].VoteCount)
	assert.Equal(t, int64(1), got.Options[1].VoteCount)

	// The replica may legitimately still be stale right after the votes;
	// after the flush it must match the counter exactly.
	require.Eventually(t, func() bool {
		var total int64
		err := app.DB.QueryRow("SELECT total_votes FROM polls WHERE id = $1", poll.ID).Scan(&total)
		return err == nil && total == 2
	}, 5*time.Second, 50*time.Millisecond)

	var countA, countB int64
	require.NoError(t, app.DB.QueryRow("SELECT vote_count FROM options WHERE id = $1", poll.Options[0].ID).Scan(&countA))
	require.NoError(t, app.DB.QueryRow("SELECT vote_count FROM options WHERE id = $1", poll.Options[1].ID).Scan(&countB))
	assert.Equal(t, int64(1), countA)
	assert.Equal(t, int64(1), countB)
}

func TestDuplicateVoteIsDeclined(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	poll := createPoll(t, app, "best editor", "vim", "emacs")

	envelope := castVote(t, app, poll, 0, "fp-same")
	require.True(t, envelope.Success, envelope.Error)
	require.False(t, envelope.Data.AlreadyVoted)

	// Same address and fingerprint, other option: declined with counts.
	envelope = castVote(t, app, poll, 1, "fp-same")
	require.True(t, envelope.Success, envelope.Error)
	assert.True(t, envelope.Data.AlreadyVoted)
	assert.Equal(t, int64(1), envelope.Data.TotalVotes)

	got := fetchPoll(t, app, poll)
	assert.Equal(t, int64(1), got.TotalVotes)
}

func TestVoteWritesAuditRecord(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	poll := createPoll(t, app, "audited poll", "a", "b")

	body, _ := json.Marshal(map[string]any{"option_id": poll.Options[0].ID})
	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/polls/%s/vote", app.Server.URL, poll.ID), bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fingerprint", "fp-audited")
	voterUserID := uuid.New()
	req.AddCookie(&http.Cookie{Name: "access_token", Value: createToken(t, voterUserID)})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The audit append is asynchronous and best-effort.
	require.Eventually(t, func() bool {
		var count int
		err := app.DB.QueryRow("SELECT COUNT(*) FROM votes WHERE poll_id = $1 AND fingerprint = $2", poll.ID, "fp-audited").Scan(&count)
		return err == nil && count == 1
	}, 5*time.Second, 50*time.Millisecond)

	var userID *string
	require.NoError(t, app.DB.QueryRow("SELECT user_id::text FROM votes WHERE poll_id = $1", poll.ID).Scan(&userID))
	require.NotNil(t, userID)
	assert.Equal(t, voterUserID.String(), *userID)
}

func TestCounterSurvivesRestartWithPrivateState(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	poll := createPoll(t, app, "restart poll", "x", "y")
	envelope := castVote(t, app, poll, 0, "fp-restart")
	require.True(t, envelope.Success, envelope.Error)

	// Simulate eviction: a new registry over the same private store, with
	// a writer/audit pointing at the same database.
	ctx := t.Context()
	require.NoError(t, app.Registry.Close(ctx))

	restarted := engine.NewRegistry(app.Store, pgrepo.NewCountWriter(app.DB), pgrepo.NewVoteRepository(app.DB))
	defer restarted.Close(ctx)

	snap, err := restarted.GetState(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Total)
}
