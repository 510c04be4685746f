package session

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tidekv/internal/keyspace"
	"tidekv/internal/resp"
	"tidekv/internal/serverinfo"
)

// harness wires a Session to an in-memory request buffer and captures every
// reply it writes, decoding them generically so assertions don't have to
// hand-parse RESP.
type harness struct {
	t    *testing.T
	ks   *keyspace.Keyspace
	sess *Session
	out  *bytes.Buffer
}

func newHarness(t *testing.T, requests string) *harness {
	t.Helper()
	ks := keyspace.New()
	t.Cleanup(ks.Close)

	var out bytes.Buffer
	r := resp.NewReader(bytes.NewReader([]byte(requests)))
	w := resp.NewWriter(&out)
	info := serverinfo.New(":6380", "")
	sess := New(r, w, ks, info, "test", nil)
	return &harness{t: t, ks: ks, sess: sess, out: &out}
}

// run reads and dispatches exactly n commands from the request script and
// returns the first n decoded replies in order.
func (h *harness) run(n int) []resp.Reply {
	h.t.Helper()
	for i := 0; i < n; i++ {
		err := h.sess.dispatch(mustNext(h.t, h.sess))
		require.NoError(h.t, err)
	}
	return h.decodeReplies(n)
}

func mustNext(t *testing.T, s *Session) resp.Command {
	t.Helper()
	cmd, err := s.r.ReadCommand()
	require.NoError(t, err)
	return cmd
}

func (h *harness) decodeReplies(n int) []resp.Reply {
	h.t.Helper()
	br := bufio.NewReader(bytes.NewReader(h.out.Bytes()))
	replies := make([]resp.Reply, 0, n)
	for i := 0; i < n; i++ {
		reply, err := resp.ReadReply(br)
		require.NoError(h.t, err)
		replies = append(replies, reply)
	}
	return replies
}

func buildRequest(cmds ...[]string) string {
	var b bytes.Buffer
	for _, cmd := range cmds {
		b.WriteString("*")
		b.WriteString(itoaHelper(len(cmd)))
		b.WriteString("\r\n")
		for _, arg := range cmd {
			b.WriteString("$")
			b.WriteString(itoaHelper(len(arg)))
			b.WriteString("\r\n")
			b.WriteString(arg)
			b.WriteString("\r\n")
		}
	}
	return b.String()
}

func itoaHelper(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestPing_NoArgs(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"PING"}))
	replies := h.run(1)
	require.Equal(t, resp.ReplySimpleString, replies[0].Type)
	require.Equal(t, "PONG", replies[0].Str)
}

func TestPing_IgnoresArguments(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"PING", "Hello"}))
	replies := h.run(1)
	require.Equal(t, resp.ReplySimpleString, replies[0].Type)
	require.Equal(t, "PONG", replies[0].Str)
}

func TestSetGet_RoundTrip(t *testing.T) {
	h := newHarness(t, buildRequest(
		[]string{"SET", "k", "v"},
		[]string{"GET", "k"},
	))
	replies := h.run(2)
	require.Equal(t, "OK", replies[0].Str)
	require.Equal(t, "v", replies[1].Str)
	require.False(t, replies[1].IsNull)
}

func TestSet_WithPX_ExpiresAfterWindow(t *testing.T) {
	h := newHarness(t, buildRequest(
		[]string{"SET", "k", "v", "PX", "100"},
		[]string{"GET", "k"},
	))
	replies := h.run(2)
	require.Equal(t, "OK", replies[0].Str)
	require.Equal(t, "v", replies[1].Str)

	time.Sleep(150 * time.Millisecond)

	_, ok := h.ks.Get("k")
	require.False(t, ok, "key must be gone once its PX window has elapsed")
}

func TestSet_UnknownOption(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"SET", "k", "v", "XX", "100"}))
	replies := h.run(1)
	require.Equal(t, resp.ReplyError, replies[0].Type)
	require.Equal(t, "ERR unknown option for 'set' command", replies[0].Str)
}

func TestSet_InvalidExpireTime(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"SET", "k", "v", "PX", "notanumber"}))
	replies := h.run(1)
	require.Equal(t, "ERR invalid expire time", replies[0].Str)
}

func TestSet_ThreeArgsWithPX_MissingMillisIsInvalidExpireTime(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"SET", "k", "v", "PX"}))
	replies := h.run(1)
	require.Equal(t, resp.ReplyError, replies[0].Type)
	require.Equal(t, "ERR invalid expire time", replies[0].Str)
}

func TestSet_ThreeArgsWithUnrecognizedOption_IsUnknownOption(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"SET", "k", "v", "XX"}))
	replies := h.run(1)
	require.Equal(t, resp.ReplyError, replies[0].Type)
	require.Equal(t, "ERR unknown option for 'set' command", replies[0].Str)
}

func TestSet_WrongArity(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"SET", "k"}))
	replies := h.run(1)
	require.Equal(t, "ERR wrong number of arguments for 'set' command", replies[0].Str)
}

func TestGet_MissingKeyReturnsNullBulk(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"GET", "nope"}))
	replies := h.run(1)
	require.True(t, replies[0].IsNull)
}

func TestIncr_CreatesAtOne(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"INCR", "n"}))
	replies := h.run(1)
	require.Equal(t, resp.ReplyInteger, replies[0].Type)
	require.Equal(t, int64(1), replies[0].Int)
}

func TestIncr_Monotonic(t *testing.T) {
	h := newHarness(t, buildRequest(
		[]string{"INCR", "n"},
		[]string{"INCR", "n"},
	))
	replies := h.run(2)
	require.Equal(t, int64(1), replies[0].Int)
	require.Equal(t, int64(2), replies[1].Int)
}

func TestIncr_NonIntegerLeavesValueUnchanged(t *testing.T) {
	h := newHarness(t, buildRequest(
		[]string{"SET", "n", "abc"},
		[]string{"INCR", "n"},
		[]string{"GET", "n"},
	))
	replies := h.run(3)
	require.Equal(t, "OK", replies[0].Str)
	require.Equal(t, resp.ReplyError, replies[1].Type)
	require.Equal(t, "ERR value is not an integer or out of range", replies[1].Str)
	require.Equal(t, "abc", replies[2].Str)
}

func TestIncr_PreservesExpiry(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"INCR", "n"}))
	exp := time.Now().Add(time.Hour)
	h.ks.Insert("n", keyspace.Record{Payload: "5", Expiry: exp})

	replies := h.run(1)
	require.Equal(t, int64(6), replies[0].Int)

	v, ok := h.ks.Get("n")
	require.True(t, ok)
	require.Equal(t, "6", v)

	var got time.Time
	h.ks.Mutate("n", func(rec keyspace.Record, _ bool) keyspace.MutateResult {
		got = rec.Expiry
		return keyspace.MutateResult{Action: keyspace.Unchanged}
	})
	require.True(t, got.Equal(exp), "INCR must keep the expiry set before it")
}

func TestMultiExec_ReplaysInOrder(t *testing.T) {
	h := newHarness(t, buildRequest(
		[]string{"MULTI"},
		[]string{"SET", "x", "1"},
		[]string{"INCR", "x"},
		[]string{"EXEC"},
	))
	replies := h.run(4)

	require.Equal(t, "OK", replies[0].Str)
	require.Equal(t, "QUEUED", replies[1].Str)
	require.Equal(t, "QUEUED", replies[2].Str)

	batch := replies[3]
	require.Equal(t, resp.ReplyArray, batch.Type)
	require.Len(t, batch.Array, 2)
	require.Equal(t, "OK", batch.Array[0].Str)
	require.Equal(t, int64(2), batch.Array[1].Int)

	v, ok := h.ks.Get("x")
	require.True(t, ok)
	require.Equal(t, "2", v)
}

func TestExec_EmptyQueueWritesEmptyArray(t *testing.T) {
	h := newHarness(t, buildRequest(
		[]string{"MULTI"},
		[]string{"EXEC"},
	))
	replies := h.run(2)
	require.Equal(t, "OK", replies[0].Str)
	require.Equal(t, resp.ReplyArray, replies[1].Type)
	require.Len(t, replies[1].Array, 0)
}

func TestDiscard_DropsQueuedMutations(t *testing.T) {
	h := newHarness(t, buildRequest(
		[]string{"MULTI"},
		[]string{"SET", "x", "9"},
		[]string{"DISCARD"},
		[]string{"GET", "x"},
	))
	replies := h.run(4)
	require.Equal(t, "OK", replies[0].Str)
	require.Equal(t, "QUEUED", replies[1].Str)
	require.Equal(t, "OK", replies[2].Str)
	require.True(t, replies[3].IsNull)
}

func TestQueuedCommandsNeverTouchKeyspace(t *testing.T) {
	h := newHarness(t, buildRequest(
		[]string{"MULTI"},
		[]string{"SET", "x", "9"},
	))
	h.run(2)
	_, ok := h.ks.Get("x")
	require.False(t, ok, "SET inside the queue must not mutate the keyspace before EXEC")
}

func TestExecWithoutMulti(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"EXEC"}))
	replies := h.run(1)
	require.Equal(t, resp.ReplyError, replies[0].Type)
	require.Equal(t, "ERR EXEC without MULTI", replies[0].Str)
}

func TestDiscardWithoutMulti(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"DISCARD"}))
	replies := h.run(1)
	require.Equal(t, "ERR DISCARD without MULTI", replies[0].Str)
}

func TestNestedMultiRejectedQueueIntact(t *testing.T) {
	h := newHarness(t, buildRequest(
		[]string{"MULTI"},
		[]string{"SET", "a", "1"},
		[]string{"MULTI"},
		[]string{"EXEC"},
	))
	replies := h.run(4)
	require.Equal(t, "OK", replies[0].Str)
	require.Equal(t, "QUEUED", replies[1].Str)
	require.Equal(t, "ERR MULTI calls can not be nested", replies[2].Str)

	// The queue from before the rejected MULTI is still replayed.
	batch := replies[3]
	require.Equal(t, resp.ReplyArray, batch.Type)
	require.Len(t, batch.Array, 1)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"BOGUS"}))
	replies := h.run(1)
	require.Equal(t, resp.ReplyError, replies[0].Type)
	require.Contains(t, replies[0].Str, "unknown command")
}

func TestCommandStub(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"COMMAND"}))
	replies := h.run(1)
	require.Equal(t, resp.ReplyArray, replies[0].Type)
	require.Len(t, replies[0].Array, 0)
}

func TestInfoReplication(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"INFO", "replication"}))
	replies := h.run(1)
	require.Contains(t, replies[0].Str, "# Replication")
	require.Contains(t, replies[0].Str, "role:master")
}

func TestInfoUnsupportedSection(t *testing.T) {
	h := newHarness(t, buildRequest([]string{"INFO", "memory"}))
	replies := h.run(1)
	require.Equal(t, "ERR unsupported INFO section", replies[0].Str)
}

func TestDel_CountsRemoved(t *testing.T) {
	h := newHarness(t, buildRequest(
		[]string{"SET", "a", "1"},
		[]string{"DEL", "a", "b"},
	))
	replies := h.run(2)
	require.Equal(t, "OK", replies[0].Str)
	require.Equal(t, int64(1), replies[1].Int)
}
