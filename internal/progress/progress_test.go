package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ events []domain.ProgressEvent }

func (r *recorder) Progress(_ context.Context, ev domain.ProgressEvent) { r.events = append(r.events, ev) }

type fakeBus struct {
	channel string
	payload []byte
	err     error
}

func (b *fakeBus) Publish(_ context.Context, ch string, p []byte) error {
	b.channel, b.payload = ch, p
	return b.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	msgs   []string
}

func (n *fakeNotifier) Notify(_ context.Context, _, title, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.msgs = append(n.msgs, msg)
	return nil
}

func TestFanoutDeliversToAll(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Fanout{a, nil, b}.Progress(context.Background(), domain.ProgressEvent{Stage: domain.StageTxSubmitted})
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	sink.Progress(context.Background(), domain.ProgressEvent{TraceID: "t1", Stage: domain.StageTxTimedOut, TxHash: "0xaa", Message: "still pending"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "still pending", line["msg"])
	assert.Equal(t, "0xaa", line["tx_hash"])
	assert.Equal(t, "progress", line["component"])
}

func TestBusSinkPublishesOnTraceChannel(t *testing.T) {
	bus := &fakeBus{}
	NewBusSink(bus, nil).Progress(context.Background(), domain.ProgressEvent{TraceID: "abc", Stage: domain.StageTxConfirmed})
	assert.Equal(t, "ch:progress:abc", bus.channel)

	var ev domain.ProgressEvent
	require.NoError(t, json.Unmarshal(bus.payload, &ev))
	assert.Equal(t, domain.StageTxConfirmed, ev.Stage)

	bus.err = errors.New("redis down")
	NewBusSink(bus, nil).Progress(context.Background(), domain.ProgressEvent{TraceID: "abc"})
}

func TestNotifierSinkFiltersStages(t *testing.T) {
	n := &fakeNotifier{}
	sink := NewNotifierSink(n, nil)
	sink.Progress(context.Background(), domain.ProgressEvent{TraceID: "0123456789", Stage: domain.StageTxSubmitted})
	sink.Progress(context.Background(), domain.ProgressEvent{
		TraceID: "0123456789", Stage: domain.StageSummary, Message: "Swapped 1 WETH", ExplorerURL: "https://basescan.org/tx/0x1",
	})
	sink.Wait()

	require.Len(t, n.titles, 1)
	assert.Equal(t, "swap 01234567: summary", n.titles[0])
	assert.Equal(t, "Swapped 1 WETH\nhttps://basescan.org/tx/0x1", n.msgs[0])
}
