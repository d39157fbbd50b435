package relay

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/kafkalog/forwarder"
)

func TestLineSource_ReadsUntilEOF(t *testing.T) {
	sub := &stubSubmitter{}
	eof := make(chan struct{})
	input := "{\"level\":\"info\",\"n\":1}\n\nplain text line\n{not json\n"

	src := NewLineSource(strings.NewReader(input), sub, WithOnEOF(func() { close(eof) }))
	require.NoError(t, src.Start(context.Background()))

	select {
	case <-eof:
	default:
		t.Fatal("onEOF not called")
	}

	require.Equal(t, 3, sub.count())
	assert.Equal(t, forwarder.Record{"level": "info", "n": float64(1)}, sub.records[0])
	assert.Equal(t, forwarder.Record{"message": "plain text line"}, sub.records[1])
	assert.Equal(t, forwarder.Record{"message": "{not json"}, sub.records[2])
	assert.Equal(t, int64(3), src.Lines())
	assert.Equal(t, int64(0), src.Rejected())
	assert.Equal(t, "stdin", src.Name())
}

func TestLineSource_CountsRejected(t *testing.T) {
	sub := &stubSubmitter{err: errors.New("closed")}
	src := NewLineSource(strings.NewReader("a\nb\n"), sub, WithSourceName("pipe"))

	require.NoError(t, src.Start(context.Background()))
	assert.Equal(t, int64(2), src.Rejected())
	assert.Equal(t, "pipe", src.Addr())
}

func TestLineSource_LineTooLong(t *testing.T) {
	sub := &stubSubmitter{}
	src := NewLineSource(strings.NewReader(strings.Repeat("x", 64)+"\n"), sub, WithMaxLineBytes(16))

	err := src.Start(context.Background())
	assert.ErrorIs(t, err, bufio.ErrTooLong)
	assert.Equal(t, 0, sub.count())
}

func TestLineSource_SmallLineLimit(t *testing.T) {
	sub := &stubSubmitter{}
	input := strings.Repeat("y", 32) + "\n" + strings.Repeat("x", 200) + "\n"
	src := NewLineSource(strings.NewReader(input), sub, WithMaxLineBytes(64))

	err := src.Start(context.Background())
	assert.ErrorIs(t, err, bufio.ErrTooLong)
	assert.Equal(t, 1, sub.count())
	assert.Equal(t, int64(1), src.Lines())
}

func TestLineSource_Stop(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	sub := &stubSubmitter{}
	src := NewLineSource(pr, sub)

	errCh := make(chan error, 1)
	go func() { errCh <- src.Start(context.Background()) }()

	_, err := io.WriteString(pw, "first\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sub.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, src.Stop(context.Background()))
	require.NoError(t, src.Stop(context.Background()))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("source did not stop")
	}
}

func TestLineSource_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	src := NewLineSource(pr, &stubSubmitter{})

	errCh := make(chan error, 1)
	go func() { errCh <- src.Start(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("source did not stop")
	}
}
