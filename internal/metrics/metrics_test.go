package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRPCCall(t *testing.T) {
	okBefore := testutil.ToFloat64(RPCCallsTotal.WithLabelValues("test-ledger", "eth_blockNumber", "ok"))
	errBefore := testutil.ToFloat64(RPCCallsTotal.WithLabelValues("test-ledger", "eth_blockNumber", "error"))

	RecordRPCCall("test-ledger", "eth_blockNumber", nil)
	RecordRPCCall("test-ledger", "eth_blockNumber", errors.New("connection refused"))
	RecordRPCCall("test-ledger", "eth_blockNumber", errors.New("connection refused"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(RPCCallsTotal.WithLabelValues("test-ledger", "eth_blockNumber", "ok")))
	assert.Equal(t, errBefore+2, testutil.ToFloat64(RPCCallsTotal.WithLabelValues("test-ledger", "eth_blockNumber", "error")))
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
