package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge/toolflow/ledger"
	ledgerinmem "github.com/appforge/toolflow/ledger/inmem"
	"github.com/appforge/toolflow/tool"
)

// countingOrigin counts how many times its Tools method runs.
type countingOrigin struct {
	calls atomic.Int64
	descs []tool.Descriptor
	err   error
	// failFirst makes only the first call fail.
	failFirst bool
}

func (o *countingOrigin) Name() string { return "counting" }

func (o *countingOrigin) Tools(context.Context) ([]tool.Descriptor, error) {
	n := o.calls.Add(1)
	if o.err != nil && (!o.failFirst || n == 1) {
		return nil, o.err
	}
	return o.descs, nil
}

func echoTool(name, category string) tool.Descriptor {
	return tool.Descriptor{
		Name:     name,
		Category: category,
		Executor: tool.ExecutorFunc(func(_ context.Context, params map[string]any) (any, error) {
			return params["input"], nil
		}),
	}
}

func TestInitializeRunsAssemblyOnce(t *testing.T) {
	origin := &countingOrigin{descs: []tool.Descriptor{echoTool("echo", "data")}}
	c := New(Options{Origins: []Origin{origin}})

	const callers = 50
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), origin.calls.Load())

	tools, err := c.GetAllTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
}

func TestInitializeFailureThenRetry(t *testing.T) {
	origin := &countingOrigin{
		descs:     []tool.Descriptor{echoTool("echo", "data")},
		err:       errors.New("store down"),
		failFirst: true,
	}
	c := New(Options{Origins: []Origin{origin}})

	err := c.Initialize(context.Background())
	require.Error(t, err)
	var ierr *InitializationError
	require.True(t, errors.As(err, &ierr))
	require.Equal(t, "counting", ierr.Origin)

	// The failed attempt left the catalog uninitialized; the next call
	// retries and succeeds.
	require.NoError(t, c.Initialize(context.Background()))
	require.Equal(t, int64(2), origin.calls.Load())
}

func TestGetToolAbsent(t *testing.T) {
	c := New(Options{})
	_, ok, err := c.GetTool(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetToolsByCategoryCaseInsensitive(t *testing.T) {
	c := New(Options{Origins: []Origin{&StaticOrigin{
		OriginName: "builtin",
		Descriptors: []tool.Descriptor{
			echoTool("search", "Web"),
			echoTool("fetch", "web"),
			echoTool("csv", "data"),
		},
	}}})

	web, err := c.GetToolsByCategory(context.Background(), "WEB")
	require.NoError(t, err)
	assert.Len(t, web, 2)
	assert.Contains(t, web, "search")
	assert.Contains(t, web, "fetch")
}

func TestRegisterOverwritesAndSurvivesInit(t *testing.T) {
	c := New(Options{Origins: []Origin{&StaticOrigin{
		OriginName:  "builtin",
		Descriptors: []tool.Descriptor{echoTool("echo", "data")},
	}}})

	// Registration before initialization is merged in afterwards.
	replacement := tool.Descriptor{
		Name:     "echo",
		Category: "custom",
		Executor: tool.ExecutorFunc(func(context.Context, map[string]any) (any, error) {
			return "replaced", nil
		}),
	}
	require.NoError(t, c.Register(replacement))

	d, ok, err := c.GetTool(context.Background(), "echo")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "custom", d.Category)

	// Last writer wins unconditionally.
	require.NoError(t, c.Register(echoTool("echo", "data")))
	d, ok, err = c.GetTool(context.Background(), "echo")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "data", d.Category)
}

func TestRegisterRejectsIncompleteDescriptor(t *testing.T) {
	c := New(Options{})
	require.Error(t, c.Register(tool.Descriptor{}))
	require.Error(t, c.Register(tool.Descriptor{Name: "x"}))
}

func TestExecuteToolSuccessLogsRecord(t *testing.T) {
	led := ledgerinmem.New()
	c := New(Options{
		Origins: []Origin{&StaticOrigin{OriginName: "builtin", Descriptors: []tool.Descriptor{echoTool("echo", "data")}}},
		Ledger:  led,
	})

	got, err := c.ExecuteTool(context.Background(), "echo", map[string]any{"input": "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi", got)

	recs, err := led.ListExecutions(context.Background(), "echo", 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ledger.StatusSuccess, recs[0].Status)
	assert.Equal(t, "echo", recs[0].ToolName)
	require.NotNil(t, recs[0].ExecutionTimeMs)

	stats, err := led.Stats(context.Background(), "echo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalExecutions)
	assert.Equal(t, int64(1), stats.SuccessfulExecutions)
}

func TestExecuteToolFailureLogsErrorRecord(t *testing.T) {
	led := ledgerinmem.New()
	boom := tool.Descriptor{
		Name:     "boom",
		Category: "data",
		Executor: tool.ExecutorFunc(func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("kaboom")
		}),
	}
	c := New(Options{
		Origins: []Origin{&StaticOrigin{OriginName: "builtin", Descriptors: []tool.Descriptor{boom}}},
		Ledger:  led,
	})

	_, err := c.ExecuteTool(context.Background(), "boom", nil)
	require.Error(t, err)
	var eerr *tool.ExecutionError
	require.True(t, errors.As(err, &eerr))
	require.Equal(t, "boom", eerr.Tool)

	recs, err := led.ListExecutions(context.Background(), "boom", 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ledger.StatusError, recs[0].Status)
	assert.Contains(t, recs[0].ErrorMessage, "kaboom")

	stats, err := led.Stats(context.Background(), "boom")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FailedExecutions)
}

func TestExecuteToolMissingToolIsDistinctFailure(t *testing.T) {
	c := New(Options{})
	_, err := c.ExecuteTool(context.Background(), "ghost", nil)
	require.ErrorIs(t, err, tool.ErrNotFound)
}

func TestExecuteToolValidatesParameters(t *testing.T) {
	schema, err := tool.CompileSchema([]byte(`{
		"type": "object",
		"properties": {"n": {"type": "number"}},
		"required": ["n"]
	}`))
	require.NoError(t, err)

	strict := tool.Descriptor{
		Name:   "strict",
		Schema: schema,
		Executor: tool.ExecutorFunc(func(context.Context, map[string]any) (any, error) {
			return "ok", nil
		}),
	}
	led := ledgerinmem.New()
	c := New(Options{
		Origins: []Origin{&StaticOrigin{OriginName: "builtin", Descriptors: []tool.Descriptor{strict}}},
		Ledger:  led,
	})

	_, err = c.ExecuteTool(context.Background(), "strict", map[string]any{})
	require.Error(t, err)
	var verr *tool.ValidationError
	require.True(t, errors.As(err, &verr))

	// Validation failures are recorded too.
	recs, err := led.ListExecutions(context.Background(), "strict", 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ledger.StatusError, recs[0].Status)
}

func TestExecuteToolLedgerUnavailableDoesNotFailExecution(t *testing.T) {
	c := New(Options{
		Origins: []Origin{&StaticOrigin{OriginName: "builtin", Descriptors: []tool.Descriptor{echoTool("echo", "data")}}},
		Ledger:  failingLedger{},
	})

	got, err := c.ExecuteTool(context.Background(), "echo", map[string]any{"input": "still works"})
	require.NoError(t, err)
	require.Equal(t, "still works", got)
}

// failingLedger simulates an unreachable store.
type failingLedger struct{}

func (failingLedger) LogExecution(context.Context, ledger.Input) (string, error) {
	return "", ledger.ErrUnavailable
}

func (failingLedger) GetExecution(context.Context, string) (*ledger.Record, error) {
	return nil, ledger.ErrUnavailable
}

func (failingLedger) ListExecutions(context.Context, string, int, int) ([]*ledger.Record, error) {
	return nil, ledger.ErrUnavailable
}

func (failingLedger) ListExecutionsByThread(context.Context, string, int, int) ([]*ledger.Record, error) {
	return nil, ledger.ErrUnavailable
}

func (failingLedger) ListExecutionsByAgent(context.Context, string, int, int) ([]*ledger.Record, error) {
	return nil, ledger.ErrUnavailable
}

func (failingLedger) Stats(context.Context, string) (ledger.Stats, error) {
	return ledger.Stats{}, ledger.ErrUnavailable
}
