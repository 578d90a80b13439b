package strand

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strandworks/strand/pkg/strand/provider"
	"github.com/strandworks/strand/pkg/strand/spec"
)

// mustLoad parses an inline YAML description for test fixtures.
func mustLoad(t *testing.T, yaml string) *spec.GraphSpec {
	t.Helper()
	g, err := spec.Load(strings.NewReader(yaml), "")
	require.NoError(t, err)
	return g
}

// mustCompile loads and compiles a description with the given options.
func mustCompile(t *testing.T, yaml string, opts ...Option) *Runtime {
	t.Helper()
	rt, err := Compile(mustLoad(t, yaml), opts...)
	require.NoError(t, err)
	return rt
}

// gateGenerator blocks inside Generate until released, so tests can
// observe a run mid-flight.
type gateGenerator struct {
	entered chan struct{}
	release chan struct{}
}

func newGateGenerator() *gateGenerator {
	return &gateGenerator{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (g *gateGenerator) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.GenerateResponse, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return &provider.GenerateResponse{Content: "released"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// toolThenFailGenerator requests one tool call, then fails every later
// Generate. Lets tests fail an agent node midway through its loop.
type toolThenFailGenerator struct {
	mu    sync.Mutex
	tool  string
	calls int
}

func (g *toolThenFailGenerator) Generate(_ context.Context, _ provider.GenerateRequest) (*provider.GenerateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls == 1 {
		return &provider.GenerateResponse{ToolCalls: []provider.ToolCall{{Name: g.tool}}}, nil
	}
	return nil, errors.New("generation failed")
}
