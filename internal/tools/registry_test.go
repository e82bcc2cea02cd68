package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDenyList(t *testing.T) {
	tests := []struct {
		name     string
		disabled []string
		readOnly bool
		tool     *fakeTool
		want     bool
	}{
		{"allowed", nil, false, newFakeTool("find", CategoryMongoDB, OperationRead), true},
		{"by category", []string{"atlas"}, false, newFakeTool("atlas-list-projects", CategoryAtlas, OperationRead), false},
		{"by operation type", []string{"delete"}, false, newFakeTool("drop-collection", CategoryMongoDB, OperationDelete), false},
		{"by name", []string{"count"}, false, newFakeTool("count", CategoryMongoDB, OperationRead), false},
		{"other name", []string{"count"}, false, newFakeTool("find", CategoryMongoDB, OperationRead), true},
		{"read only blocks writes", nil, true, newFakeTool("insert-many", CategoryMongoDB, OperationCreate), false},
		{"read only allows reads", nil, true, newFakeTool("find", CategoryMongoDB, OperationRead), true},
		{"read only allows connect", nil, true, newFakeTool("connect", CategoryMongoDB, OperationConnect), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(RegistryConfig{DisabledTools: tt.disabled, ReadOnly: tt.readOnly})

			assert.Equal(t, tt.want, r.Register(tt.tool))

			_, found := r.Lookup(tt.tool.name)
			assert.Equal(t, tt.want, found)
			if tt.want {
				assert.Len(t, r.Tools(), 1)
			} else {
				assert.Empty(t, r.Tools())
			}
		})
	}
}

func TestDeniedToolCannotBeCalled(t *testing.T) {
	r := NewRegistry(RegistryConfig{DisabledTools: []string{"mongodb"}})
	r.Register(newFakeTool("count", CategoryMongoDB, OperationRead))

	res := NewDispatcher(r, nil).Call(context.Background(), "count", nil)

	assert.True(t, res.IsError)
	assert.Contains(t, res.Text(), "count")
}

func TestRegistryIgnoresDuplicates(t *testing.T) {
	r := NewRegistry(RegistryConfig{})

	require.True(t, r.Register(newFakeTool("count", CategoryMongoDB, OperationRead)))
	assert.False(t, r.Register(newFakeTool("count", CategoryAtlas, OperationRead)))

	tool, ok := r.Lookup("count")
	require.True(t, ok)
	assert.Equal(t, CategoryMongoDB, tool.Category())
}

func TestRegistryToolsPreservesOrder(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(newFakeTool("b", CategoryMongoDB, OperationRead))
	r.Register(newFakeTool("a", CategoryAtlas, OperationMetadata))

	descs := r.Tools()
	require.Len(t, descs, 2)
	assert.Equal(t, "b", descs[0].Name)
	assert.Equal(t, "fake b", descs[0].Description)
	assert.JSONEq(t, `{"type":"object"}`, string(descs[0].Schema))
	assert.Equal(t, CategoryAtlas, descs[1].Category)
	assert.Equal(t, OperationMetadata, descs[1].OperationType)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestDecoratorsApplyOutermostFirst(t *testing.T) {
	var order []string
	mark := func(label string) Decorator {
		return func(next ExecuteFunc) ExecuteFunc {
			return func(ctx context.Context, args Arguments) (*Result, error) {
				order = append(order, label)
				return next(ctx, args)
			}
		}
	}
	tool := newFakeTool("find", CategoryMongoDB, OperationRead)
	tool.execute = func(context.Context, Arguments) (*Result, error) {
		order = append(order, "tool")
		return NewTextResult("ok"), nil
	}
	r := NewRegistry(RegistryConfig{})
	r.Register(tool, mark("outer"), mark("inner"))

	res := NewDispatcher(r, nil).Call(context.Background(), "find", nil)

	assert.False(t, res.IsError)
	assert.Equal(t, []string{"outer", "inner", "tool"}, order)
}

func TestOperationTypeMutates(t *testing.T) {
	assert.True(t, OperationCreate.Mutates())
	assert.True(t, OperationUpdate.Mutates())
	assert.True(t, OperationDelete.Mutates())
	assert.False(t, OperationRead.Mutates())
	assert.False(t, OperationMetadata.Mutates())
	assert.False(t, OperationConnect.Mutates())
}
