package trace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdobrica/Kaikei/common/trace"
)

func TestGenerateID_Format(t *testing.T) {
	id := trace.GenerateID()
	assert.True(t, strings.HasPrefix(id, "t_"))
	assert.Len(t, id, 34)
	assert.NotEqual(t, id, trace.GenerateID())
}

func TestBegin_CarriesTraceAndActor(t *testing.T) {
	ctx := trace.Begin(context.Background(), "@alice:example.com")
	assert.NotEmpty(t, trace.FromContext(ctx))
	assert.Equal(t, "@alice:example.com", trace.ActorFromContext(ctx))
}

func TestFromContext_Empty(t *testing.T) {
	assert.Empty(t, trace.FromContext(context.Background()))
	assert.Empty(t, trace.ActorFromContext(context.Background()))
}
