package di_test

import (
	"testing"

	"github.com/gocrud/ioc/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphA struct{}
type graphB struct{}
type graphC struct{}

func TestValidateDetectsFactoryCycle(t *testing.T) {
	c := di.New()
	require.NoError(t, di.RegisterFactory[*graphA](c, func(*graphB) *graphA { return &graphA{} }))
	require.NoError(t, di.RegisterFactory[*graphB](c, func(*graphC) *graphB { return &graphB{} }))
	require.NoError(t, di.RegisterFactory[*graphC](c, func(*graphA, *di.Container) *graphC { return &graphC{} }))

	err := c.Validate()
	var ce *di.CircularDependencyError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Path, 4)
	assert.Equal(t, ce.Path[0], ce.Path[3])
}

func TestValidateDetectsFieldCycleThroughUnregisteredTypes(t *testing.T) {
	c := di.New()
	require.NoError(t, di.Register[*cycleA](c))

	var ce *di.CircularDependencyError
	assert.ErrorAs(t, c.Validate(), &ce)
}

func TestValidateAcceptsAcyclicGraph(t *testing.T) {
	c := di.New()
	require.NoError(t, di.RegisterType[Logger, *ConsoleLogger](c))
	require.NoError(t, di.Register[*ServiceWithLogger](c))
	require.NoError(t, di.Register[*ServiceWithOptional](c))
	require.NoError(t, di.RegisterFactory[*pluginHost](c, func(plugins []Plugin) *pluginHost {
		return &pluginHost{Plugins: plugins}
	}))

	assert.NoError(t, c.Validate())

	require.NoError(t, c.Dispose())
	assert.ErrorIs(t, c.Validate(), di.ErrDisposed)
}
