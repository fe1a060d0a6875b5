package di_test

import (
	"errors"
	"iter"
	"slices"
	"testing"

	"github.com/gocrud/ioc/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pluginNames(plugins []Plugin) []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name()
	}
	return names
}

func TestSliceResolvesNamedRegistrations(t *testing.T) {
	root := di.New()
	require.NoError(t, di.RegisterInstance(root, plugin("a"), di.WithName("a")))
	require.NoError(t, di.RegisterInstance(root, plugin("b"), di.WithName("b")))
	require.NoError(t, di.RegisterInstance(root, plugin("c"), di.WithName("c")))
	require.NoError(t, di.RegisterInstance(root, plugin("default")))

	plugins, err := di.Resolve[[]Plugin](root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, pluginNames(plugins))

	child := root.CreateChildContainer("child")
	require.NoError(t, di.RegisterInstance(child, plugin("d"), di.WithName("d")))

	plugins, err = di.Resolve[[]Plugin](child)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, pluginNames(plugins))

	plugins, err = di.Resolve[[]Plugin](root)
	require.NoError(t, err)
	assert.Len(t, plugins, 3)
}

func TestSeqIncludesDefaultRegistration(t *testing.T) {
	c := di.New()
	require.NoError(t, di.RegisterInstance(c, plugin("default")))
	require.NoError(t, di.RegisterInstance(c, plugin("a"), di.WithName("a")))

	seq, err := di.Resolve[iter.Seq[Plugin]](c)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "a"}, pluginNames(slices.Collect(seq)))

	// 提前停止迭代
	var first []string
	for p := range seq {
		first = append(first, p.Name())
		break
	}
	assert.Equal(t, []string{"default"}, first)
}

func TestSliceChildOverrideReplacesAncestorEntry(t *testing.T) {
	root := di.New()
	require.NoError(t, di.RegisterInstance(root, plugin("a"), di.WithName("a")))
	require.NoError(t, di.RegisterInstance(root, plugin("b"), di.WithName("b")))

	child := root.CreateChildContainer("child")
	require.NoError(t, di.RegisterInstance(child, plugin("b-child"), di.WithName("b")))

	plugins := di.MustResolve[[]Plugin](child)
	assert.Equal(t, []string{"a", "b-child"}, pluginNames(plugins))
}

func TestSliceSeesLaterRegistrations(t *testing.T) {
	c := di.New()
	require.NoError(t, di.RegisterInstance(c, plugin("a"), di.WithName("a")))
	assert.Len(t, di.MustResolve[[]Plugin](c), 1)

	require.NoError(t, di.RegisterInstance(c, plugin("b"), di.WithName("b")))
	assert.Equal(t, []string{"a", "b"}, pluginNames(di.MustResolve[[]Plugin](c)))

	// 替换不改变顺序
	require.NoError(t, di.RegisterInstance(c, plugin("a2"), di.WithName("a")))
	assert.Equal(t, []string{"a2", "b"}, pluginNames(di.MustResolve[[]Plugin](c)))
}

func TestSliceSkipsFailingElements(t *testing.T) {
	c := di.New()
	require.NoError(t, di.RegisterInstance(c, plugin("a"), di.WithName("a")))
	require.NoError(t, di.RegisterFactory[Plugin](c, func() (Plugin, error) {
		return nil, errors.New("broken")
	}, di.WithName("broken"), di.WithSingleton()))
	require.NoError(t, di.RegisterInstance(c, plugin("c"), di.WithName("c")))

	plugins, err := di.Resolve[[]Plugin](c)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, pluginNames(plugins))

	// 失败成员的锁已释放
	_, err = di.ResolveNamed[Plugin](c, "broken")
	assert.EqualError(t, err, "broken")
}

func TestSliceIncludesAssignableTypes(t *testing.T) {
	c := di.New()
	require.NoError(t, di.RegisterInstance(c, &namedPlugin{name: "concrete"}, di.WithName("concrete")))
	require.NoError(t, di.RegisterInstance(c, &Database{}, di.WithName("db")))

	assert.Equal(t, []string{"concrete"}, pluginNames(di.MustResolve[[]Plugin](c)))
}

func TestEmptyAggregation(t *testing.T) {
	c := di.New()

	plugins, err := di.Resolve[[]Plugin](c)
	require.NoError(t, err)
	assert.Empty(t, plugins)

	seq, err := di.Resolve[iter.Seq[Plugin]](c)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(seq))
}

func TestAggregationFallsBackToElement(t *testing.T) {
	c := di.New()
	require.NoError(t, di.RegisterInstance(c, plugin("only-default")))

	// 没有命名注册时解析元素本身
	plugins := di.MustResolve[[]Plugin](c)
	assert.Equal(t, []string{"only-default"}, pluginNames(plugins))

	// 未注册的具体类型同样可以构造
	dbs := di.MustResolve[[]*Database](c)
	assert.Len(t, dbs, 1)
}

type pluginHost struct {
	Plugins []Plugin `di:""`
}

func TestAggregationAsDependency(t *testing.T) {
	c := di.New()
	require.NoError(t, di.RegisterInstance(c, plugin("a"), di.WithName("a")))
	require.NoError(t, di.RegisterInstance(c, plugin("b"), di.WithName("b")))

	host := di.MustResolve[*pluginHost](c)
	assert.Equal(t, []string{"a", "b"}, pluginNames(host.Plugins))

	factoryHost := func(plugins ...Plugin) int { return len(plugins) }
	require.NoError(t, di.RegisterFactory[int](c, factoryHost))
	assert.Equal(t, 2, di.MustResolve[int](c))
}

type PluginList []Plugin

func TestNamedSliceType(t *testing.T) {
	c := di.New()
	require.NoError(t, di.RegisterInstance(c, plugin("a"), di.WithName("a")))

	list := di.MustResolve[PluginList](c)
	assert.Equal(t, []string{"a"}, pluginNames(list))
}
